package hostcall

import "fmt"

// ErrorCode is the argument of runtime_error.
type ErrorCode int32

const (
	ErrArithmeticOverflow    ErrorCode = 0
	ErrArithmeticUnderflow   ErrorCode = 1
	ErrDivisionByZero        ErrorCode = 2
	ErrLog2                  ErrorCode = 3
	ErrSqrti                 ErrorCode = 4
	ErrBadTypeConstruction   ErrorCode = 5
	ErrPanic                 ErrorCode = 6
	ErrShortReturnAssertion  ErrorCode = 7
	ErrPow                   ErrorCode = 8
	ErrNameAlreadyUsed       ErrorCode = 9
	ErrShortReturnResponse   ErrorCode = 10
	ErrShortReturnOptional   ErrorCode = 11
	ErrShortReturnValue      ErrorCode = 12
	ErrArgumentCountMismatch ErrorCode = 13
	ErrStackExhausted        ErrorCode = 14
	ErrSupplyOverflow        ErrorCode = 15
	ErrNotMapped             ErrorCode = 99
)

var errorText = map[ErrorCode]string{
	ErrArithmeticOverflow:    "arithmetic overflow",
	ErrArithmeticUnderflow:   "arithmetic underflow",
	ErrDivisionByZero:        "division by zero",
	ErrLog2:                  "log2 of a non-positive number",
	ErrSqrti:                 "square root of a negative number",
	ErrBadTypeConstruction:   "value does not fit its declared type",
	ErrPanic:                 "panic",
	ErrShortReturnAssertion:  "assertion failed",
	ErrShortReturnResponse:   "unwrap of an err response",
	ErrShortReturnOptional:   "unwrap of none",
	ErrShortReturnValue:      "short return",
	ErrPow:                   "pow overflow or negative exponent",
	ErrNameAlreadyUsed:       "name already in use",
	ErrArgumentCountMismatch: "argument count mismatch",
	ErrStackExhausted:        "stack exhausted",
	ErrSupplyOverflow:        "token supply exceeded",
	ErrNotMapped:             "unmapped runtime error",
}

func (c ErrorCode) String() string {
	if s, ok := errorText[c]; ok {
		return s
	}
	return fmt.Sprintf("runtime error %d", int32(c))
}

// Result codes of stx_transfer, stx_transfer_memo, stx_burn and
// ft_transfer; zero means success and any other value becomes the err
// payload.
const (
	TransferOK                = 0
	TransferNotEnoughBalance  = 1
	TransferSenderIsRecipient = 2
	TransferNonPositive       = 3
	TransferSenderNotCaller   = 4
)

// Result codes of the remaining token imports.
const (
	// ft_mint
	MintNonPositive = 1

	// nft_mint
	MintAssetExists = 1

	// ft_burn
	BurnNotEnoughBalance = 1

	// nft_transfer and nft_burn
	AssetNotOwned          = 1
	AssetSenderIsRecipient = 2
	AssetMissing           = 3
)
