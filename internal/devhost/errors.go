package devhost

import (
	"errors"
	"fmt"

	"clarwasm/internal/hostcall"
)

var (
	ErrUnknownContract = errors.New("devhost: unknown contract")
	ErrUnknownFunction = errors.New("devhost: unknown function")
	ErrClosed          = errors.New("devhost: host is closed")
	ErrNonConforming   = errors.New("devhost: module does not match its ABI")
)

// RuntimeError is a contract-level failure reported through runtime_error.
type RuntimeError struct {
	Contract string
	Code     hostcall.ErrorCode
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Contract, e.Code, int32(e.Code))
}

// ArgumentError reports a call argument that does not fit its parameter.
type ArgumentError struct {
	Function string
	Index    int
	Reason   string
}

func (e *ArgumentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("devhost: %s: %s", e.Function, e.Reason)
	}
	return fmt.Sprintf("devhost: %s: argument %d: %s", e.Function, e.Index+1, e.Reason)
}

// hostPanic aborts the running contract from inside a host function; the
// runtime turns the panic into the error returned by the outermost call.
func hostPanic(format string, args ...any) {
	panic(fmt.Errorf("devhost: "+format, args...))
}

// unwrap surfaces a RuntimeError raised anywhere in a call chain, dropping
// the wasm stack trace the runtime attaches.
func unwrap(err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}
	return err
}
