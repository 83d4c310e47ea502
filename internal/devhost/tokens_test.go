package devhost

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"clarwasm/internal/hostcall"
	"clarwasm/internal/value"
)

var vault = value.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.vault")

func okTrue() value.Value { return value.Ok(value.Bool(true)) }

func errCode(c uint64) value.Value { return value.Err(value.UIntOf(c)) }

func TestFungibleToken(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "gold", `
(define-fungible-token gold u1000)
(define-public (mint (amount uint)) (ft-mint? gold amount tx-sender))
(define-public (send (amount uint) (to principal)) (ft-transfer? gold amount tx-sender to))
(define-public (burn (amount uint)) (ft-burn? gold amount tx-sender))
(define-read-only (balance (who principal)) (ft-get-balance gold who))
(define-read-only (supply) (ft-get-supply gold))`)
	to := value.PrincipalValue(vault)

	expect(t, call(t, h, p, "mint", value.UIntOf(600)), okTrue())
	expect(t, call(t, h, p, "mint", value.UIntOf(0)), errCode(hostcall.MintNonPositive))
	expect(t, call(t, h, p, "send", value.UIntOf(200), to), okTrue())
	expect(t, call(t, h, p, "send", value.UIntOf(0), to), errCode(hostcall.TransferNonPositive))
	expect(t, call(t, h, p, "send", value.UIntOf(5), value.PrincipalValue(DefaultSender)),
		errCode(hostcall.TransferSenderIsRecipient))
	expect(t, call(t, h, p, "send", value.UIntOf(1000), to), errCode(hostcall.TransferNotEnoughBalance))
	expect(t, call(t, h, p, "burn", value.UIntOf(100)), okTrue())
	expect(t, call(t, h, p, "burn", value.UIntOf(1000)), errCode(hostcall.BurnNotEnoughBalance))

	expect(t, call(t, h, p, "balance", value.PrincipalValue(DefaultSender)), value.UIntOf(300))
	expect(t, call(t, h, p, "balance", to), value.UIntOf(200))
	expect(t, call(t, h, p, "supply"), value.UIntOf(500))

	_, err := h.Call(context.Background(), p, "mint", value.UIntOf(600))
	var re *RuntimeError
	if !errors.As(err, &re) || re.Code != hostcall.ErrSupplyOverflow {
		t.Fatalf("mint past the total supply: %v", err)
	}
	expect(t, call(t, h, p, "mint", value.UIntOf(500)), okTrue())

	if b, ok := h.FTBalance(p, "gold", vault); !ok || b.Int64() != 200 {
		t.Fatalf("FTBalance = %v, %v", b, ok)
	}
	if s, ok := h.FTSupply(p, "gold"); !ok || s.Int64() != 1000 {
		t.Fatalf("FTSupply = %v, %v", s, ok)
	}
	if _, ok := h.FTSupply(p, "silver"); ok {
		t.Fatalf("FTSupply found an undeclared token")
	}
}

func TestUnboundedFungibleToken(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "dust", `
(define-fungible-token dust)
(define-public (mint (amount uint)) (ft-mint? dust amount tx-sender))`)
	half := new(big.Int).Lsh(big.NewInt(1), 127)
	expect(t, call(t, h, p, "mint", value.UInt(half)), okTrue())
	_, err := h.Call(context.Background(), p, "mint", value.UInt(half))
	var re *RuntimeError
	if !errors.As(err, &re) || re.Code != hostcall.ErrSupplyOverflow {
		t.Fatalf("supply past u128: %v", err)
	}
}

func TestNonFungibleToken(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "badge", `
(define-non-fungible-token badge uint)
(define-public (mint (id uint)) (nft-mint? badge id tx-sender))
(define-public (give (id uint) (to principal)) (nft-transfer? badge id tx-sender to))
(define-public (burn (id uint)) (nft-burn? badge id tx-sender))
(define-read-only (owner (id uint)) (nft-get-owner? badge id))`)
	me, to := value.PrincipalValue(DefaultSender), value.PrincipalValue(vault)

	expect(t, call(t, h, p, "mint", value.UIntOf(1)), okTrue())
	expect(t, call(t, h, p, "mint", value.UIntOf(1)), errCode(hostcall.MintAssetExists))
	expect(t, call(t, h, p, "owner", value.UIntOf(1)), value.Some(me))
	expect(t, call(t, h, p, "owner", value.UIntOf(9)), value.None())

	expect(t, call(t, h, p, "give", value.UIntOf(1), me), errCode(hostcall.AssetSenderIsRecipient))
	expect(t, call(t, h, p, "give", value.UIntOf(9), to), errCode(hostcall.AssetMissing))
	expect(t, call(t, h, p, "give", value.UIntOf(1), to), okTrue())
	expect(t, call(t, h, p, "give", value.UIntOf(1), to), errCode(hostcall.AssetNotOwned))
	expect(t, call(t, h, p, "owner", value.UIntOf(1)), value.Some(to))
	expect(t, call(t, h, p, "burn", value.UIntOf(1)), errCode(hostcall.AssetNotOwned))

	expect(t, call(t, h, p, "mint", value.UIntOf(2)), okTrue())
	expect(t, call(t, h, p, "burn", value.UIntOf(2)), okTrue())
	expect(t, call(t, h, p, "owner", value.UIntOf(2)), value.None())
	expect(t, call(t, h, p, "burn", value.UIntOf(2)), errCode(hostcall.AssetMissing))

	if owner, ok := h.NFTOwner(p, "badge", value.UIntOf(1)); !ok || owner.String() != vault.String() {
		t.Fatalf("NFTOwner = %s, %v", owner, ok)
	}
	if _, ok := h.NFTOwner(p, "badge", value.UIntOf(2)); ok {
		t.Fatalf("burned asset still has an owner")
	}
}

func TestNonFungibleStringAsset(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "names", `
(define-non-fungible-token handle (string-ascii 16))
(define-public (claim (n (string-ascii 16))) (nft-mint? handle n tx-sender))
(define-read-only (owner (n (string-ascii 16))) (nft-get-owner? handle n))`)
	expect(t, call(t, h, p, "claim", value.ASCII("alice")), okTrue())
	expect(t, call(t, h, p, "claim", value.ASCII("alice")), errCode(hostcall.MintAssetExists))
	expect(t, call(t, h, p, "claim", value.ASCII("bob")), okTrue())
	expect(t, call(t, h, p, "owner", value.ASCII("bob")), value.Some(value.PrincipalValue(DefaultSender)))
	expect(t, call(t, h, p, "owner", value.ASCII("carol")), value.None())
	if _, ok := h.NFTOwner(p, "handle", value.ASCII("alice")); !ok {
		t.Fatalf("NFTOwner did not find alice")
	}
}

func TestStxBurnMemoAndAccount(t *testing.T) {
	h := newHost(t, Options{Balances: map[string]*big.Int{DefaultSender.String(): big.NewInt(100)}})
	p := deploy(t, h, "stx", `
(define-public (burn (amount uint) (from principal)) (stx-burn? amount from))
(define-public (pay (amount uint) (to principal) (memo (buff 34)))
  (stx-transfer-memo? amount tx-sender to memo))
(define-read-only (account (who principal)) (stx-account who))`)
	me, to := value.PrincipalValue(DefaultSender), value.PrincipalValue(vault)

	expect(t, call(t, h, p, "burn", value.UIntOf(10), me), okTrue())
	expect(t, call(t, h, p, "burn", value.UIntOf(0), me), errCode(hostcall.TransferNonPositive))
	expect(t, call(t, h, p, "burn", value.UIntOf(1000), me), errCode(hostcall.TransferNotEnoughBalance))
	expect(t, call(t, h, p, "burn", value.UIntOf(1), to), errCode(hostcall.TransferSenderNotCaller))

	memo := []byte{1, 2}
	expect(t, call(t, h, p, "pay", value.UIntOf(20), to, value.Buffer(memo)), okTrue())
	expect(t, call(t, h, p, "pay", value.UIntOf(20), me, value.Buffer(memo)),
		errCode(hostcall.TransferSenderIsRecipient))
	events := h.Transfers()
	if len(events) != 1 || string(events[0].Memo) != string(memo) || events[0].Amount.Int64() != 20 {
		t.Fatalf("transfers = %+v", events)
	}

	expect(t, call(t, h, p, "account", me), value.Tuple(
		value.TupleField{Name: "locked", Value: value.UIntOf(0)},
		value.TupleField{Name: "unlock-height", Value: value.UIntOf(0)},
		value.TupleField{Name: "unlocked", Value: value.UIntOf(70)},
	))
	if h.Balance(DefaultSender).Int64() != 70 || h.Balance(vault).Int64() != 20 {
		t.Fatalf("balances %s / %s", h.Balance(DefaultSender), h.Balance(vault))
	}
}
