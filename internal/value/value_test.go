package value

import (
	"math/big"
	"testing"
)

func TestDecodeAddress(t *testing.T) {
	v, h, err := DecodeAddress("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
	if err != nil {
		t.Fatal(err)
	}
	if v != VersionTestnetSingleSig || h[0] != 0x6d || h[19] != 0xce {
		t.Fatalf("version=%d hash=%x", v, h)
	}
	if _, _, err := DecodeAddress("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGN"); err == nil {
		t.Fatalf("corrupted checksum must be rejected")
	}
}

func TestEncodeAddress(t *testing.T) {
	if got := EncodeAddress(VersionMainnetSingleSig, [20]byte{}); got != "SP000000000000000000002Q6VF78" {
		t.Fatalf("got %s", got)
	}
	var h [20]byte
	for i := range h {
		h[i] = byte(i + 1)
	}
	if got := EncodeAddress(VersionTestnetSingleSig, h); got != "STG40R40M30E209185GR38E1W8124GK2HKSRMTB" {
		t.Fatalf("got %s", got)
	}
}

func TestPrincipalBytesRoundTrip(t *testing.T) {
	p := MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.token")
	b := p.Bytes()
	if len(b) != 24+5 {
		t.Fatalf("unexpected length %d", len(b))
	}
	back, err := PrincipalFromBytes(p.Version, b)
	if err != nil || back != p {
		t.Fatalf("round trip: %v %v", back, err)
	}
	if back.String() != "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.token" {
		t.Fatalf("string form %s", back)
	}
}

func TestValueString(t *testing.T) {
	v := Tuple(
		TupleField{Name: "a", Value: Some(IntOf(-3))},
		TupleField{Name: "b", Value: Err(UIntOf(7))},
		TupleField{Name: "c", Value: List(Buffer([]byte{1, 0xab}), Buffer(nil))},
	)
	want := "(tuple (a (some -3)) (b (err u7)) (c (list 0x01ab 0x)))"
	if got := v.String(); got != want {
		t.Fatalf("got %s", got)
	}
	if TypeOf(v).String() != "(tuple (a (optional int)) (b (response notype uint)) (c (list 2 (buff 2))))" {
		t.Fatalf("type %s", TypeOf(v))
	}
	if !Equal(UInt(big.NewInt(5)), UIntOf(5)) || Equal(IntOf(5), UIntOf(5)) {
		t.Fatalf("equality broken")
	}
}
