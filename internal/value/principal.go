package value

import (
	"encoding/binary"
	"fmt"
	"strings"

	"fortio.org/safecast"

	"clarwasm/internal/abi"
)

// Principal is a standard principal or, with Name set, a contract principal.
type Principal struct {
	Version byte
	Hash    [20]byte
	Name    string
}

func (p Principal) String() string {
	s := EncodeAddress(p.Version, p.Hash)
	if p.Name != "" {
		s += "." + p.Name
	}
	return s
}

// Contract returns the contract principal deployed by p under name.
func (p Principal) Contract(name string) Principal {
	return Principal{Version: p.Version, Hash: p.Hash, Name: name}
}

// Standard drops the contract name.
func (p Principal) Standard() Principal {
	return Principal{Version: p.Version, Hash: p.Hash}
}

// SameAccount compares identity as stored in linear memory, ignoring the
// network version.
func (p Principal) SameAccount(o Principal) bool {
	return p.Hash == o.Hash && p.Name == o.Name
}

// ParsePrincipal parses "ADDR" or "ADDR.contract-name" without the quote.
func ParsePrincipal(s string) (Principal, error) {
	addr, name, _ := strings.Cut(s, ".")
	v, h, err := DecodeAddress(addr)
	if err != nil {
		return Principal{}, err
	}
	if len(name) > abi.PrincipalMaxName {
		return Principal{}, fmt.Errorf("contract name %q is longer than %d bytes", name, abi.PrincipalMaxName)
	}
	return Principal{Version: v, Hash: h, Name: name}, nil
}

// MustPrincipal is ParsePrincipal for constants known to be valid.
func MustPrincipal(s string) Principal {
	p, err := ParsePrincipal(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes is the backing data stored in linear memory for the principal.
func (p Principal) Bytes() []byte {
	out := make([]byte, abi.PrincipalHeaderBytes+len(p.Name))
	copy(out, p.Hash[:])
	binary.LittleEndian.PutUint32(out[abi.PrincipalIDBytes:], safecast.MustConv[uint32](len(p.Name)))
	copy(out[abi.PrincipalHeaderBytes:], p.Name)
	return out
}

// PrincipalFromBytes decodes the backing data of a principal.
func PrincipalFromBytes(version byte, b []byte) (Principal, error) {
	if len(b) < abi.PrincipalHeaderBytes {
		return Principal{}, fmt.Errorf("principal data is %d bytes", len(b))
	}
	var p Principal
	p.Version = version
	copy(p.Hash[:], b[:abi.PrincipalIDBytes])
	n := binary.LittleEndian.Uint32(b[abi.PrincipalIDBytes:])
	if n > abi.PrincipalMaxName || int(n) > len(b)-abi.PrincipalHeaderBytes {
		return Principal{}, fmt.Errorf("principal name length %d out of range", n)
	}
	p.Name = string(b[abi.PrincipalHeaderBytes : abi.PrincipalHeaderBytes+int(n)])
	return p, nil
}
