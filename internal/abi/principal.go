package abi

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// PrincipalData encodes the backing data of a principal value.
func PrincipalData(id [PrincipalIDBytes]byte, name string) []byte {
	out := make([]byte, PrincipalHeaderBytes+len(name))
	copy(out, id[:])
	binary.LittleEndian.PutUint32(out[PrincipalIDBytes:], safecast.MustConv[uint32](len(name)))
	copy(out[PrincipalHeaderBytes:], name)
	return out
}

// ParsePrincipalData decodes principal backing data. Trailing bytes past the
// contract name are ignored.
func ParsePrincipalData(b []byte) (id [PrincipalIDBytes]byte, name string, err error) {
	if len(b) < PrincipalHeaderBytes {
		return id, "", fmt.Errorf("abi: principal data is %d bytes, need at least %d", len(b), PrincipalHeaderBytes)
	}
	copy(id[:], b)
	n := binary.LittleEndian.Uint32(b[PrincipalIDBytes:])
	if n > PrincipalMaxName || int(n) > len(b)-PrincipalHeaderBytes {
		return id, "", fmt.Errorf("abi: principal name length %d out of range", n)
	}
	return id, string(b[PrincipalHeaderBytes : PrincipalHeaderBytes+int(n)]), nil
}
