package value

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"fortio.org/safecast"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions of standard principals.
const (
	VersionMainnetSingleSig byte = 22
	VersionMainnetMultiSig  byte = 20
	VersionTestnetSingleSig byte = 26
	VersionTestnetMultiSig  byte = 21
)

var errBadChecksum = errors.New("c32check: checksum mismatch")

func c32Encode(data []byte) string {
	var out []byte
	carry, carryBits := byte(0), uint(0)
	for i := len(data) - 1; i >= 0; i-- {
		cur := data[i]
		take := 5 - carryBits
		low := cur & (1<<take - 1)
		out = append(out, c32Alphabet[low<<carryBits+carry])
		carryBits = 8 + carryBits - 5
		carry = cur >> (8 - carryBits)
		if carryBits >= 5 {
			out = append(out, c32Alphabet[carry&31])
			carryBits -= 5
			carry >>= 5
		}
	}
	if carryBits > 0 {
		out = append(out, c32Alphabet[carry])
	}
	for len(out) > 0 && out[len(out)-1] == '0' {
		out = out[:len(out)-1]
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, '0')
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func c32Digit(c byte) (uint16, bool) {
	switch c {
	case 'O', 'o':
		c = '0'
	case 'L', 'l', 'I', 'i':
		c = '1'
	}
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	i := strings.IndexByte(c32Alphabet, c)
	if i < 0 {
		return 0, false
	}
	return safecast.MustConv[uint16](i), true
}

func c32Decode(s string) ([]byte, error) {
	var out []byte
	carry, carryBits := uint16(0), uint(0)
	for i := len(s) - 1; i >= 0; i-- {
		d, ok := c32Digit(s[i])
		if !ok {
			return nil, fmt.Errorf("c32check: invalid character %q", s[i])
		}
		carry += d << carryBits
		carryBits += 5
		if carryBits >= 8 {
			out = append(out, byte(carry))
			carryBits -= 8
			carry >>= 8
		}
	}
	if carryBits > 0 {
		out = append(out, byte(carry))
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	for i := 0; i < len(s) && s[i] == '0'; i++ {
		out = append(out, 0)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// EncodeAddress renders a c32check address such as SP000000000000000000002Q6VF78.
func EncodeAddress(version byte, hash [20]byte) string {
	payload := append(hash[:], checksum(version, hash[:])...)
	return "S" + string(c32Alphabet[version&31]) + c32Encode(payload)
}

// DecodeAddress parses a c32check address and verifies its checksum.
func DecodeAddress(s string) (version byte, hash [20]byte, err error) {
	if len(s) < 5 || s[0] != 'S' {
		return 0, hash, fmt.Errorf("c32check: %q is not an address", s)
	}
	v, ok := c32Digit(s[1])
	if !ok {
		return 0, hash, fmt.Errorf("c32check: invalid version in %q", s)
	}
	data, err := c32Decode(s[2:])
	if err != nil {
		return 0, hash, err
	}
	if len(data) != 24 {
		return 0, hash, fmt.Errorf("c32check: %q decodes to %d bytes", s, len(data))
	}
	version = byte(v)
	if !bytes.Equal(checksum(version, data[:20]), data[20:]) {
		return 0, hash, errBadChecksum
	}
	copy(hash[:], data[:20])
	return version, hash, nil
}
