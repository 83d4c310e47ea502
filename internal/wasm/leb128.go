package wasm

import (
	"bytes"

	"fortio.org/safecast"
)

func writeU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeS64(w *bytes.Buffer, v int64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.WriteByte(b)
		if done {
			return
		}
	}
}

// writeLen writes a vector length. A length past uint32 cannot be encoded
// and panics.
func writeLen(w *bytes.Buffer, n int) {
	writeU32(w, safecast.MustConv[uint32](n))
}

func writeName(w *bytes.Buffer, s string) {
	writeLen(w, len(s))
	w.WriteString(s)
}
