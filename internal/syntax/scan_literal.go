package syntax

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/value"
)

func boolValue(b bool) value.Value {
	return value.Bool(b)
}

// 42, -7, u10
func (rd *reader) readNumber() *ast.Expr {
	start := rd.cur.off
	unsigned := rd.cur.peek() == 'u'
	rd.cur.bump()
	for !rd.cur.eof() && isAtomByte(rd.cur.peek()) {
		rd.cur.bump()
	}
	sp := rd.cur.spanFrom(start)
	text := rd.cur.text(start)
	digits := text
	if unsigned {
		digits = text[1:]
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || strings.HasPrefix(digits, "+") {
		rd.errorf(diag.ReadBadNumber, sp, "malformed integer literal "+strconv.Quote(text))
		return nil
	}
	if !abi.FitsInt128(n, !unsigned) {
		rd.errorf(diag.ReadBadNumber, sp, "integer literal "+text+" does not fit 128 bits")
		return nil
	}
	if unsigned {
		return ast.Literal(value.UInt(n), sp)
	}
	return ast.Literal(value.Int(n), sp)
}

// 0x0102ab
func (rd *reader) readBuffer() *ast.Expr {
	start := rd.cur.off
	rd.cur.bump()
	rd.cur.bump()
	for !rd.cur.eof() && isAtomByte(rd.cur.peek()) {
		rd.cur.bump()
	}
	sp := rd.cur.spanFrom(start)
	b, err := hex.DecodeString(rd.cur.text(start + 2))
	if err != nil {
		rd.errorf(diag.ReadBadBuffer, sp, "malformed buffer literal: "+err.Error())
		return nil
	}
	return ast.Literal(value.Buffer(b), sp)
}

func (rd *reader) readASCII() *ast.Expr {
	start := rd.cur.off
	s, ok := rd.readQuoted(false)
	if !ok {
		return nil
	}
	sp := rd.cur.spanFrom(start)
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			rd.errorf(diag.ReadNonASCII, sp, "string-ascii literal contains non-ASCII bytes; use u\"...\"")
			return nil
		}
	}
	return ast.Literal(value.ASCII(s), sp)
}

func (rd *reader) readUTF8() *ast.Expr {
	start := rd.cur.off
	rd.cur.bump() // u
	s, ok := rd.readQuoted(true)
	if !ok {
		return nil
	}
	sp := rd.cur.spanFrom(start)
	if !utf8.ValidString(s) {
		rd.errorf(diag.ReadBadEscape, sp, "string-utf8 literal is not valid UTF-8")
		return nil
	}
	if !norm.NFC.IsNormalString(s) {
		// bytes are kept as written; equality is byte-wise
		diag.ReportWarning(rd.reporter, diag.ReadStringNotNFC, sp,
			"literal is not in NFC form; equal-looking strings may compare unequal").Emit()
	}
	return ast.Literal(value.UTF8(s), sp)
}

// readQuoted consumes a "..." literal at the cursor and returns its decoded
// contents. unicode enables \u{XXXX} escapes.
func (rd *reader) readQuoted(unicode bool) (string, bool) {
	start := rd.cur.off
	rd.cur.bump() // opening '"'
	var sb strings.Builder
	for !rd.cur.eof() {
		b := rd.cur.bump()
		switch b {
		case '"':
			return sb.String(), true
		case '\\':
			escStart := rd.cur.off - 1
			switch e := rd.cur.bump(); e {
			case '"', '\\':
				sb.WriteByte(e)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case 'u':
				if !unicode || rd.cur.peek() != '{' {
					rd.errorf(diag.ReadBadEscape, rd.cur.spanFrom(escStart), "\\u escapes need a u\"...\" literal and braces")
					return "", false
				}
				rd.cur.bump()
				hexStart := rd.cur.off
				for !rd.cur.eof() && isHex(rd.cur.peek()) {
					rd.cur.bump()
				}
				code, err := strconv.ParseUint(rd.cur.text(hexStart), 16, 32)
				if err != nil || rd.cur.peek() != '}' || !utf8.ValidRune(rune(code)) {
					rd.errorf(diag.ReadBadEscape, rd.cur.spanFrom(escStart), "invalid unicode escape")
					return "", false
				}
				rd.cur.bump()
				sb.WriteRune(rune(code))
			default:
				rd.errorf(diag.ReadBadEscape, rd.cur.spanFrom(escStart), "unknown escape sequence")
				return "", false
			}
		default:
			sb.WriteByte(b)
		}
	}
	rd.errorf(diag.ReadUnterminatedStr, rd.cur.spanFrom(start), "unterminated string literal")
	return "", false
}

// 'SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7 or 'SP....contract-name
func (rd *reader) readPrincipal() *ast.Expr {
	start := rd.cur.off
	rd.cur.bump()
	for !rd.cur.eof() && isAtomByte(rd.cur.peek()) {
		rd.cur.bump()
	}
	sp := rd.cur.spanFrom(start)
	p, err := value.ParsePrincipal(rd.cur.text(start + 1))
	if err != nil {
		rd.errorf(diag.ReadBadPrincipal, sp, "malformed principal: "+err.Error())
		return nil
	}
	return ast.Literal(value.PrincipalValue(p), sp)
}
