// Package syntax reads contract source text into untyped expression trees.
package syntax

import (
	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/source"
)

// MaxDepth bounds nesting so hostile input cannot exhaust the Go stack.
const MaxDepth = 256

type reader struct {
	cur      cursor
	reporter diag.Reporter
	depth    int
}

// Read parses every top-level form of f. Errors are reported and the
// offending forms are skipped, so the result is usable only when the
// reporter saw no errors.
func Read(f *source.File, r diag.Reporter) []*ast.Expr {
	if r == nil {
		r = diag.NopReporter{}
	}
	rd := &reader{cur: newCursor(f), reporter: r}
	var out []*ast.Expr
	for {
		rd.skipTrivia()
		if rd.cur.eof() {
			return out
		}
		if e := rd.readExpr(); e != nil {
			out = append(out, e)
		}
	}
}

func (rd *reader) errorf(code diag.Code, sp source.Span, msg string) {
	diag.ReportError(rd.reporter, code, sp, msg).Emit()
}

func (rd *reader) skipTrivia() {
	for !rd.cur.eof() {
		switch b := rd.cur.peek(); {
		case b == ';':
			for !rd.cur.eof() && rd.cur.peek() != '\n' {
				rd.cur.bump()
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == ',':
			rd.cur.bump()
		default:
			return
		}
	}
}

func (rd *reader) readExpr() *ast.Expr {
	start := rd.cur.off
	switch b := rd.cur.peek(); {
	case b == '(':
		return rd.readList()
	case b == '{':
		return rd.readTupleSugar()
	case b == ')' || b == '}':
		rd.cur.bump()
		rd.errorf(diag.ReadUnexpectedClose, rd.cur.spanFrom(start), "unexpected '"+string(b)+"'")
		return nil
	case b == '"':
		return rd.readASCII()
	case b == 'u' && rd.cur.peekAt(1) == '"':
		return rd.readUTF8()
	case b == '\'':
		return rd.readPrincipal()
	case b == '0' && rd.cur.peekAt(1) == 'x':
		return rd.readBuffer()
	case isDigit(b) || (b == '-' && isDigit(rd.cur.peekAt(1))) || (b == 'u' && isDigit(rd.cur.peekAt(1))):
		return rd.readNumber()
	case isAtomByte(b):
		return rd.readAtom()
	default:
		rd.cur.bump()
		rd.errorf(diag.ReadUnexpectedChar, rd.cur.spanFrom(start), "unexpected character")
		return nil
	}
}

func (rd *reader) readList() *ast.Expr {
	start := rd.cur.off
	rd.cur.bump()
	rd.depth++
	defer func() { rd.depth-- }()
	if rd.depth > MaxDepth {
		rd.errorf(diag.ReadUnclosedParen, rd.cur.spanFrom(start), "expression nested too deeply")
		rd.skipBalanced()
		return nil
	}
	var args []*ast.Expr
	for {
		rd.skipTrivia()
		if rd.cur.eof() {
			rd.errorf(diag.ReadUnclosedParen, source.Span{File: rd.cur.file.ID, Start: start, End: start + 1}, "unclosed '('")
			return nil
		}
		if rd.cur.peek() == ')' {
			rd.cur.bump()
			return ast.List(rd.cur.spanFrom(start), args...)
		}
		if rd.cur.peek() == '}' {
			rd.cur.bump()
			rd.errorf(diag.ReadUnexpectedClose, rd.cur.spanFrom(rd.cur.off-1), "'}' closes '('")
			return nil
		}
		if e := rd.readExpr(); e != nil {
			args = append(args, e)
		}
	}
}

// {a: 1, b: u2} is sugar for (tuple (a 1) (b u2)).
func (rd *reader) readTupleSugar() *ast.Expr {
	start := rd.cur.off
	rd.cur.bump()
	head := ast.Atom("tuple", rd.cur.spanFrom(start))
	args := []*ast.Expr{head}
	for {
		rd.skipTrivia()
		if rd.cur.eof() {
			rd.errorf(diag.ReadUnclosedParen, source.Span{File: rd.cur.file.ID, Start: start, End: start + 1}, "unclosed '{'")
			return nil
		}
		if rd.cur.peek() == '}' {
			rd.cur.bump()
			return ast.List(rd.cur.spanFrom(start), args...)
		}
		keyStart := rd.cur.off
		if !isAtomByte(rd.cur.peek()) {
			rd.cur.bump()
			rd.errorf(diag.ReadBadTuple, rd.cur.spanFrom(keyStart), "expected a tuple key")
			continue
		}
		for !rd.cur.eof() && isAtomByte(rd.cur.peek()) {
			rd.cur.bump()
		}
		key := ast.Atom(rd.cur.text(keyStart), rd.cur.spanFrom(keyStart))
		rd.skipTrivia()
		if rd.cur.peek() != ':' {
			rd.errorf(diag.ReadBadTuple, key.Span, "expected ':' after tuple key")
			continue
		}
		rd.cur.bump()
		rd.skipTrivia()
		val := rd.readExpr()
		if val == nil {
			continue
		}
		args = append(args, ast.List(key.Span.Cover(val.Span), key, val))
	}
}

func (rd *reader) readAtom() *ast.Expr {
	start := rd.cur.off
	for !rd.cur.eof() && isAtomByte(rd.cur.peek()) {
		rd.cur.bump()
	}
	name := rd.cur.text(start)
	sp := rd.cur.spanFrom(start)
	switch name {
	case "true":
		return ast.Literal(boolValue(true), sp)
	case "false":
		return ast.Literal(boolValue(false), sp)
	}
	return ast.Atom(name, sp)
}

// skipBalanced discards input up to the matching ')'.
func (rd *reader) skipBalanced() {
	depth := 1
	for !rd.cur.eof() && depth > 0 {
		switch rd.cur.bump() {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHex(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isAtomByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', isDigit(b):
		return true
	}
	switch b {
	case '-', '_', '!', '?', '+', '*', '/', '<', '>', '=', '.':
		return true
	}
	return false
}
