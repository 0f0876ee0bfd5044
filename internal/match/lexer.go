package match

import (
	"strings"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tIdent
	tNumber
	tString
	tOp     // == != < > <= >=
	tAnd
	tOr
	tIn
	tLParen
	tRParen
	tLBracket
	tRBracket
	tComma
	tDot
)

type token struct {
	kind tokenKind
	text string
	num  uint64
	neg  bool
}

type lexer struct {
	in  string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.in) && (l.in[l.pos] == ' ' || l.in[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.in) {
		return token{kind: tEOF}, nil
	}
	c := l.in[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tLParen}, nil
	case c == ')':
		l.pos++
		return token{kind: tRParen}, nil
	case c == '[':
		l.pos++
		return token{kind: tLBracket}, nil
	case c == ']':
		l.pos++
		return token{kind: tRBracket}, nil
	case c == ',':
		l.pos++
		return token{kind: tComma}, nil
	case c == '.':
		l.pos++
		return token{kind: tDot}, nil
	case c == '=' || c == '!' || c == '<' || c == '>':
		return l.operator()
	case c == '\'' || c == '"':
		return l.quoted(c)
	case c == '-' || (c >= '0' && c <= '9'):
		return l.number()
	case isIdentByte(c):
		return l.ident()
	}
	return token{}, errors.Errorf("match: unexpected character %q at offset %d", c, l.pos)
}

func (l *lexer) operator() (token, error) {
	start := l.pos
	c := l.in[l.pos]
	l.pos++
	if l.pos < len(l.in) && l.in[l.pos] == '=' {
		l.pos++
		return token{kind: tOp, text: l.in[start:l.pos]}, nil
	}
	if c == '<' || c == '>' {
		return token{kind: tOp, text: l.in[start:l.pos]}, nil
	}
	return token{}, errors.Errorf("match: incomplete operator at offset %d", start)
}

func (l *lexer) ident() (token, error) {
	start := l.pos
	for l.pos < len(l.in) && isIdentByte(l.in[l.pos]) {
		l.pos++
	}
	word := l.in[start:l.pos]
	switch word {
	case "and":
		return token{kind: tAnd}, nil
	case "or":
		return token{kind: tOr}, nil
	case "in":
		return token{kind: tIn}, nil
	}
	return token{kind: tIdent, text: word}, nil
}

func (l *lexer) number() (token, error) {
	start := l.pos
	neg := l.in[l.pos] == '-'
	if neg {
		l.pos++
	}
	base := uint64(10)
	if l.pos+1 < len(l.in) && l.in[l.pos] == '0' &&
		(l.in[l.pos+1] == 'x' || l.in[l.pos+1] == 'X') {
		base = 16
		l.pos += 2
	}
	var n uint64
	digits := 0
	for l.pos < len(l.in) {
		d, ok := digitVal(l.in[l.pos], base)
		if !ok {
			break
		}
		n = n*base + d
		digits++
		l.pos++
	}
	if digits == 0 {
		return token{}, errors.Errorf("match: malformed number at offset %d", start)
	}
	return token{kind: tNumber, num: n, neg: neg}, nil
}

// quoted reads a string literal. Backslash escapes cover the quote
// characters, backslash itself and \xNN byte values, so binary field data
// produced by Escape round-trips.
func (l *lexer) quoted(q byte) (token, error) {
	l.pos++
	var b strings.Builder
	for l.pos < len(l.in) {
		c := l.in[l.pos]
		if c == q {
			l.pos++
			return token{kind: tString, text: b.String()}, nil
		}
		if c != '\\' {
			b.WriteByte(c)
			l.pos++
			continue
		}
		l.pos++
		if l.pos >= len(l.in) {
			break
		}
		switch e := l.in[l.pos]; e {
		case '\\', '\'', '"':
			b.WriteByte(e)
			l.pos++
		case 'n':
			b.WriteByte('\n')
			l.pos++
		case 't':
			b.WriteByte('\t')
			l.pos++
		case 'r':
			b.WriteByte('\r')
			l.pos++
		case 'x':
			if l.pos+2 >= len(l.in) {
				return token{}, errors.New("match: truncated \\x escape")
			}
			hi, ok1 := digitVal(l.in[l.pos+1], 16)
			lo, ok2 := digitVal(l.in[l.pos+2], 16)
			if !ok1 || !ok2 {
				return token{}, errors.New("match: malformed \\x escape")
			}
			b.WriteByte(byte(hi<<4 | lo))
			l.pos += 3
		default:
			return token{}, errors.Errorf("match: unknown escape \\%c", e)
		}
	}
	return token{}, errors.New("match: unterminated string literal")
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func digitVal(c byte, base uint64) (uint64, bool) {
	var d uint64
	switch {
	case c >= '0' && c <= '9':
		d = uint64(c - '0')
	case c >= 'a' && c <= 'f':
		d = uint64(c-'a') + 10
	case c >= 'A' && c <= 'F':
		d = uint64(c-'A') + 10
	default:
		return 0, false
	}
	if d >= base {
		return 0, false
	}
	return d, true
}
