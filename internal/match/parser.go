package match

import (
	"regexp"

	"github.com/pkg/errors"
)

// Expression tree. Leaves are layer-qualified field comparisons; the parser
// keeps the and/or structure of the query and the compiler binds every leaf
// to its layer's matcher.
type node interface{}

type orNode struct{ left, right node }

type andNode struct{ left, right node }

// leafNode is one `LAYER.field <op> value` comparison.
type leafNode struct {
	layer string
	path  []string
	op    string // == != < > <= >= in
	value literal
}

type litKind int

const (
	litNumber litKind = iota
	litString
	litBool
	litRegex
	litList
)

type literal struct {
	kind  litKind
	num   uint64
	neg   bool
	str   string
	b     bool
	re    *regexp.Regexp
	items []literal
}

type parser struct {
	lex *lexer
	tok token
}

// parse turns a query string into an expression tree.
func parse(expr string) (node, error) {
	p := &parser{lex: &lexer{in: expr}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tEOF {
		return nil, errors.Errorf("match: trailing input at offset %d", p.lex.pos)
	}
	return n, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) orExpr() (node, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tOr {
		if err = p.advance(); err != nil {
			return nil, err
		}
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (node, error) {
	left, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tAnd {
		if err = p.advance(); err != nil {
			return nil, err
		}
		right, err := p.primary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) primary() (node, error) {
	if p.tok.kind == tLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tRParen {
			return nil, errors.New("match: expected closing parenthesis")
		}
		return n, p.advance()
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	if p.tok.kind != tIdent {
		return nil, errors.New("match: expected layer-qualified field name")
	}
	path := []string{p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.tok.kind == tDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tIdent {
			return nil, errors.New("match: expected field name after dot")
		}
		path = append(path, p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if len(path) < 2 {
		return nil, errors.Errorf("match: field %q is missing its layer qualifier", path[0])
	}

	var op string
	switch p.tok.kind {
	case tOp:
		op = p.tok.text
	case tIn:
		op = "in"
	default:
		return nil, errors.Errorf("match: expected comparison operator after %q", path[len(path)-1])
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	val, err := p.literal()
	if err != nil {
		return nil, err
	}
	if op == "in" && val.kind != litList {
		return nil, errors.New("match: 'in' requires a list value")
	}
	return leafNode{layer: path[0], path: path[1:], op: op, value: val}, nil
}

func (p *parser) literal() (literal, error) {
	switch p.tok.kind {
	case tNumber:
		lit := literal{kind: litNumber, num: p.tok.num, neg: p.tok.neg}
		return lit, p.advance()
	case tString:
		lit := literal{kind: litString, str: p.tok.text}
		return lit, p.advance()
	case tLBracket:
		return p.list()
	case tIdent:
		switch p.tok.text {
		case "re":
			return p.regex()
		case "True", "true":
			return literal{kind: litBool, b: true}, p.advance()
		case "False", "false":
			return literal{kind: litBool, b: false}, p.advance()
		}
		return literal{}, errors.Errorf("match: unexpected identifier %q in value position", p.tok.text)
	}
	return literal{}, errors.New("match: expected a value")
}

func (p *parser) list() (literal, error) {
	if err := p.advance(); err != nil {
		return literal{}, err
	}
	lit := literal{kind: litList}
	for {
		if p.tok.kind == tRBracket {
			return lit, p.advance()
		}
		item, err := p.literal()
		if err != nil {
			return literal{}, err
		}
		if item.kind == litList {
			return literal{}, errors.New("match: nested lists are not supported")
		}
		lit.items = append(lit.items, item)
		if p.tok.kind == tComma {
			if err = p.advance(); err != nil {
				return literal{}, err
			}
		}
	}
}

// regex parses the re('pattern') pseudo-value and compiles the pattern.
func (p *parser) regex() (literal, error) {
	if err := p.advance(); err != nil {
		return literal{}, err
	}
	if p.tok.kind != tLParen {
		return literal{}, errors.New("match: expected '(' after re")
	}
	if err := p.advance(); err != nil {
		return literal{}, err
	}
	if p.tok.kind != tString {
		return literal{}, errors.New("match: re() takes a quoted pattern")
	}
	re, err := regexp.Compile(p.tok.text)
	if err != nil {
		return literal{}, errors.Wrap(err, "match: bad regular expression")
	}
	if err = p.advance(); err != nil {
		return literal{}, err
	}
	if p.tok.kind != tRParen {
		return literal{}, errors.New("match: expected ')' after re pattern")
	}
	return literal{kind: litRegex, re: re}, p.advance()
}
