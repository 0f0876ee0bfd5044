// Package match compiles the packet query language into predicates over
// decoded packets. Leaves are layer-qualified field comparisons
// (LAYER.field <op> value), composed with and/or; an absent layer or field
// evaluates to no-match rather than an error.
package match

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"nfscap.xyz/nfscap/internal/core"
)

// Predicate is a compiled query, built once per expression string and
// evaluated once per candidate packet.
type Predicate struct {
	expr string
	fn   func(*core.Pkt) bool
}

// Compile parses and compiles a query expression.
func Compile(expr string) (*Predicate, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, err
	}
	fn, err := compile(root)
	if err != nil {
		return nil, err
	}
	return &Predicate{expr: expr, fn: fn}, nil
}

// Eval applies the predicate to a decoded packet.
func (p *Predicate) Eval(pkt *core.Pkt) bool {
	return p.fn(pkt)
}

func (p *Predicate) String() string {
	return p.expr
}

func compile(n node) (func(*core.Pkt) bool, error) {
	switch n := n.(type) {
	case orNode:
		left, err := compile(n.left)
		if err != nil {
			return nil, err
		}
		right, err := compile(n.right)
		if err != nil {
			return nil, err
		}
		return func(pkt *core.Pkt) bool { return left(pkt) || right(pkt) }, nil
	case andNode:
		left, err := compile(n.left)
		if err != nil {
			return nil, err
		}
		right, err := compile(n.right)
		if err != nil {
			return nil, err
		}
		return func(pkt *core.Pkt) bool { return left(pkt) && right(pkt) }, nil
	case leafNode:
		return compileLeaf(n)
	}
	return nil, errors.Errorf("match: unknown expression node %T", n)
}

func compileLeaf(leaf leafNode) (func(*core.Pkt) bool, error) {
	switch strings.ToUpper(leaf.layer) {
	case "ETHERNET", "IP", "TCP", "UDP", "RPC":
		layer := strings.ToLower(leaf.layer)
		return func(pkt *core.Pkt) bool {
			f := pkt.Layer(layer)
			if f == nil {
				return false
			}
			v, ok := core.Resolve(f, leaf.path)
			if !ok {
				return false
			}
			return compare(v, leaf.op, leaf.value)
		}, nil
	case "NFS":
		return compileNFSLeaf(leaf)
	}
	return nil, errors.Errorf("match: unknown layer %q", leaf.layer)
}

// compileNFSLeaf builds the flattened compound matcher. Only tag and status
// resolve at the compound level; op/argop/resop compare operation numbers
// (argop on calls, resop on replies, op on either). Everything else is
// searched across the operation array in order, and the first operation
// satisfying the comparison wins and is recorded on the packet. When several
// operations carry the same generic field name (status is the usual case)
// this first-match rule is deliberately kept ambiguous for compatibility.
func compileNFSLeaf(leaf leafNode) (func(*core.Pkt) bool, error) {
	first := leaf.path[0]
	rest := leaf.path[1:]

	switch first {
	case "tag", "status":
		if len(rest) > 0 {
			return nil, errors.Errorf("match: NFS.%s has no sub-fields", first)
		}
		return func(pkt *core.Pkt) bool {
			if pkt.NFS == nil {
				return false
			}
			v, ok := pkt.NFS.Field(first)
			return ok && compare(v, leaf.op, leaf.value)
		}, nil

	case "op", "argop", "resop":
		if len(rest) > 0 {
			return nil, errors.Errorf("match: NFS.%s has no sub-fields", first)
		}
		return func(pkt *core.Pkt) bool {
			if pkt.NFS == nil {
				return false
			}
			if (first == "argop" && !pkt.NFS.Call) || (first == "resop" && pkt.NFS.Call) {
				return false
			}
			for i := range pkt.NFS.Ops {
				op := &pkt.NFS.Ops[i]
				if compare(op.Op, leaf.op, leaf.value) {
					pkt.NFSOp = op
					pkt.NFSOpIdx = i
					return true
				}
			}
			return false
		}, nil
	}

	return func(pkt *core.Pkt) bool {
		if pkt.NFS == nil {
			return false
		}
		for i := range pkt.NFS.Ops {
			op := &pkt.NFS.Ops[i]
			v, ok := op.Field(first)
			if !ok {
				continue
			}
			if len(rest) > 0 {
				f, fok := v.(core.Fielder)
				if !fok {
					continue
				}
				if v, ok = core.Resolve(f, rest); !ok {
					continue
				}
			}
			if compare(v, leaf.op, leaf.value) {
				pkt.NFSOp = op
				pkt.NFSOpIdx = i
				return true
			}
		}
		return false
	}, nil
}

// compare applies op between a decoded field value and a query literal.
// Type mismatches evaluate to false, never to an error.
func compare(v interface{}, op string, lit literal) bool {
	if op == "in" {
		for _, item := range lit.items {
			if compare(v, "==", item) {
				return true
			}
		}
		return false
	}
	if lit.kind == litRegex {
		matched := lit.re.MatchString(stringify(v))
		switch op {
		case "==":
			return matched
		case "!=":
			return !matched
		}
		return false
	}

	switch lit.kind {
	case litNumber:
		n, neg, ok := toNumber(v)
		if !ok {
			return false
		}
		return compareNumbers(n, neg, lit.num, lit.neg, op)
	case litString:
		s, ok := toString(v)
		if !ok {
			return false
		}
		return compareStrings(s, lit.str, op)
	case litBool:
		b, ok := v.(bool)
		if !ok {
			return false
		}
		switch op {
		case "==":
			return b == lit.b
		case "!=":
			return b != lit.b
		}
	}
	return false
}

func compareNumbers(a uint64, aneg bool, b uint64, bneg bool, op string) bool {
	var cmp int
	switch {
	case aneg && !bneg:
		cmp = -1
	case !aneg && bneg:
		cmp = 1
	case a == b:
		cmp = 0
	case a < b != aneg: // both same sign; negative values order reversed
		cmp = -1
	default:
		cmp = 1
	}
	return cmpResult(cmp, op)
}

func compareStrings(a, b, op string) bool {
	return cmpResult(strings.Compare(a, b), op)
}

func cmpResult(cmp int, op string) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func toNumber(v interface{}) (n uint64, neg bool, ok bool) {
	switch v := v.(type) {
	case uint8:
		return uint64(v), false, true
	case uint16:
		return uint64(v), false, true
	case uint32:
		return uint64(v), false, true
	case uint64:
		return v, false, true
	case int:
		if v < 0 {
			return uint64(-v), true, true
		}
		return uint64(v), false, true
	case int64:
		if v < 0 {
			return uint64(-v), true, true
		}
		return uint64(v), false, true
	}
	return 0, false, false
}

// toString accepts fields that have a natural string form: strings, raw
// bytes, and anything with a String method (addresses, flags).
func toString(v interface{}) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}

func stringify(v interface{}) string {
	if s, ok := toString(v); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Escape returns a representation of binary data safe to embed inside a
// quoted query literal: quotes and backslashes are escaped and bytes outside
// printable ASCII become \xNN escapes the lexer reverses.
func Escape(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		switch {
		case c == '\\' || c == '\'' || c == '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7F:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\x%02x", c)
		}
	}
	return b.String()
}
