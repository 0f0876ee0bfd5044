package core

import (
	"fmt"
	"strings"

	"nfscap.xyz/nfscap/internal/xdr"
)

// Compound is the decoded NFSv4 compound: an ordered array of per-operation
// records, argument ops for calls and result ops for replies. The tree shape
// is owned here so the match engine can flatten it without knowing the
// individual operation layouts.
type Compound struct {
	Call          bool
	Tag           string
	Minor         uint32
	Status        uint32 // Replies only
	CallbackIdent uint32 // Callback compounds only
	Ops           []CompoundOp
}

// CompoundOp is one operation in a compound. Fields holds the decoded
// argument or result values under their XDR field names, nested Fields for
// sub-structures.
type CompoundOp struct {
	Op     uint32 // Operation number (argop/resop)
	Name   string // Operation object name, e.g. "opputfh"
	Fields Fields
}

// Field resolves name against the operation: the operation object name
// returns the whole field set, anything else is a flattened depth-first
// lookup.
func (op *CompoundOp) Field(name string) (interface{}, bool) {
	if name == op.Name {
		return op.Fields, true
	}
	return op.Fields.Get(name)
}

// Field resolves the reserved top-level compound names. Per-operation names
// are resolved by the NFS matcher against each element of Ops in order.
func (c *Compound) Field(name string) (interface{}, bool) {
	switch name {
	case "tag":
		return c.Tag, true
	case "minorversion":
		return c.Minor, true
	case "status":
		return c.Status, !c.Call
	case "callback_ident":
		return c.CallbackIdent, c.CallbackIdent != 0
	}
	return nil, false
}

func (c *Compound) String() string {
	kind := "call "
	if !c.Call {
		kind = "reply"
	}
	ops := make([]string, 0, len(c.Ops))
	for _, op := range c.Ops {
		ops = append(ops, strings.ToUpper(strings.TrimPrefix(op.Name, "op")))
	}
	out := fmt.Sprintf("COMPOUND4 %s %s", kind, strings.Join(ops, ";"))
	if !c.Call && c.Status != 0 {
		out += fmt.Sprintf(" -> status %d", c.Status)
	}
	return out
}

// CompoundDecoder is the narrow interface to the NFS operation decoder. It
// consumes compound arguments or results from the cursor, leaves the cursor
// positioned just past the bytes it used, and reports malformed input as a
// recoverable error. The caller treats any error as "no NFS layer on this
// packet".
type CompoundDecoder interface {
	DecodeArgs(c *xdr.Cursor) (*Compound, error)
	DecodeRes(c *xdr.Cursor) (*Compound, error)
	DecodeCallbackArgs(c *xdr.Cursor) (*Compound, error)
	DecodeCallbackRes(c *xdr.Cursor) (*Compound, error)
}
