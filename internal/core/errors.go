// Package core defines the packet data model shared by the decoder chain,
// the trace reader and the match engine.
package core

import "errors"

// Sentinel errors. Only the trace reader surfaces errors to callers;
// per-layer decode failures are absorbed and show up as an absent layer.
var (
	// Trace file errors
	ErrEmptyFile          = errors.New("nfscap: packet trace file is empty")
	ErrUnrecognizedFormat = errors.New("nfscap: not a tcpdump trace file")
	ErrEndOfTrace         = errors.New("nfscap: end of trace file")
	ErrIndexOutOfRange    = errors.New("nfscap: packet index out of range")
)
