// Package decoder implements the layered decode chain: Ethernet, IPv4/IPv6,
// TCP/UDP, RPC record recovery over reassembled TCP streams, RPC credentials
// and the dispatch into the NFS compound decoder.
//
// Decoding is strictly single-threaded: all state (stream table, pending-call
// map, cursor) is owned by one Capture and mutated only along the sequential
// decode path. Per-layer decode failures are absorbed; lower layers already
// decoded remain attached to the packet.
package decoder

import (
	"github.com/sirupsen/logrus"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/xdr"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD

	protocolTCP = 6
	protocolUDP = 17
)

// Context carries the per-frame cursor and packet together with the
// capture-wide decode state.
type Context struct {
	Cursor  *xdr.Cursor
	Pkt     *core.Pkt
	Streams *StreamTable
	Calls   *PendingCalls
	NFS     core.CompoundDecoder
	Log     *logrus.Logger

	// Replay is set by the TCP payload decoder when a further RPC message is
	// fully contained in the current segment: the trace reader re-decodes the
	// same record so the pipelined message gets its own packet.
	Replay bool
}

// DecodeEthernet decodes the link layer and dispatches down the chain.
// This is the entry point for link type 1 frames.
func DecodeEthernet(ctx *Context) {
	b, err := ctx.Cursor.Read(14)
	if err != nil {
		return
	}
	eth := &core.Ethernet{
		Type: uint16(b[12])<<8 | uint16(b[13]),
	}
	copy(eth.Dst[:], b[0:6])
	copy(eth.Src[:], b[6:12])
	ctx.Pkt.Ethernet = eth

	switch eth.Type {
	case etherTypeIPv4, etherTypeIPv6:
		decodeIP(ctx)
	default:
		// Unsupported payload type, keep the raw bytes
		eth.Data = ctx.Cursor.Bytes()
	}
}
