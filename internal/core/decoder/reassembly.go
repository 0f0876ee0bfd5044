package decoder

import (
	"github.com/sirupsen/logrus"

	"nfscap.xyz/nfscap/internal/core"
)

// decodePayload turns the segmented, possibly pipelined TCP payload of one
// stream into whole RPC records.
//
// Stream states: idle (no pending partial record), buffering (MSFrag holds
// leftover bytes of an unfinished record), resyncing (FragOff marks where a
// previously announced record continues inside a new segment).
func decodePayload(ctx *Context, tcp *core.TCP, stream *Stream) {
	u := ctx.Cursor
	pkt := ctx.Pkt

	if stream.FragOff > 0 && len(stream.MSFrag) == 0 {
		// The current RPC message starts mid-segment: skip the bytes already
		// consumed by earlier messages in this same segment.
		u.Seek(u.Tell() + stream.FragOff)
	}

	sid := u.Save()
	size := u.Len()
	nonvalid := size <= 20 && allZero(u.Bytes())

	// With leftover fragment bytes pending, first try to decode an RPC header
	// from the new segment alone: if that works the buffered bytes were
	// garbage (capture loss) and the stream resyncs here.
	var rpc *core.RPC
	if len(stream.MSFrag) > 0 {
		rpc = decodeRPC(ctx, protocolTCP, true)
		if rpc == nil {
			u.Restore(sid)
			sid = u.Save()
		}
	}

	if rpc != nil || (size == 0 && len(stream.MSFrag) > 0 && tcp.FlagsRaw != 0x10) {
		// Data was lost in the capture: reset the stream so the following
		// segments resynchronize. A pure ACK (flags 0x10) is ignored without
		// touching the state.
		ctx.Log.WithFields(logrus.Fields{
			"frame":       pkt.Record.Index,
			"first_frame": stream.FragIndex,
			"msfrag":      len(stream.MSFrag),
		}).Debug("tcp: abandoning in-progress record")
		stream.MSFrag = nil
		stream.FragOff = 0
		stream.FragIndex = -1
	}

	// Expected distance to the last processed data segment
	nseg := tcp.Seq - stream.LastSeq

	if nseg != int64(len(stream.MSFrag)) && nonvalid {
		// Zero-filled runt that does not line up with the pending record:
		// capture noise, nothing to decode
		return
	}

	var ldata int
	if rpc == nil {
		if len(stream.MSFrag) > 0 {
			// Graft the pending partial-record bytes in front of the new
			// payload and re-attempt from the start of the logical record
			u.Insert(stream.MSFrag)
		}
		ldata = u.Len() - 4
		rpc = decodeRPC(ctx, protocolTCP, true)
	} else {
		ldata = size - 4
	}

	if rpc == nil {
		return
	}
	rpcsize := int(rpc.Fragment.Size)

	if !pkt.Record.Truncated() && ldata < rpcsize {
		// The record is longer than what has arrived so far: buffer all of
		// it and wait for the next segment. Truncated captures never buffer,
		// whatever was captured is all there will ever be.
		u.Restore(sid)
		stream.MSFrag = append(stream.MSFrag, u.Bytes()...)
		if stream.FragIndex < 0 {
			stream.FragIndex = pkt.Record.Index
		}
		return
	}

	if len(stream.MSFrag) > 0 || ldata == rpcsize {
		stream.FragOff = 0
	}
	stream.MSFrag = nil
	stream.FragIndex = -1

	// Record is complete: attach the RPC layer and decode upwards
	pkt.RPC = rpc
	if rpc.Type == core.RPCReply {
		// Reply decoded, drop the call from the pending map
		ctx.Calls.Delete(rpc.XID)
	}
	nfs := decodeNFS(ctx, rpc)
	if nfs != nil {
		pkt.NFS = nfs
	}

	rpcbytes := ldata - u.Len()
	switch {
	case nfs == nil && rpcbytes != rpcsize:
		// Upper layer did not decode and the leftover is not accounted for
		// by the record marking; leave the stream as is
	case u.Len() > 0:
		// Pipelined: another RPC message begins in this same segment.
		// The data offset is cumulative across replays of the segment.
		stream.FragOff += size - u.Len()
		sid = u.Save()
		ldata = u.Len() - 4
		hdr := decodeRPC(ctx, protocolTCP, false)
		if hdr == nil || ldata < int(hdr.Fragment.Size) {
			// Only part of the next message is here: buffer the remainder
			u.Restore(sid)
			stream.MSFrag = append(stream.MSFrag, u.Bytes()...)
			stream.FragIndex = pkt.Record.Index
		} else {
			// The next message is entirely within this segment: have the
			// trace reader re-decode the record as its own packet
			ctx.Replay = true
		}
	default:
		stream.FragOff = 0
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
