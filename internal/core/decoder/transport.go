package decoder

import (
	"encoding/binary"

	"nfscap.xyz/nfscap/internal/core"
)

const (
	tcpHeaderMinLen = 20
	udpHeaderLen    = 8
)

func decodeTCP(ctx *Context, ip *core.IP) {
	u := ctx.Cursor
	b, err := u.Read(tcpHeaderMinLen)
	if err != nil {
		return
	}

	hl := b[12] >> 4
	// 9 flag bits: NS lives in the low bit of the data-offset byte
	flagsRaw := uint16(b[12]&0x01)<<8 | uint16(b[13])

	tcp := &core.TCP{
		SrcPort:    binary.BigEndian.Uint16(b[0:2]),
		DstPort:    binary.BigEndian.Uint16(b[2:4]),
		SeqNumber:  binary.BigEndian.Uint32(b[4:8]),
		AckNumber:  binary.BigEndian.Uint32(b[8:12]),
		HL:         hl,
		HeaderSize: int(hl) * 4,
		FlagsRaw:   flagsRaw,
		Flags:      core.NewTCPFlags(flagsRaw),
		WindowSize: binary.BigEndian.Uint16(b[14:16]),
		Checksum:   binary.BigEndian.Uint16(b[16:18]),
		UrgentPtr:  binary.BigEndian.Uint16(b[18:20]),
	}
	ctx.Pkt.TCP = tcp

	stream := ctx.Streams.Get(ip, tcp)

	if tcp.Flags.SYN == 1 {
		// Reset the stream base on SYN
		stream.SeqBase = tcp.SeqNumber
		stream.LastSeq = stream.SeqWrap
	}

	// Relative sequence number, accounting for 32-bit wraparound
	seq := int64(tcp.SeqNumber) - int64(stream.SeqBase) + stream.SeqWrap
	if seq < 0 {
		stream.SeqWrap += 1 << 32
		seq += 1 << 32
	}
	tcp.Seq = seq

	if tcp.HeaderSize > tcpHeaderMinLen {
		if tcp.Options, err = u.Read(tcp.HeaderSize - tcpHeaderMinLen); err != nil {
			return
		}
	}
	tcp.Length = u.Len()

	if seq < stream.LastSeq {
		// Re-transmission, do not process
		ctx.Log.WithFields(logFields(ctx, "seq", seq)).Debug("tcp: retransmitted segment")
		return
	}
	if tcp.Length > 0 && stream.SawData && seq == stream.LastSeq &&
		stream.FragOff == 0 && len(stream.MSFrag) == 0 {
		// Duplicate of the last processed data segment. A segment replay for
		// a pipelined RPC message arrives with the same sequence number but
		// always carries a pending frag_off.
		ctx.Log.WithFields(logFields(ctx, "seq", seq)).Debug("tcp: duplicate segment")
		return
	}

	decodePayload(ctx, tcp, stream)

	if tcp.Length > 0 {
		stream.LastSeq = seq
		stream.SawData = true
	}
}

func decodeUDP(ctx *Context) {
	u := ctx.Cursor
	b, err := u.Read(udpHeaderLen)
	if err != nil {
		return
	}
	udp := &core.UDP{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}
	ctx.Pkt.UDP = udp

	if u.Len() == 0 {
		return
	}
	sid := u.Save()
	rpc := decodeRPC(ctx, protocolUDP, true)
	if rpc == nil {
		u.Restore(sid)
		udp.Data = u.Bytes()
		return
	}
	ctx.Pkt.RPC = rpc
	if rpc.Type == core.RPCReply {
		ctx.Calls.Delete(rpc.XID)
	}
	if nfs := decodeNFS(ctx, rpc); nfs != nil {
		ctx.Pkt.NFS = nfs
	}
}

func logFields(ctx *Context, k string, v interface{}) map[string]interface{} {
	fields := map[string]interface{}{k: v}
	if ctx.Pkt != nil && ctx.Pkt.Record != nil {
		fields["frame"] = ctx.Pkt.Record.Index
	}
	return fields
}
