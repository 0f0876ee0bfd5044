package decoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/nfs"
	"nfscap.xyz/nfscap/internal/xdr"
)

// wbuf builds big-endian XDR test payloads.
type wbuf struct{ bytes.Buffer }

func (w *wbuf) u32(v uint32) *wbuf {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
	return w
}

func (w *wbuf) u64(v uint64) *wbuf {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
	return w
}

func (w *wbuf) opaque(data []byte) *wbuf {
	w.u32(uint32(len(data)))
	w.Write(data)
	for i := 0; i < (4-len(data)%4)%4; i++ {
		w.WriteByte(0)
	}
	return w
}

func (w *wbuf) raw(data []byte) *wbuf {
	w.Write(data)
	return w
}

// authSysCred is the AUTH_SYS credential used by the call fixtures:
// machine "client1", uid 1000, gid 100, gids [10, 20].
func authSysCred(w *wbuf) {
	var body wbuf
	body.u32(0x1234).opaque([]byte("client1")).u32(1000).u32(100)
	body.u32(2).u32(10).u32(20)
	w.u32(core.AuthSys).u32(uint32(body.Len())).raw(body.Bytes())
}

func nullVerifier(w *wbuf) {
	w.u32(core.AuthNone).u32(0)
}

// compoundWriteArgs is a COMPOUND call body with PUTFH and a WRITE carrying
// dataLen 0xFF bytes.
func compoundWriteArgs(dataLen int) []byte {
	var w wbuf
	w.opaque(nil) // tag
	w.u32(1)      // minorversion
	w.u32(2)      // numops
	w.u32(22).opaque([]byte{0xCA, 0xFE, 0xF0, 0x0D})
	w.u32(38)
	w.u32(1).raw(make([]byte, 12)) // stateid
	w.u64(4096)                    // offset
	w.u32(0)                       // stable
	w.opaque(bytes.Repeat([]byte{0xFF}, dataLen))
	return w.Bytes()
}

// rpcCall wraps an RPC call header plus payload in a single-fragment
// record-marked message.
func rpcCall(xid uint32, payload []byte) []byte {
	var body wbuf
	body.u32(xid).u32(core.RPCCall)
	body.u32(2).u32(core.NFSProgram).u32(4).u32(1)
	authSysCred(&body)
	nullVerifier(&body)
	body.raw(payload)

	var w wbuf
	w.u32(0x80000000 | uint32(body.Len()))
	w.raw(body.Bytes())
	return w.Bytes()
}

// rpcCallFragments wraps the same call body as rpcCall but splits it across
// two record-marking fragments, the first with the last-fragment bit clear.
func rpcCallFragments(xid uint32, payload []byte, split int) []byte {
	var body wbuf
	body.u32(xid).u32(core.RPCCall)
	body.u32(2).u32(core.NFSProgram).u32(4).u32(1)
	authSysCred(&body)
	nullVerifier(&body)
	body.raw(payload)

	b := body.Bytes()
	var w wbuf
	w.u32(uint32(split)).raw(b[:split])
	w.u32(0x80000000 | uint32(len(b)-split)).raw(b[split:])
	return w.Bytes()
}

func ethIPv4TCP(srcPort, dstPort uint16, seq uint32, flags uint16, payload []byte) []byte {
	var w wbuf
	// Ethernet
	w.raw([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	w.raw([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	w.raw([]byte{0x08, 0x00})
	// IPv4, no options
	total := 20 + 20 + len(payload)
	w.raw([]byte{0x45, 0x00})
	w.raw([]byte{byte(total >> 8), byte(total)})
	w.raw([]byte{0x00, 0x01, 0x00, 0x00, 0x40, 0x06, 0x00, 0x00})
	w.raw([]byte{192, 168, 0, 10})
	w.raw([]byte{192, 168, 0, 20})
	// TCP, no options
	w.raw([]byte{byte(srcPort >> 8), byte(srcPort), byte(dstPort >> 8), byte(dstPort)})
	w.u32(seq)
	w.u32(0) // ack
	w.raw([]byte{0x50, byte(flags), 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00})
	w.raw(payload)
	return w.Bytes()
}

func ethIPv4UDP(srcPort, dstPort uint16, payload []byte) []byte {
	var w wbuf
	w.raw([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	w.raw([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	w.raw([]byte{0x08, 0x00})
	total := 20 + 8 + len(payload)
	w.raw([]byte{0x45, 0x00})
	w.raw([]byte{byte(total >> 8), byte(total)})
	w.raw([]byte{0x00, 0x02, 0x00, 0x00, 0x40, 0x11, 0x00, 0x00})
	w.raw([]byte{192, 168, 0, 10})
	w.raw([]byte{192, 168, 0, 20})
	ulen := 8 + len(payload)
	w.raw([]byte{byte(srcPort >> 8), byte(srcPort), byte(dstPort >> 8), byte(dstPort)})
	w.raw([]byte{byte(ulen >> 8), byte(ulen), 0x00, 0x00})
	w.raw(payload)
	return w.Bytes()
}

func newTestContext() *Context {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Context{
		Streams: NewStreamTable(),
		Calls:   NewPendingCalls(0, 0),
		NFS:     nfs.NewDecoder(),
		Log:     log,
	}
}

func decodeFrame(ctx *Context, index int, frame []byte) *core.Pkt {
	return decodeTruncatedFrame(ctx, index, frame, uint32(len(frame)))
}

func decodeTruncatedFrame(ctx *Context, index int, frame []byte, origLen uint32) *core.Pkt {
	pkt := &core.Pkt{
		Record: &core.Record{
			Index:   index,
			CapLen:  uint32(len(frame)),
			OrigLen: origLen,
		},
		NFSOpIdx: -1,
	}
	ctx.Pkt = pkt
	ctx.Cursor = xdr.New(frame)
	ctx.Replay = false
	DecodeEthernet(ctx)
	return pkt
}

func TestDecodeLayers(t *testing.T) {
	ctx := newTestContext()
	pkt := decodeFrame(ctx, 0, ethIPv4TCP(50000, 2049, 1000, 0x02, nil))

	require.NotNil(t, pkt.Ethernet)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", pkt.Ethernet.Src.String())
	assert.Equal(t, uint16(0x0800), pkt.Ethernet.Type)

	require.NotNil(t, pkt.IP)
	assert.Equal(t, uint8(4), pkt.IP.Version)
	assert.Equal(t, "192.168.0.10", pkt.IP.Src.String())
	assert.Equal(t, "192.168.0.20", pkt.IP.Dst.String())
	assert.Equal(t, uint8(6), pkt.IP.Protocol)

	require.NotNil(t, pkt.TCP)
	assert.Equal(t, uint16(50000), pkt.TCP.SrcPort)
	assert.Equal(t, uint16(2049), pkt.TCP.DstPort)
	assert.Equal(t, uint8(1), pkt.TCP.Flags.SYN)
	assert.Equal(t, 0, pkt.TCP.Length)
}

func TestRPCCallSingleSegment(t *testing.T) {
	ctx := newTestContext()
	record := rpcCall(0x1000, compoundWriteArgs(64))
	pkt := decodeFrame(ctx, 0, ethIPv4TCP(50000, 2049, 1, 0x18, record))

	require.NotNil(t, pkt.RPC)
	assert.Equal(t, uint32(0x1000), pkt.RPC.XID)
	assert.Equal(t, uint32(core.RPCCall), pkt.RPC.Type)
	assert.Equal(t, uint32(core.NFSProgram), pkt.RPC.Program)
	assert.Equal(t, uint32(4), pkt.RPC.Version)
	assert.Equal(t, uint32(1), pkt.RPC.Procedure)

	cred := pkt.RPC.Credential
	require.NotNil(t, cred)
	require.NotNil(t, cred.Sys)
	assert.Equal(t, "client1", cred.Sys.Machine)
	assert.Equal(t, uint32(1000), cred.Sys.UID)
	assert.Equal(t, uint32(100), cred.Sys.GID)
	assert.Equal(t, []uint32{10, 20}, cred.Sys.GIDs)

	require.NotNil(t, pkt.NFS)
	assert.True(t, pkt.NFS.Call)
	require.Len(t, pkt.NFS.Ops, 2)
	assert.Equal(t, "opputfh", pkt.NFS.Ops[0].Name)
	assert.Equal(t, "opwrite", pkt.NFS.Ops[1].Name)
	data, ok := pkt.NFS.Ops[1].Fields.Get("data")
	require.True(t, ok)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 64), data)

	// The call is pending until its reply arrives
	assert.Equal(t, 1, ctx.Calls.Len())
}

func TestReassemblyThreeSegments(t *testing.T) {
	// Decode the same record whole on one stream, then split across three
	// segments on another; both must produce identical NFS layers.
	ctx := newTestContext()
	record := rpcCall(0x2000, compoundWriteArgs(64))
	require.Greater(t, len(record), 170)

	whole := decodeFrame(ctx, 0, ethIPv4TCP(50001, 2049, 1, 0x18, record))
	require.NotNil(t, whole.NFS)

	parts := [][]byte{record[:150], record[150:170], record[170:]}
	seq := uint32(1000)
	var last *core.Pkt
	for i, part := range parts {
		last = decodeFrame(ctx, 1+i, ethIPv4TCP(50002, 2049, seq, 0x18, part))
		seq += uint32(len(part))
		if i < len(parts)-1 {
			assert.Nil(t, last.RPC, "segment %d should still be buffering", i)
		}
	}

	require.NotNil(t, last.RPC)
	require.NotNil(t, last.NFS)
	assert.Equal(t, uint32(0x2000), last.RPC.XID)
	wantData, _ := whole.NFS.Ops[1].Fields.Get("data")
	gotData, _ := last.NFS.Ops[1].Fields.Get("data")
	assert.Equal(t, wantData, gotData)
}

func TestMultiFragmentRecord(t *testing.T) {
	// A message split across two record-marking fragments reassembles into
	// one record whose size covers both fragment bodies.
	ctx := newTestContext()
	record := rpcCallFragments(0x5000, compoundWriteArgs(16), 40)

	pkt := decodeFrame(ctx, 0, ethIPv4TCP(50008, 2049, 1, 0x18, record))
	require.NotNil(t, pkt.RPC)
	require.NotNil(t, pkt.RPC.Fragment)
	assert.True(t, pkt.RPC.Fragment.Last)
	assert.Equal(t, uint32(len(record)-8), pkt.RPC.Fragment.Size)
	assert.Equal(t, uint32(0x5000), pkt.RPC.XID)

	require.NotNil(t, pkt.NFS)
	require.Len(t, pkt.NFS.Ops, 2)
	assert.Equal(t, "opwrite", pkt.NFS.Ops[1].Name)
	data, ok := pkt.NFS.Ops[1].Fields.Get("data")
	require.True(t, ok)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 16), data)
}

func TestStreamFragIndexTracksFirstFrame(t *testing.T) {
	// The frame that started a pending record is tracked even when it is
	// frame 0, and cleared once the record completes.
	ctx := newTestContext()
	record := rpcCall(0x7000, compoundWriteArgs(64))

	p1 := decodeFrame(ctx, 0, ethIPv4TCP(50010, 2049, 1, 0x18, record[:150]))
	assert.Nil(t, p1.RPC)
	stream := ctx.Streams.Get(p1.IP, p1.TCP)
	assert.Equal(t, 0, stream.FragIndex)

	p2 := decodeFrame(ctx, 1, ethIPv4TCP(50010, 2049, 151, 0x18, record[150:]))
	require.NotNil(t, p2.RPC)
	assert.Equal(t, -1, stream.FragIndex)
}

func TestRetransmittedSegment(t *testing.T) {
	ctx := newTestContext()
	record := rpcCall(0x3000, compoundWriteArgs(8))
	frame := ethIPv4TCP(50003, 2049, 500, 0x18, record)

	first := decodeFrame(ctx, 0, frame)
	require.NotNil(t, first.RPC)

	second := decodeFrame(ctx, 1, frame)
	assert.Nil(t, second.RPC, "retransmission must not be processed")

	stream := ctx.Streams.Get(first.IP, first.TCP)
	assert.Equal(t, int64(0), stream.LastSeq)
	assert.Empty(t, stream.MSFrag)
}

func TestTruncatedCapture(t *testing.T) {
	// Snaplen cut the frame mid-compound: link/network/transport and the RPC
	// header still decode, the NFS layer is absent, and nothing buffers.
	ctx := newTestContext()
	record := rpcCall(0x4000, compoundWriteArgs(64))
	frame := ethIPv4TCP(50004, 2049, 1, 0x18, record)

	cut := len(frame) - 80
	pkt := decodeTruncatedFrame(ctx, 0, frame[:cut], uint32(len(frame)))

	assert.True(t, pkt.Record.Truncated())
	require.NotNil(t, pkt.TCP)
	require.NotNil(t, pkt.RPC)
	assert.Nil(t, pkt.NFS)

	stream := ctx.Streams.Get(pkt.IP, pkt.TCP)
	assert.Empty(t, stream.MSFrag)
}

func TestUDPCallReplyCorrelation(t *testing.T) {
	ctx := newTestContext()

	var args wbuf
	args.opaque(nil).u32(1).u32(1).u32(24) // tag, minorversion, PUTROOTFH
	var callBody wbuf
	callBody.u32(55).u32(core.RPCCall)
	callBody.u32(2).u32(core.NFSProgram).u32(4).u32(1)
	authSysCred(&callBody)
	nullVerifier(&callBody)
	callBody.raw(args.Bytes())

	call := decodeFrame(ctx, 3, ethIPv4UDP(50005, 2049, callBody.Bytes()))
	require.NotNil(t, call.RPC)
	require.NotNil(t, call.NFS)
	assert.Equal(t, 1, ctx.Calls.Len())

	var res wbuf
	res.u32(0).opaque(nil).u32(1).u32(24).u32(0) // status, tag, PUTROOTFH res
	var replyBody wbuf
	replyBody.u32(55).u32(core.RPCReply)
	replyBody.u32(core.MsgAccepted)
	nullVerifier(&replyBody)
	replyBody.u32(core.AcceptSuccess)
	replyBody.raw(res.Bytes())

	reply := decodeFrame(ctx, 4, ethIPv4UDP(2049, 50005, replyBody.Bytes()))
	require.NotNil(t, reply.RPC)
	assert.Equal(t, uint32(55), reply.RPC.XID)

	// Program, version and procedure come from the pending call
	assert.True(t, reply.RPC.HasProg)
	assert.Equal(t, uint32(core.NFSProgram), reply.RPC.Program)
	assert.Equal(t, uint32(4), reply.RPC.Version)
	assert.Equal(t, uint32(1), reply.RPC.Procedure)
	assert.Equal(t, 3, reply.RPC.CallIndex)

	require.NotNil(t, reply.NFS)
	assert.False(t, reply.NFS.Call)

	// The entry is dropped once the reply decodes
	assert.Equal(t, 0, ctx.Calls.Len())
}

func TestUncorrelatedReply(t *testing.T) {
	ctx := newTestContext()
	var replyBody wbuf
	replyBody.u32(0xBEEF).u32(core.RPCReply)
	replyBody.u32(core.MsgAccepted)
	nullVerifier(&replyBody)
	replyBody.u32(core.AcceptSuccess)

	pkt := decodeFrame(ctx, 0, ethIPv4UDP(2049, 50006, replyBody.Bytes()))
	require.NotNil(t, pkt.RPC)
	assert.False(t, pkt.RPC.HasProg)
	assert.Equal(t, -1, pkt.RPC.CallIndex)
	assert.Nil(t, pkt.NFS)
}

func TestGSSCredentialAndVerifier(t *testing.T) {
	var w wbuf
	var body wbuf
	body.u32(1).u32(core.GSSProcData).u32(42).u32(core.GSSSvcIntegrity)
	body.opaque([]byte{0x01, 0x02, 0x03, 0x04})
	w.u32(core.RPCSecGSS).u32(uint32(body.Len())).raw(body.Bytes())

	cred := rpcCredential(xdr.New(w.Bytes()), false)
	require.NotNil(t, cred)
	require.NotNil(t, cred.GSS)
	assert.Equal(t, uint32(1), cred.GSS.Version)
	assert.Equal(t, uint32(core.GSSProcData), cred.GSS.Proc)
	assert.Equal(t, uint32(42), cred.GSS.SeqNum)
	assert.Equal(t, uint32(core.GSSSvcIntegrity), cred.GSS.Service)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, cred.GSS.Context)

	// The verifier variant is only a token, no uid/gid style fields
	var v wbuf
	v.u32(core.RPCSecGSS).opaque([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11})
	verf := rpcCredential(xdr.New(v.Bytes()), true)
	require.NotNil(t, verf)
	require.NotNil(t, verf.Verf)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11}, verf.Verf.Token)
	_, ok := verf.Field("uid")
	assert.False(t, ok)
	_, ok = verf.Field("gid")
	assert.False(t, ok)
}

func TestGSSIntegrityDataAndChecksum(t *testing.T) {
	// Integrity service: the payload is preceded by length and sequence
	// number and followed by a checksum token, on both call and reply.
	ctx := newTestContext()
	checksum := []byte{0x5A, 0x5A, 0x5A, 0x5A}

	var args wbuf
	args.opaque(nil).u32(1).u32(1).u32(24) // tag, minorversion, PUTROOTFH
	var p wbuf
	p.u32(uint32(args.Len() + 4)).u32(42) // gss length, seq_num
	p.raw(args.Bytes())
	p.opaque(checksum)

	var body wbuf
	body.u32(0x6000).u32(core.RPCCall)
	body.u32(2).u32(core.NFSProgram).u32(4).u32(1)
	var cred wbuf
	cred.u32(1).u32(core.GSSProcData).u32(42).u32(core.GSSSvcIntegrity)
	cred.opaque([]byte{0xC0, 0x17, 0xE4, 0x70})
	body.u32(core.RPCSecGSS).u32(uint32(cred.Len())).raw(cred.Bytes())
	body.u32(core.RPCSecGSS).opaque([]byte{0x11, 0x22, 0x33, 0x44})
	body.raw(p.Bytes())

	call := decodeFrame(ctx, 0, ethIPv4UDP(50009, 2049, body.Bytes()))
	require.NotNil(t, call.RPC)
	require.NotNil(t, call.NFS)
	require.NotNil(t, call.GSSData)
	assert.Equal(t, uint32(core.GSSProcData), call.GSSData.Proc)
	assert.Equal(t, uint32(42), call.GSSData.SeqNum)
	assert.Equal(t, uint32(args.Len()+4), call.GSSData.Length)
	require.NotNil(t, call.GSSCheck)
	assert.Equal(t, checksum, call.GSSCheck.Token)

	var res wbuf
	res.u32(0).opaque(nil).u32(1).u32(24).u32(0)
	var rp wbuf
	rp.u32(uint32(res.Len() + 4)).u32(42)
	rp.raw(res.Bytes())
	rp.opaque(checksum)

	var replyBody wbuf
	replyBody.u32(0x6000).u32(core.RPCReply)
	replyBody.u32(core.MsgAccepted)
	replyBody.u32(core.RPCSecGSS).opaque([]byte{0x55, 0x66, 0x77, 0x88})
	replyBody.u32(core.AcceptSuccess)
	replyBody.raw(rp.Bytes())

	reply := decodeFrame(ctx, 1, ethIPv4UDP(2049, 50009, replyBody.Bytes()))
	require.NotNil(t, reply.RPC)
	require.NotNil(t, reply.RPC.Verifier)
	require.NotNil(t, reply.RPC.Verifier.Verf)
	assert.True(t, reply.RPC.Verifier.Verf.Enriched)

	require.NotNil(t, reply.NFS)
	assert.False(t, reply.NFS.Call)
	require.NotNil(t, reply.GSSData)
	assert.Equal(t, uint32(42), reply.GSSData.SeqNum)
	require.NotNil(t, reply.GSSCheck)
	assert.Equal(t, checksum, reply.GSSCheck.Token)
}

func TestInvalidRPCHeaderRejected(t *testing.T) {
	for name, build := range map[string]func(w *wbuf){
		"bad rpc version": func(w *wbuf) {
			w.u32(1).u32(core.RPCCall).u32(3).u32(core.NFSProgram).u32(4).u32(1)
			authSysCred(w)
			nullVerifier(w)
		},
		"bad message type": func(w *wbuf) {
			w.u32(1).u32(7)
		},
		"bad reply status": func(w *wbuf) {
			w.u32(1).u32(core.RPCReply).u32(9)
		},
		"bad accepted status": func(w *wbuf) {
			w.u32(1).u32(core.RPCReply).u32(core.MsgAccepted)
			nullVerifier(w)
			w.u32(17)
		},
		"bad auth status": func(w *wbuf) {
			w.u32(1).u32(core.RPCReply).u32(core.MsgDenied).u32(core.RejectAuthError).u32(99)
		},
	} {
		var w wbuf
		build(&w)
		rpc := decodeRPC(&Context{Cursor: xdr.New(w.Bytes())}, protocolUDP, false)
		assert.Nil(t, rpc, "case %q must not decode", name)
	}
}

func TestProgMismatchReply(t *testing.T) {
	var w wbuf
	w.u32(77).u32(core.RPCReply).u32(core.MsgAccepted)
	nullVerifier(&w)
	w.u32(core.AcceptProgMismatch).u32(3).u32(4)

	ctx := newTestContext()
	ctx.Cursor = xdr.New(w.Bytes())
	ctx.Pkt = &core.Pkt{Record: &core.Record{}}
	rpc := decodeRPC(ctx, protocolUDP, false)
	require.NotNil(t, rpc)
	require.NotNil(t, rpc.ProgMismatch)
	assert.Equal(t, uint32(3), rpc.ProgMismatch.Low)
	assert.Equal(t, uint32(4), rpc.ProgMismatch.High)
}

func TestStreamSeqWraparound(t *testing.T) {
	ctx := newTestContext()
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	near := uint32(0xFFFFFFF0)
	p1 := decodeFrame(ctx, 0, ethIPv4TCP(50007, 2049, near, 0x18, payload))
	assert.Equal(t, int64(0), p1.TCP.Seq)

	p2 := decodeFrame(ctx, 1, ethIPv4TCP(50007, 2049, 4, 0x18, payload))
	assert.Equal(t, int64(20), p2.TCP.Seq)
}
