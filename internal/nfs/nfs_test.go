package nfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/xdr"
)

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

func TestDecodeArgs(t *testing.T) {
	var w wbuf
	w.opaque([]byte("readdir")) // tag
	w.u32(1)                    // minorversion
	w.u32(4)                    // numops
	// SEQUENCE
	w.u32(OpSequence)
	w.Write(bytes.Repeat([]byte{0xAB}, 16))
	w.u32(10).u32(2).u32(15).u32(0)
	// PUTFH
	w.u32(OpPutfh).opaque([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	// LOOKUP
	w.u32(OpLookup).opaque([]byte("subdir"))
	// GETATTR
	w.u32(OpGetattr).u32(2).u32(0x0010011A).u32(0x00B0A23A)

	nfs, err := NewDecoder().DecodeArgs(xdr.New(w.Bytes()))
	require.NoError(t, err)
	assert.True(t, nfs.Call)
	assert.Equal(t, "readdir", nfs.Tag)
	assert.Equal(t, uint32(1), nfs.Minor)
	require.Len(t, nfs.Ops, 4)

	seq := nfs.Ops[0]
	assert.Equal(t, uint32(OpSequence), seq.Op)
	assert.Equal(t, "opsequence", seq.Name)
	slotid, ok := seq.Fields.Get("sa_slotid")
	require.True(t, ok)
	assert.Equal(t, uint32(2), slotid)

	assert.Equal(t, "opputfh", nfs.Ops[1].Name)
	fh, ok := nfs.Ops[1].Fields.Get("object")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, fh)

	name, ok := nfs.Ops[2].Fields.Get("objname")
	require.True(t, ok)
	assert.Equal(t, "subdir", name)

	mask, ok := nfs.Ops[3].Fields.Get("attr_request")
	require.True(t, ok)
	assert.Equal(t, []uint32{0x0010011A, 0x00B0A23A}, mask)
}

func TestDecodeRes(t *testing.T) {
	var w wbuf
	w.u32(0)        // status
	w.opaque(nil)   // tag
	w.u32(3)        // numops
	// SEQUENCE res
	w.u32(OpSequence).u32(0)
	w.Write(bytes.Repeat([]byte{0xAB}, 16))
	w.u32(10).u32(2).u32(15).u32(15).u32(0)
	// PUTFH res
	w.u32(OpPutfh).u32(0)
	// READ res: eof true, 5 data bytes
	w.u32(OpRead).u32(0).u32(1).opaque([]byte("hello"))

	nfs, err := NewDecoder().DecodeRes(xdr.New(w.Bytes()))
	require.NoError(t, err)
	assert.False(t, nfs.Call)
	assert.Equal(t, uint32(0), nfs.Status)
	require.Len(t, nfs.Ops, 3)

	eof, ok := nfs.Ops[2].Fields.Get("eof")
	require.True(t, ok)
	assert.Equal(t, true, eof)
	data, ok := nfs.Ops[2].Fields.Get("data")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestDecodeResErrorStopsAtStatus(t *testing.T) {
	// A failed operation result carries only its status
	var w wbuf
	w.u32(2).opaque(nil).u32(1)
	w.u32(OpGetattr).u32(2) // NFS4ERR_NOENT
	nfs, err := NewDecoder().DecodeRes(xdr.New(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), nfs.Status)
	require.Len(t, nfs.Ops, 1)
	_, ok := nfs.Ops[0].Fields.Get("obj_attributes")
	assert.False(t, ok)
}

func TestUnsupportedOperation(t *testing.T) {
	var w wbuf
	w.opaque(nil).u32(1).u32(1).u32(42) // EXCHANGE_ID, not in the table
	_, err := NewDecoder().DecodeArgs(xdr.New(w.Bytes()))
	assert.Error(t, err)
}

func TestTruncatedCompound(t *testing.T) {
	var w wbuf
	w.opaque(nil).u32(1).u32(2)
	w.u32(OpPutfh).u32(4) // opaque length declared, bytes missing
	_, err := NewDecoder().DecodeArgs(xdr.New(w.Bytes()))
	assert.Error(t, err)
}

func TestDecodeCallback(t *testing.T) {
	var w wbuf
	w.opaque(nil) // tag
	w.u32(1)      // minorversion
	w.u32(7)      // callback_ident
	w.u32(2)      // numops
	// CB_SEQUENCE
	w.u32(OpCBSequence)
	w.Write(bytes.Repeat([]byte{0xCD}, 16))
	w.u32(1).u32(0).u32(3).u32(0)
	w.u32(0) // no referring call lists
	// CB_RECALL
	w.u32(OpCBRecall)
	w.u32(9)
	w.Write(make([]byte, 12))
	w.u32(0) // truncate false
	w.opaque([]byte{0xFE, 0xED})

	nfs, err := NewDecoder().DecodeCallbackArgs(xdr.New(w.Bytes()))
	require.NoError(t, err)
	assert.True(t, nfs.Call)
	assert.Equal(t, uint32(7), nfs.CallbackIdent)
	require.Len(t, nfs.Ops, 2)
	assert.Equal(t, "opcbsequence", nfs.Ops[0].Name)
	assert.Equal(t, "opcbrecall", nfs.Ops[1].Name)

	sid, ok := nfs.Ops[1].Fields.Get("stateid")
	require.True(t, ok)
	sidFields, ok := sid.(core.Fields)
	require.True(t, ok)
	seqid, ok := sidFields.Get("seqid")
	require.True(t, ok)
	assert.Equal(t, uint32(9), seqid)
}

func TestOpenArgsRoundTrip(t *testing.T) {
	var w wbuf
	w.opaque(nil).u32(0).u32(1)
	w.u32(OpOpen)
	w.u32(3)            // seqid
	w.u32(2)            // share_access WRITE
	w.u32(0)            // share_deny
	w.u64(0xCAFE)       // owner clientid
	w.opaque([]byte("lockowner"))
	w.u32(1).u32(0)     // OPEN4_CREATE, UNCHECKED4
	w.u32(0).opaque(nil) // empty createattrs fattr
	w.u32(0).opaque([]byte("newfile")) // CLAIM_NULL

	nfs, err := NewDecoder().DecodeArgs(xdr.New(w.Bytes()))
	require.NoError(t, err)
	require.Len(t, nfs.Ops, 1)
	op := nfs.Ops[0]
	assert.Equal(t, "opopen", op.Name)

	file, ok := op.Fields.Get("file")
	require.True(t, ok)
	assert.Equal(t, "newfile", file)
	mode, ok := op.Fields.Get("mode")
	require.True(t, ok)
	assert.Equal(t, uint32(0), mode)
}
