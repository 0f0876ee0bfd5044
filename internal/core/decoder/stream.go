package decoder

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"nfscap.xyz/nfscap/internal/core"
)

// streamKey identifies one directional TCP flow. The reverse direction is a
// separate stream with independently tracked reassembly state.
type streamKey struct {
	src     netip.Addr
	srcPort uint16
	dst     netip.Addr
	dstPort uint16
}

func (k streamKey) String() string {
	return fmt.Sprintf("%s:%d-%s:%d", k.src, k.srcPort, k.dst, k.dstPort)
}

// Stream is the per-flow reassembly state. Created on the first segment seen
// for the 4-tuple and mutated on every subsequent one; it lives for the life
// of the capture.
type Stream struct {
	SeqBase uint32 // Raw sequence number of the first segment (or last SYN)
	SeqWrap int64  // Accumulated 2^32 offsets from sequence wraparound
	LastSeq int64  // Relative sequence of the last processed data segment
	SawData bool   // A data segment has been processed on this stream

	// MSFrag holds partial-record bytes waiting for more segments. FragOff is
	// the byte offset within the current segment where an already-announced
	// record continues, and FragIndex the frame that started the pending
	// record, -1 while no record is pending.
	MSFrag    []byte
	FragOff   int
	FragIndex int
}

// StreamTable maps directional 4-tuples to their reassembly state.
type StreamTable struct {
	streams map[streamKey]*Stream
}

// NewStreamTable returns an empty stream table.
func NewStreamTable() *StreamTable {
	return &StreamTable{streams: make(map[streamKey]*Stream)}
}

// Get returns the stream for the segment's direction, creating it on first
// sight with the segment's sequence number as base.
func (st *StreamTable) Get(ip *core.IP, tcp *core.TCP) *Stream {
	key := streamKey{src: ip.Src, srcPort: tcp.SrcPort, dst: ip.Dst, dstPort: tcp.DstPort}
	s, ok := st.streams[key]
	if !ok {
		s = &Stream{SeqBase: tcp.SeqNumber, FragIndex: -1}
		st.streams[key] = s
	}
	return s
}

// Reset drops all stream state. Used by rewind: reassembly state is
// path-dependent, so a replay from the first record rebuilds it from scratch
// exactly as the first pass did.
func (st *StreamTable) Reset() {
	st.streams = make(map[streamKey]*Stream)
}

// Len returns the number of tracked streams.
func (st *StreamTable) Len() int {
	return len(st.streams)
}

// CallInfo is the call-side metadata kept per transaction id so a reply can
// recover program/version/procedure, which the reply header does not repeat.
type CallInfo struct {
	Index     int
	Program   uint32
	Version   uint32
	Procedure uint32
	GSS       *core.GSSCred
}

// PendingCalls maps live transaction ids to their call metadata. An entry is
// inserted on CALL and removed once the matching REPLY is decoded. By default
// entries for calls that never see a reply are kept forever, preserving
// correlation correctness on long captures; an optional capacity or TTL
// bounds the map instead.
type PendingCalls struct {
	cache *ttlcache.Cache[uint32, CallInfo]
}

// NewPendingCalls builds the map. capacity == 0 means unbounded,
// ttl == 0 means entries never expire.
func NewPendingCalls(capacity uint64, ttl time.Duration) *PendingCalls {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	opts := []ttlcache.Option[uint32, CallInfo]{
		ttlcache.WithTTL[uint32, CallInfo](ttl),
		ttlcache.WithDisableTouchOnHit[uint32, CallInfo](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[uint32, CallInfo](capacity))
	}
	return &PendingCalls{cache: ttlcache.New(opts...)}
}

// Put records a call. At most one pending entry exists per live xid.
func (p *PendingCalls) Put(xid uint32, info CallInfo) {
	p.cache.Set(xid, info, ttlcache.DefaultTTL)
}

// Get looks up the call metadata for a reply's xid.
func (p *PendingCalls) Get(xid uint32) (CallInfo, bool) {
	item := p.cache.Get(xid)
	if item == nil {
		return CallInfo{}, false
	}
	return item.Value(), true
}

// Delete removes the entry once the reply has been decoded.
func (p *PendingCalls) Delete(xid uint32) {
	p.cache.Delete(xid)
}

// Reset drops all pending entries; rewind replays the trace so the map is
// rebuilt to exactly its earlier state.
func (p *PendingCalls) Reset() {
	p.cache.DeleteAll()
}

// Len returns the number of pending calls.
func (p *PendingCalls) Len() int {
	return p.cache.Len()
}
