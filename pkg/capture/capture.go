// Package capture reads tcpdump trace files and decodes each frame through
// the Ethernet/IP/TCP/RPC/NFS chain. A Capture owns one open trace and all
// decode state; it is not safe for concurrent use, every method must be
// called from a single goroutine.
package capture

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/core/decoder"
	"nfscap.xyz/nfscap/internal/nfs"
	"nfscap.xyz/nfscap/internal/xdr"
)

const (
	fileHeaderLen   = 24
	recordHeaderLen = 16

	linkTypeEthernet = 1

	defaultPollInterval = 100 * time.Millisecond
)

// Config tunes a Capture. The zero value gives a non-live reader with the
// built-in NFSv4 decoder and a quiet logger.
type Config struct {
	// Logger for stream-level decode diagnostics. Nil means a discard logger.
	Logger *logrus.Logger

	// NFS overrides the compound decoder. Nil means the built-in NFSv4
	// subset decoder.
	NFS core.CompoundDecoder

	// Live enables tail mode: a short read at end of file polls for more
	// data, or switches to the next rotated file, instead of returning
	// ErrEndOfTrace.
	Live         bool
	PollInterval time.Duration

	// PendingCallBound caps the pending-call map (0 = unbounded) and
	// PendingCallTTL expires entries for calls that never see a reply
	// (0 = never). The defaults preserve correlation on long captures.
	PendingCallBound uint64
	PendingCallTTL   time.Duration
}

// Header is the decoded trace file global header.
type Header struct {
	Major      uint16
	Minor      uint16
	ZoneOffset int32
	Accuracy   uint32
	SnapLen    uint32
	LinkType   uint32
}

// location addresses one record: rotation file number plus byte offset.
type location struct {
	file int
	off  int64
}

type source interface {
	io.ReadSeeker
	io.Closer
}

// memSource serves gzip-compressed traces, inflated once at open.
type memSource struct{ *bytes.Reader }

func (memSource) Close() error { return nil }

// Capture iterates the frames of one trace file.
type Capture struct {
	path string
	cfg  Config
	log  *logrus.Logger

	src     source
	order   binary.ByteOrder
	header  Header
	fileNum int

	index   int        // Index of the next frame Next will return
	pktMap  []location // Record locations for every visited index
	nextOff int64      // Offset just past the last record read
	lastLoc location
	replay  bool

	tvalid bool
	tstart time.Time

	pkt  *core.Pkt
	dctx *decoder.Context
}

// New prepares a Capture for the given trace file. The file is opened lazily
// on the first frame access.
func New(path string, cfg Config) *Capture {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	if cfg.NFS == nil {
		cfg.NFS = nfs.NewDecoder()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Capture{
		path: path,
		cfg:  cfg,
		log:  log,
		dctx: &decoder.Context{
			Streams: decoder.NewStreamTable(),
			Calls:   decoder.NewPendingCalls(cfg.PendingCallBound, cfg.PendingCallTTL),
			NFS:     cfg.NFS,
			Log:     log,
		},
	}
}

// TraceHeader returns the trace global header, opening the file if needed.
func (c *Capture) TraceHeader() (Header, error) {
	if err := c.open(); err != nil {
		return Header{}, err
	}
	return c.header, nil
}

// Index returns the index of the frame the next call to Next will return.
func (c *Capture) Index() int {
	return c.index
}

// Current returns the most recently decoded frame, nil before the first
// call to Next.
func (c *Capture) Current() *core.Pkt {
	return c.pkt
}

// Close releases the underlying file. The Capture can be reused; the next
// frame access reopens from the start.
func (c *Capture) Close() error {
	if c.src == nil {
		return nil
	}
	err := c.src.Close()
	c.src = nil
	return err
}

func (c *Capture) open() error {
	if c.src != nil {
		return nil
	}
	src, err := openFile(c.path)
	if err != nil {
		return err
	}
	hdr, order, err := readHeader(src)
	if err != nil {
		src.Close()
		return err
	}
	c.src = src
	c.order = order
	c.header = hdr
	c.fileNum = 0
	c.nextOff = fileHeaderLen
	return nil
}

// openFile opens a trace file, transparently unwrapping one level of gzip.
func openFile(path string) (source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "capture: open trace file")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "capture: stat trace file")
	}
	if st.Size() == 0 {
		f.Close()
		return nil, core.ErrEmptyFile
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, core.ErrUnrecognizedFormat
	}
	if byteOrder(magic) != nil {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "capture: seek trace file")
		}
		return f, nil
	}

	// Not a raw trace, retry once through gzip
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "capture: seek trace file")
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, core.ErrUnrecognizedFormat
	}
	data, err := io.ReadAll(zr)
	zr.Close()
	f.Close()
	if err != nil {
		return nil, core.ErrUnrecognizedFormat
	}
	if len(data) == 0 {
		return nil, core.ErrEmptyFile
	}
	return memSource{bytes.NewReader(data)}, nil
}

func byteOrder(magic [4]byte) binary.ByteOrder {
	switch {
	case magic == [4]byte{0xD4, 0xC3, 0xB2, 0xA1}:
		return binary.LittleEndian
	case magic == [4]byte{0xA1, 0xB2, 0xC3, 0xD4}:
		return binary.BigEndian
	}
	return nil
}

func readHeader(src source) (Header, binary.ByteOrder, error) {
	var raw [fileHeaderLen]byte
	if _, err := io.ReadFull(src, raw[:]); err != nil {
		return Header{}, nil, core.ErrUnrecognizedFormat
	}
	var magic [4]byte
	copy(magic[:], raw[0:4])
	order := byteOrder(magic)
	if order == nil {
		return Header{}, nil, core.ErrUnrecognizedFormat
	}
	hdr := Header{
		Major:      order.Uint16(raw[4:6]),
		Minor:      order.Uint16(raw[6:8]),
		ZoneOffset: int32(order.Uint32(raw[8:12])),
		Accuracy:   order.Uint32(raw[12:16]),
		SnapLen:    order.Uint32(raw[16:20]),
		LinkType:   order.Uint32(raw[20:24]),
	}
	return hdr, order, nil
}

// Next decodes and returns the next frame. In non-live mode a short read
// returns ErrEndOfTrace; in live mode Next blocks polling for more data
// until the context is canceled.
func (c *Capture) Next(ctx context.Context) (*core.Pkt, error) {
	if err := c.open(); err != nil {
		return nil, err
	}

	var loc location
	switch {
	case c.index < len(c.pktMap):
		loc = c.pktMap[c.index]
	case c.replay:
		// A pipelined RPC message is still pending inside the previous
		// record: decode the same record again as its own frame.
		loc = c.lastLoc
	default:
		loc = location{file: c.fileNum, off: c.nextOff}
	}

	hdr, payload, err := c.readRecord(ctx, &loc)
	if err != nil {
		return nil, err
	}

	rec := &core.Record{
		Index:     c.index,
		Seconds:   c.order.Uint32(hdr[0:4]),
		MicroSecs: c.order.Uint32(hdr[4:8]),
		CapLen:    c.order.Uint32(hdr[8:12]),
		OrigLen:   c.order.Uint32(hdr[12:16]),
	}
	ts := time.Unix(int64(rec.Seconds), int64(rec.MicroSecs)*1000)
	if !c.tvalid {
		c.tstart = ts
		c.tvalid = true
	}
	rec.Rel = ts.Sub(c.tstart)

	pkt := &core.Pkt{Record: rec, NFSOpIdx: -1}
	c.dctx.Pkt = pkt
	c.dctx.Cursor = xdr.New(payload)
	c.dctx.Replay = false

	if c.header.LinkType == linkTypeEthernet {
		decoder.DecodeEthernet(c.dctx)
	} else {
		rec.Data = payload
	}

	if c.index == len(c.pktMap) {
		c.pktMap = append(c.pktMap, loc)
	}
	c.lastLoc = loc
	c.replay = c.dctx.Replay
	c.index++
	c.pkt = pkt
	return pkt, nil
}

// readRecord reads the 16-byte record header and the captured payload at
// loc, leaving nextOff just past the record. A short read is end of trace,
// or in live mode a reason to poll or rotate.
func (c *Capture) readRecord(ctx context.Context, loc *location) ([recordHeaderLen]byte, []byte, error) {
	var hdr [recordHeaderLen]byte
	for {
		if err := c.switchFile(loc.file); err != nil {
			return hdr, nil, err
		}
		if _, err := c.src.Seek(loc.off, io.SeekStart); err != nil {
			return hdr, nil, errors.Wrap(err, "capture: seek record")
		}
		_, err := io.ReadFull(c.src, hdr[:])
		if err == nil {
			capLen := c.order.Uint32(hdr[8:12])
			payload := make([]byte, capLen)
			if _, err = io.ReadFull(c.src, payload); err == nil {
				c.nextOff = loc.off + recordHeaderLen + int64(capLen)
				return hdr, payload, nil
			}
		}
		if !c.cfg.Live {
			return hdr, nil, core.ErrEndOfTrace
		}
		if c.rotated(loc) {
			continue
		}
		select {
		case <-ctx.Done():
			return hdr, nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// rotated checks for the next file in the <base><N> rotation convention and
// repoints loc at its first record when it exists.
func (c *Capture) rotated(loc *location) bool {
	next := loc.file + 1
	if _, err := os.Stat(rotatedPath(c.path, next)); err != nil {
		return false
	}
	loc.file = next
	loc.off = fileHeaderLen
	return true
}

func rotatedPath(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + strconv.Itoa(n)
}

// switchFile points the reader at rotation file n, reading and checking its
// own global header.
func (c *Capture) switchFile(n int) error {
	if n == c.fileNum && c.src != nil {
		return nil
	}
	src, err := openFile(rotatedPath(c.path, n))
	if err != nil {
		return err
	}
	hdr, order, err := readHeader(src)
	if err != nil {
		src.Close()
		return err
	}
	if c.src != nil {
		c.src.Close()
	}
	c.src = src
	c.order = order
	c.header = hdr
	c.fileNum = n
	c.log.WithField("file", rotatedPath(c.path, n)).Info("capture: switched to rotated trace file")
	return nil
}

// Get returns the frame at the given index. The most recently decoded frame
// is returned as is; an index behind it replays from the start of the trace.
func (c *Capture) Get(ctx context.Context, index int) (*core.Pkt, error) {
	if index < 0 {
		return nil, core.ErrIndexOutOfRange
	}
	if index == c.index-1 && c.pkt != nil {
		return c.pkt, nil
	}
	if index < c.index {
		if err := c.Rewind(index); err != nil {
			return nil, err
		}
	}
	for {
		pkt, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if pkt.Record.Index == index {
			return pkt, nil
		}
	}
}

// Rewind resets the reader to the first record, clears all reassembly and
// correlation state, then replays forward to the given index. Decoding is
// deterministic, so the replay rebuilds stream and pending-call state
// exactly as the first pass did. Cost is proportional to index.
func (c *Capture) Rewind(index int) error {
	if index < 0 {
		return core.ErrIndexOutOfRange
	}
	if err := c.open(); err != nil {
		return err
	}
	c.index = 0
	c.replay = false
	c.dctx.Streams.Reset()
	c.dctx.Calls.Reset()
	for c.index < index {
		if _, err := c.Next(context.Background()); err != nil {
			return err
		}
	}
	return nil
}
