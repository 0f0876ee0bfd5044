// Package xdr implements a binary cursor over a byte buffer with the
// XDR-style primitives (RFC 4506) used by RPC and NFS: big-endian fixed-width
// integers, length-prefixed opaques padded to 4-byte boundaries, counted
// arrays, optional-data lists, and conditional (bool-gated) items.
//
// The cursor supports buffer splicing: Append extends the tail with bytes
// from a later TCP segment, Insert grafts previously buffered partial-record
// bytes in front of newly arrived data so a decode can be re-attempted from
// the start of the logical record.
package xdr

import (
	"encoding/binary"
	"errors"
)

// Decode failures. Callers treat both as "this layer did not decode",
// never as a program fault.
var (
	ErrUnderrun       = errors.New("nfscap: not enough bytes in buffer")
	ErrLengthExceeded = errors.New("nfscap: declared length exceeds maximum")
)

// Cursor wraps a byte buffer with a mutable read offset.
type Cursor struct {
	buf []byte
	off int
}

// State is an opaque snapshot of a cursor position, including the buffer
// itself so a Restore undoes any Insert done after the Save.
type State struct {
	buf []byte
	off int
}

// New returns a cursor positioned at the start of data.
// The cursor takes ownership of the slice.
func New(data []byte) *Cursor {
	return &Cursor{buf: data}
}

// Save returns a snapshot of the current cursor state.
func (c *Cursor) Save() State {
	return State{buf: c.buf, off: c.off}
}

// Restore resets the cursor to a previously saved state.
func (c *Cursor) Restore(s State) {
	c.buf = s.buf
	c.off = s.off
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

// Tell returns the current read offset.
func (c *Cursor) Tell() int {
	return c.off
}

// Seek sets the read offset, clamped to the buffer length.
func (c *Cursor) Seek(off int) {
	if off < 0 {
		off = 0
	}
	if off > len(c.buf) {
		off = len(c.buf)
	}
	c.off = off
}

// Bytes returns the unread bytes without consuming them.
func (c *Cursor) Bytes() []byte {
	return c.buf[c.off:]
}

// Read returns the next n bytes and advances the offset.
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 || c.Len() < n {
		return nil, ErrUnderrun
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Peek returns the next n bytes without advancing the offset.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if n < 0 || c.Len() < n {
		return nil, ErrUnderrun
	}
	return c.buf[c.off : c.off+n], nil
}

// Skip discards the next n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// Append extends the buffer at the tail with data arriving from a
// later segment.
func (c *Cursor) Append(data []byte) {
	c.buf = append(c.buf, data...)
}

// Insert grafts data in front of the unread bytes and resets the offset to
// the start of the grafted data, so decoding restarts from the beginning of
// the logical record. Already consumed bytes are dropped.
func (c *Cursor) Insert(data []byte) {
	buf := make([]byte, 0, len(data)+c.Len())
	buf = append(buf, data...)
	buf = append(buf, c.buf[c.off:]...)
	c.buf = buf
	c.off = 0
}

// Uint8 decodes a single byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 decodes a big-endian 16-bit integer.
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32 decodes a big-endian 32-bit integer.
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Uint64 decodes a big-endian 64-bit integer.
func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Bool decodes an XDR boolean (a 32-bit integer, nonzero is true).
func (c *Cursor) Bool() (bool, error) {
	v, err := c.Uint32()
	return v != 0, err
}

// Opaque decodes a variable-length opaque: a 4-byte length prefix followed by
// that many bytes padded up to the next 4-byte boundary. The padding is
// discarded. A nonzero max bounds the declared length.
func (c *Cursor) Opaque(max uint32) ([]byte, error) {
	n, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	if max > 0 && n > max {
		return nil, ErrLengthExceeded
	}
	b, err := c.Read(int(n))
	if err != nil {
		return nil, err
	}
	if pad := int((4 - n%4) % 4); pad > 0 {
		if err = c.Skip(pad); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// OpaqueFixed decodes a fixed-length opaque of n bytes padded to a
// 4-byte boundary.
func (c *Cursor) OpaqueFixed(n int) ([]byte, error) {
	b, err := c.Read(n)
	if err != nil {
		return nil, err
	}
	if pad := -n & 3; pad > 0 {
		if err = c.Skip(pad); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// String decodes an XDR string, the same wire shape as Opaque.
func (c *Cursor) String(max uint32) (string, error) {
	b, err := c.Opaque(max)
	return string(b), err
}

// Array decodes a 4-byte item count followed by that many items. A nonzero
// max bounds the declared count.
func Array[T any](c *Cursor, max uint32, item func(*Cursor) (T, error)) ([]T, error) {
	n, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	if max > 0 && n > max {
		return nil, ErrLengthExceeded
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := item(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// List decodes XDR optional-data lists: items are decoded while a leading
// "value follows" boolean is true.
func List[T any](c *Cursor, item func(*Cursor) (T, error)) ([]T, error) {
	var out []T
	for {
		more, err := c.Bool()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		v, err := item(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// Conditional decodes a boolean flag and, when true, the item itself.
// Returns nil when the item is absent.
func Conditional[T any](c *Cursor, item func(*Cursor) (T, error)) (*T, error) {
	present, err := c.Bool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := item(c)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
