// Package codec implements the wire-format reader/writer pair and the
// AES-CCM*-style authenticated encryption wrapper around them (spec §4.F):
// bounded byte-buffer decoding/encoding, plus a nonce built from a device's
// identity and its security counter.
package codec

import "errors"

// ErrShortBuffer is returned by a Reader method that would read past the
// end of the underlying buffer, or by a Writer method that would write past
// its capacity.
var ErrShortBuffer = errors.New("codec: short buffer")

// Reader decodes fixed-width fields from a byte slice in order. It is
// sticky: once a read fails, every subsequent read is a no-op returning the
// zero value, and Err reports the first failure. This mirrors the original
// DataReader, which lets message-parsing code chain field reads without an
// error check after every one and test success once at the end.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader creates a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Skip advances the read position by n bytes without decoding them.
func (r *Reader) Skip(n int) { r.take(n) }

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a little-endian 16-bit value.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return uint16(b[0]) | uint16(b[1])<<8
}

// Uint32 reads a little-endian 32-bit value.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Int32 reads a little-endian signed 32-bit value.
func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

// Uint64 reads a little-endian 64-bit value.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}
	return v
}

// Int64 reads a little-endian signed 64-bit value.
func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

// Enum8 reads a single byte as an 8-bit enum value.
func (r *Reader) Enum8() uint8 { return r.Uint8() }

// Enum16 reads a little-endian 16-bit enum value.
func (r *Reader) Enum16() uint16 { return r.Uint16() }

// Bytes reads n raw bytes; the returned slice aliases the reader's buffer.
func (r *Reader) Bytes(n int) []byte { return r.take(n) }

// Rest returns every remaining unread byte and advances to the end.
func (r *Reader) Rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}
