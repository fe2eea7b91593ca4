package jdwpenc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when there are insufficient bytes to complete a read.
var ErrTruncated = errors.New("jdwpenc: truncated")

// ErrBadIDSize is returned when an ID read or write is requested with a
// width other than 1, 2, 4 or 8 bytes.
var ErrBadIDSize = errors.New("jdwpenc: bad id size")

// Reader provides sequential reading of big-endian encoded JDWP wire
// data with error accumulation. Once an error occurs, all subsequent
// reads become no-ops returning zero values.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader creates a new Reader wrapping the given byte slice with position at 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// require checks that n bytes are available at the current position.
// Returns false and sets the error if insufficient data remains.
func (r *Reader) require(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, len(r.data)-r.pos)
		return false
	}
	return true
}

// ReadUint8 reads a single byte and advances the position by 1.
func (r *Reader) ReadUint8() uint8 {
	if !r.require(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

// ReadUint16 reads a big-endian uint16 and advances the position by 2.
func (r *Reader) ReadUint16() uint16 {
	if !r.require(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

// ReadUint32 reads a big-endian uint32 and advances the position by 4.
func (r *Reader) ReadUint32() uint32 {
	if !r.require(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

// ReadUint64 reads a big-endian uint64 and advances the position by 8.
func (r *Reader) ReadUint64() uint64 {
	if !r.require(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// ReadInt32 reads a big-endian two's-complement int32.
func (r *Reader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadID reads an identifier of the given byte width (1, 2, 4 or 8),
// zero-extended into a uint64. Sets ErrBadIDSize for any other width.
func (r *Reader) ReadID(size int) uint64 {
	switch size {
	case 1:
		return uint64(r.ReadUint8())
	case 2:
		return uint64(r.ReadUint16())
	case 4:
		return uint64(r.ReadUint32())
	case 8:
		return r.ReadUint64()
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: %d", ErrBadIDSize, size)
		}
		return 0
	}
}

// ReadString reads a JDWP string: a big-endian uint32 byte count
// followed by that many UTF-8 bytes, with no terminator.
func (r *Reader) ReadString() string {
	n := r.ReadUint32()
	if !r.require(int(n)) {
		return ""
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

// ReadBytes reads n bytes and advances the position.
// Returns nil and sets error if insufficient data.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.require(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b
}

// Skip advances the position by n bytes without reading.
func (r *Reader) Skip(n int) {
	if !r.require(n) {
		return
	}
	r.pos += n
}

// Err returns the first error encountered, or nil.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return max(len(r.data)-r.pos, 0)
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}
