// Package wire implements the framed binary protocol spoken by the robot's
// AVR over the serial link: little-endian field encoding, CR-terminated
// frames whose first byte is a message type tag, stream reassembly and
// per-tag dispatch.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// Terminator delimits frames in both directions.
const Terminator = '\r'

var (
	ErrShortRead = errors.New("wire: short read")
	ErrOverflow  = errors.New("wire: buffer overflow")
	ErrFinished  = errors.New("wire: packet already finished")
)

// Reader decodes fixed-width little-endian fields from a frame payload.
// Reads after the first failure return zero values; the first error sticks
// and is reported by Err, so decoders can read a full field sequence and
// check once.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Remaining reports how many undecoded bytes are left.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = ErrShortRead
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) S8() int8 {
	return int8(r.U8())
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) S16() int16 {
	return int16(r.U16())
}

func (r *Reader) S32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *Reader) F32() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
