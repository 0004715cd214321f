package wire

import (
	"encoding/binary"
	"math"
)

// Packet assembles one outbound frame into a fixed-capacity buffer that is
// owned for the lifetime of the packet. Each command kind constructs its
// packet once at startup and reuses it: Reset, append fields in wire order,
// Finish, transmit Bytes. Appends never grow the buffer; exceeding capacity
// sets ErrOverflow instead of truncating. Like Reader, the first error
// sticks and surfaces from Finish.
type Packet struct {
	buf  []byte
	pos  int
	done bool
	err  error
}

// NewPacket allocates a packet for frames of type tag. capacity is the
// total buffer size including the tag byte and terminator; size it to the
// largest frame the command will ever produce.
func NewPacket(tag byte, capacity int) *Packet {
	if capacity < 2 {
		capacity = 2
	}
	p := &Packet{buf: make([]byte, capacity)}
	p.buf[0] = tag
	p.pos = 1
	return p
}

func (p *Packet) Tag() byte {
	return p.buf[0]
}

// Reset rewinds the write cursor to just past the type tag and clears any
// previous error or finished state.
func (p *Packet) Reset() {
	p.pos = 1
	p.done = false
	p.err = nil
}

func (p *Packet) reserve(n int) []byte {
	if p.err != nil {
		return nil
	}
	if p.done {
		p.err = ErrFinished
		return nil
	}
	// keep one byte for the terminator
	if p.pos+n > len(p.buf)-1 {
		p.err = ErrOverflow
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *Packet) AppendU8(v uint8) {
	if b := p.reserve(1); b != nil {
		b[0] = v
	}
}

func (p *Packet) AppendS8(v int8) {
	p.AppendU8(uint8(v))
}

func (p *Packet) AppendU16(v uint16) {
	if b := p.reserve(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func (p *Packet) AppendS16(v int16) {
	p.AppendU16(uint16(v))
}

func (p *Packet) AppendS32(v int32) {
	if b := p.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}

func (p *Packet) AppendF32(v float32) {
	if b := p.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	}
}

// Finish seals the frame with the terminator and makes Bytes valid. It
// reports any append error accumulated since the last Reset.
func (p *Packet) Finish() error {
	if p.err != nil {
		return p.err
	}
	if p.done {
		return ErrFinished
	}
	p.buf[p.pos] = Terminator
	p.pos++
	p.done = true
	return nil
}

// Bytes returns the finished frame including tag and terminator. Valid only
// between Finish and the next Reset.
func (p *Packet) Bytes() []byte {
	if !p.done {
		return nil
	}
	return p.buf[:p.pos]
}
