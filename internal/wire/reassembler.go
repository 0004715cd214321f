package wire

import "log/slog"

// FrameFunc receives one complete frame with the terminator stripped.
// frame[0] is the type tag; the slice aliases the reassembler's buffer and
// must not be retained past the call.
type FrameFunc func(frame []byte)

// Reassembler recovers terminator-delimited frames from an arbitrarily
// chunked byte stream. It owns a fixed-capacity rolling buffer: bytes
// consumed into complete frames are compacted out so a frame split across
// reads accumulates at the front of the buffer. The sequence of dispatched
// frames is independent of how the stream is chunked.
type Reassembler struct {
	buf    []byte
	fill   int
	handle FrameFunc
	logger *slog.Logger

	frames    uint64
	discarded uint64
	overflows uint64
}

func NewReassembler(capacity int, handle FrameFunc, logger *slog.Logger) *Reassembler {
	if capacity < 2 {
		capacity = 2
	}
	return &Reassembler{
		buf:    make([]byte, capacity),
		handle: handle,
		logger: logger,
	}
}

// Feed appends newly read bytes and dispatches every complete frame found.
// A span of one byte or less between terminators carries no payload and is
// discarded as line noise. If the buffer fills without a terminator the
// buffered bytes are dropped and reported once, resynchronizing on the next
// terminator in the stream.
func (a *Reassembler) Feed(chunk []byte) {
	for len(chunk) > 0 {
		n := copy(a.buf[a.fill:], chunk)
		a.fill += n
		chunk = chunk[n:]
		a.scan()
		if a.fill == len(a.buf) {
			a.overflows++
			a.logger.Error("stream buffer full with no frame terminator, dropping",
				"dropped", a.fill)
			a.fill = 0
		}
	}
}

func (a *Reassembler) scan() {
	start := 0
	for i := 0; i < a.fill; i++ {
		if a.buf[i] != Terminator {
			continue
		}
		if i-start > 1 {
			a.frames++
			a.handle(a.buf[start:i])
		} else {
			a.discarded++
		}
		start = i + 1
	}
	if start > 0 {
		copy(a.buf, a.buf[start:a.fill])
		a.fill -= start
	}
}

// Stats reports complete frames dispatched, spans discarded and buffer
// overflows since construction. Every span of one byte or less between
// terminators counts as discarded, consecutive terminators included.
func (a *Reassembler) Stats() (frames, discarded, overflows uint64) {
	return a.frames, a.discarded, a.overflows
}
