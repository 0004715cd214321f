package wire

import (
	"fmt"
	"log/slog"
	"strings"
)

// Decoder interprets the payload of one inbound frame. Implementations
// validate length by reading their fixed field sequence and checking
// Reader.Err; on error no event may be published.
type Decoder interface {
	Decode(r *Reader) error
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(r *Reader) error

func (f DecoderFunc) Decode(r *Reader) error {
	return f(r)
}

// Dispatcher routes complete frames to per-tag decoders. The table is
// populated once before the control loop starts and is never written
// afterwards. Tags without a decoder are logged as a hex dump and skipped.
type Dispatcher struct {
	table  [256]Decoder
	logger *slog.Logger

	decodeErrors uint64
	unknownTags  uint64
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Handle registers dec for tag. Startup only; not safe once Dispatch runs.
func (d *Dispatcher) Handle(tag byte, dec Decoder) {
	d.table[tag] = dec
}

// Dispatch decodes one frame (frame[0] is the tag, the rest is payload).
// Decode failures are reported here and dropped; they never propagate.
func (d *Dispatcher) Dispatch(frame []byte) {
	if len(frame) == 0 {
		return
	}
	tag := frame[0]
	dec := d.table[tag]
	if dec == nil {
		d.unknownTags++
		d.logger.Info("no decoder for message",
			"tag", fmt.Sprintf("%02X", tag), "len", len(frame), "payload", HexDump(frame[1:]))
		return
	}
	if err := dec.Decode(NewReader(frame[1:])); err != nil {
		d.decodeErrors++
		d.logger.Warn("decode failed",
			"tag", fmt.Sprintf("%02X", tag), "len", len(frame), "error", err)
	}
}

// Stats reports decode failures and unknown-tag frames since construction.
func (d *Dispatcher) Stats() (decodeErrors, unknownTags uint64) {
	return d.decodeErrors, d.unknownTags
}

// HexDump renders payload bytes for log and debug output.
func HexDump(payload []byte) string {
	var b strings.Builder
	for i, c := range payload {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "0x%02X", c)
	}
	return b.String()
}
