package transport

import (
	"errors"
	"testing"
)

type shortWriter struct {
	n   int
	err error
}

func (w shortWriter) Read([]byte) (int, error) { return 0, nil }

func (w shortWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.n < len(p) {
		return w.n, nil
	}
	return len(p), nil
}
func (w shortWriter) Close() error { return nil }

func TestWriteFrameFullWrite(t *testing.T) {
	if err := WriteFrame(shortWriter{n: 64}, []byte("C\x00\x00\x00\r")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestWriteFrameShortWriteIsError(t *testing.T) {
	err := WriteFrame(shortWriter{n: 2}, []byte("C\x00\x00\x00\r"))
	if err == nil {
		t.Fatalf("expected error for short write")
	}
}

func TestWriteFrameWrapsTransportError(t *testing.T) {
	boom := errors.New("device gone")
	err := WriteFrame(shortWriter{err: boom}, []byte("H\r"))
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want wrapped %v", err, boom)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	if _, err := Open("", 115200); err == nil {
		t.Fatalf("expected error for empty port name")
	}
	if _, err := Open("/dev/ttyACM0", 0); err == nil {
		t.Fatalf("expected error for zero baud rate")
	}
}
