// Package transport owns the serial link to the robot's microcontroller.
// The link carries an unframed byte stream; framing lives in the wire
// package.
package transport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// readTimeout bounds a single Read so the control loop never blocks on a
// quiet link; an expired read returns zero bytes and no error.
const readTimeout = 5 * time.Millisecond

// bootloaderDelay gives the AVR's serial bootloader time to run after the
// port is opened before any traffic is exchanged.
const bootloaderDelay = 2 * time.Second

// Port is the byte stream the link service reads and writes. Satisfied by
// SerialPort and by in-memory fakes in tests.
type Port interface {
	io.ReadWriteCloser
}

// SerialPort is the real robot link.
type SerialPort struct {
	name string
	port serial.Port
}

// Open opens the serial device and waits out the bootloader. Failure here
// is fatal to the process: without the link there is nothing to bridge.
func Open(name string, baud int) (*SerialPort, error) {
	if name == "" {
		return nil, fmt.Errorf("serial port is empty")
	}
	if baud <= 0 {
		return nil, fmt.Errorf("invalid serial baud rate: %d", baud)
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}

	time.Sleep(bootloaderDelay)

	return &SerialPort{name: name, port: port}, nil
}

func (s *SerialPort) Name() string {
	return s.name
}

// Read returns whatever bytes are available within the read timeout,
// possibly none.
func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialPort) Close() error {
	return s.port.Close()
}

// WriteFrame writes one finished frame and reports a short write as an
// error. The caller does not retry; command mailboxes reschedule their own
// traffic.
func WriteFrame(p Port, frame []byte) error {
	n, err := p.Write(frame)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("short frame write: %d of %d bytes", n, len(frame))
	}
	return nil
}
