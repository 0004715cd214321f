// Command steertest is a bench bring-up tool. It drives the steering servo
// and motor directly in wire units, bypassing the daemon, and echoes
// whatever the board sends back as hex.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/droter/dagny-ros/internal/config"
	"github.com/droter/dagny-ros/internal/transport"
	"github.com/droter/dagny-ros/internal/wire"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run steertest", "error", err)
		os.Exit(1)
	}
}

func run() error {
	portName := flag.String("port", config.DefaultSerialPort, "serial device")
	baud := flag.Int("baud", config.DefaultSerialBaud, "baud rate")
	steer := flag.Int("steer", 0, "steering counts, -120 to 120")
	speed := flag.Int("speed", 0, "speed in wire units")
	rate := flag.Duration("rate", 100*time.Millisecond, "command period")
	echo := flag.Bool("echo", false, "print inbound frames as hex")
	flag.Parse()

	if *steer < -120 || *steer > 120 {
		return fmt.Errorf("steer %d out of range [-120, 120]", *steer)
	}
	if *speed < -32768 || *speed > 32767 {
		return fmt.Errorf("speed %d out of range", *speed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, err := transport.Open(*portName, *baud)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", *portName, err)
	}
	defer func() { _ = port.Close() }()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *echo {
		go echoFrames(ctx, port, logger)
	}

	pkt := wire.NewPacket('C', 8)
	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	logger.Info("driving", "steer", *steer, "speed", *speed, "rate", *rate)
	for {
		select {
		case <-ctx.Done():
			// leave the board stopped
			sendDrive(port, pkt, 0, 0, logger)
			return nil
		case <-ticker.C:
			sendDrive(port, pkt, int16(*speed), int8(*steer), logger)
		}
	}
}

func sendDrive(port transport.Port, pkt *wire.Packet, speed int16, steer int8, logger *slog.Logger) {
	pkt.Reset()
	pkt.AppendS16(speed)
	pkt.AppendS8(steer)
	if err := pkt.Finish(); err != nil {
		logger.Error("encode drive frame", "error", err)
		return
	}
	if err := transport.WriteFrame(port, pkt.Bytes()); err != nil {
		logger.Error("write drive frame", "error", err)
	}
}

func echoFrames(ctx context.Context, port transport.Port, logger *slog.Logger) {
	reasm := wire.NewReassembler(512, func(frame []byte) {
		logger.Info("frame", "tag", string(frame[0]), "hex", wire.HexDump(frame))
	}, logger)

	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			logger.Error("serial read failed", "error", err)
			return
		}
		if n > 0 {
			reasm.Feed(buf[:n])
		}
	}
}
