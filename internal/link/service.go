// Package link runs the serial control loop that pumps bytes between the
// robot board and the message bus.
package link

import (
	"context"
	"log/slog"
	"time"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/command"
	"github.com/droter/dagny-ros/internal/diag"
	"github.com/droter/dagny-ros/internal/topics"
	"github.com/droter/dagny-ros/internal/transport"
	"github.com/droter/dagny-ros/internal/wire"
)

const (
	// rxBufferSize must hold at least two maximum-size frames so a torn
	// frame never forces a drop of the one behind it.
	rxBufferSize = 512

	readChunkSize = 256
)

// Config wires a Service to its collaborators.
type Config struct {
	Port       transport.Port
	Bus        bus.MessageBus
	Outbox     *command.Outbox
	Dispatcher *wire.Dispatcher
	Monitor    *diag.Monitor
	Logger     *slog.Logger

	TickPeriod time.Duration
	Heartbeat  time.Duration
	// CommandTimeout stops the motors when no velocity command arrives for
	// this long. Zero disables the watchdog.
	CommandTimeout time.Duration
}

// Service owns the 20 Hz control loop. Reads, decodes, command draining and
// heartbeats all happen on the loop goroutine; the bus is the only boundary.
type Service struct {
	port    transport.Port
	bus     bus.MessageBus
	outbox  *command.Outbox
	disp    *wire.Dispatcher
	reasm   *wire.Reassembler
	monitor *diag.Monitor
	logger  *slog.Logger

	tick       time.Duration
	heartbeat  time.Duration
	cmdTimeout time.Duration

	velSub     bus.Subscription
	goalSub    bus.Subscription
	compassSub bus.Subscription
	imuSub     bus.Subscription
	trimSub    bus.Subscription

	readBuf []byte

	lastCommand   time.Time
	lastHeartbeat time.Time
	halted        bool

	prevFramingErrors uint64
	prevDecodeErrors  uint64
}

func New(cfg Config) *Service {
	s := &Service{
		port:       cfg.Port,
		bus:        cfg.Bus,
		outbox:     cfg.Outbox,
		disp:       cfg.Dispatcher,
		monitor:    cfg.Monitor,
		logger:     cfg.Logger,
		tick:       cfg.TickPeriod,
		heartbeat:  cfg.Heartbeat,
		cmdTimeout: cfg.CommandTimeout,
		readBuf:    make([]byte, readChunkSize),
	}
	s.reasm = wire.NewReassembler(rxBufferSize, s.onFrame, cfg.Logger)

	s.velSub = cfg.Bus.Subscribe(topics.CommandVelocity)
	s.goalSub = cfg.Bus.Subscribe(topics.CommandGoal)
	s.compassSub = cfg.Bus.Subscribe(topics.CommandCompassCal)
	s.imuSub = cfg.Bus.Subscribe(topics.CommandIMUCal)
	s.trimSub = cfg.Bus.Subscribe(topics.CommandSteeringTrim)

	return s
}

// Run blocks until ctx is cancelled or the serial port fails.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("control loop starting",
		"tick", s.tick, "heartbeat", s.heartbeat, "command_timeout", s.cmdTimeout)

	now := time.Now()
	s.lastCommand = now
	s.lastHeartbeat = now

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdownMotors()
			s.logger.Info("control loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.step(time.Now()); err != nil {
				s.shutdownMotors()
				return err
			}
		}
	}
}

// step runs one loop iteration: ingest serial bytes, collect pending bus
// commands and drain the outbox toward the board.
func (s *Service) step(now time.Time) error {
	if err := s.ingest(); err != nil {
		return err
	}
	s.syncStats()
	s.collectCommands(now)
	s.watchdog(now)

	heartbeatDue := now.Sub(s.lastHeartbeat) >= s.heartbeat
	if heartbeatDue {
		s.lastHeartbeat = now
	}
	s.outbox.Drain(s.send, heartbeatDue)

	return nil
}

// ingest drains everything the port has buffered. The port read timeout is
// short, so an empty line costs a few milliseconds at most.
func (s *Service) ingest() error {
	for {
		n, err := s.port.Read(s.readBuf)
		if err != nil {
			s.logger.Error("serial read failed", "error", err)
			return err
		}
		if n == 0 {
			return nil
		}
		s.monitor.AddBytes(n)
		s.reasm.Feed(s.readBuf[:n])
	}
}

func (s *Service) onFrame(frame []byte) {
	s.monitor.FrameDispatched()
	s.bus.Publish(topics.RawFrameIn, topics.RawFrame{Hex: wire.HexDump(frame), Len: len(frame)})
	s.disp.Dispatch(frame)
}

// syncStats forwards reassembler and dispatcher error counters to the
// health monitor as deltas since the previous tick.
func (s *Service) syncStats() {
	_, discarded, overflows := s.reasm.Stats()
	framing := discarded + overflows
	for i := s.prevFramingErrors; i < framing; i++ {
		s.monitor.FramingError()
	}
	s.prevFramingErrors = framing

	decodeErrs, _ := s.disp.Stats()
	for i := s.prevDecodeErrors; i < decodeErrs; i++ {
		s.monitor.DecodeError()
	}
	s.prevDecodeErrors = decodeErrs
}

// collectCommands empties every command subscription without blocking.
// Repeated commands of one kind coalesce in the outbox mailboxes.
func (s *Service) collectCommands(now time.Time) {
	for {
		select {
		case m := <-s.velSub:
			if cmd, ok := m.(topics.VelocityCommand); ok {
				s.outbox.PutVelocity(cmd)
				s.lastCommand = now
				s.halted = false
			}
		case m := <-s.goalSub:
			if cmd, ok := m.(topics.GoalCommand); ok {
				s.outbox.PutGoal(cmd)
			}
		case m := <-s.compassSub:
			if cal, ok := m.(topics.CompassCal); ok {
				s.outbox.PutCompassCal(cal)
			}
		case m := <-s.imuSub:
			if cal, ok := m.(topics.IMUCal); ok {
				s.outbox.PutIMUCal(cal)
			}
		case m := <-s.trimSub:
			if trim, ok := m.(topics.SteeringTrim); ok {
				s.outbox.PutSteeringTrim(trim)
			}
		default:
			return
		}
	}
}

// watchdog commands a stop when velocity input goes silent.
func (s *Service) watchdog(now time.Time) {
	if s.cmdTimeout <= 0 || s.halted {
		return
	}
	if now.Sub(s.lastCommand) < s.cmdTimeout {
		return
	}
	s.logger.Warn("velocity commands stale, stopping motors", "timeout", s.cmdTimeout)
	s.outbox.PutStop()
	s.halted = true
}

func (s *Service) send(frame []byte) error {
	if err := transport.WriteFrame(s.port, frame); err != nil {
		return err
	}
	s.bus.Publish(topics.RawFrameOut, topics.RawFrame{Hex: wire.HexDump(frame), Len: len(frame)})

	return nil
}

// shutdownMotors makes a best-effort zero-velocity write on the way out.
func (s *Service) shutdownMotors() {
	s.outbox.PutStop()
	s.outbox.Drain(s.send, false)
}

// Close releases the bus subscriptions. Call after Run returns.
func (s *Service) Close() {
	s.bus.Unsubscribe(s.velSub, topics.CommandVelocity)
	s.bus.Unsubscribe(s.goalSub, topics.CommandGoal)
	s.bus.Unsubscribe(s.compassSub, topics.CommandCompassCal)
	s.bus.Unsubscribe(s.imuSub, topics.CommandIMUCal)
	s.bus.Unsubscribe(s.trimSub, topics.CommandSteeringTrim)
}
