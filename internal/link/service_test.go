package link

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/command"
	"github.com/droter/dagny-ros/internal/diag"
	"github.com/droter/dagny-ros/internal/topics"
	"github.com/droter/dagny-ros/internal/wire"
)

type fakeBus struct {
	subs      map[string]bus.Subscription
	published []busMessage
}

type busMessage struct {
	topic string
	msg   any
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]bus.Subscription)}
}

func (b *fakeBus) Publish(topic string, msg any) {
	b.published = append(b.published, busMessage{topic: topic, msg: msg})
}

func (b *fakeBus) Subscribe(topic string) bus.Subscription {
	ch := make(bus.Subscription, 16)
	b.subs[topic] = ch
	return ch
}

func (b *fakeBus) Unsubscribe(bus.Subscription, ...string) {}
func (b *fakeBus) Close() {}

func (b *fakeBus) countTopic(topic string) int {
	n := 0
	for _, m := range b.published {
		if m.topic == topic {
			n++
		}
	}
	return n
}

type scriptPort struct {
	reads   [][]byte
	writes  [][]byte
	readErr error
}

func (p *scriptPort) Read(dst []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.reads) == 0 {
		return 0, nil
	}
	chunk := p.reads[0]
	p.reads = p.reads[1:]
	return copy(dst, chunk), nil
}

func (p *scriptPort) Write(src []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), src...))
	return len(src), nil
}

func (p *scriptPort) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, port *scriptPort, fb *fakeBus, disp *wire.Dispatcher) *Service {
	t.Helper()
	logger := discardLogger()
	if disp == nil {
		disp = wire.NewDispatcher(logger)
	}
	s := New(Config{
		Port:           port,
		Bus:            fb,
		Outbox:         command.NewOutbox(logger),
		Dispatcher:     disp,
		Monitor:        diag.NewMonitor(fb, logger),
		Logger:         logger,
		TickPeriod:     50 * time.Millisecond,
		Heartbeat:      time.Hour,
		CommandTimeout: time.Second,
	})
	now := time.Now()
	s.lastCommand = now
	s.lastHeartbeat = now
	return s
}

func TestStepDispatchesInboundFrames(t *testing.T) {
	fb := newFakeBus()
	logger := discardLogger()
	disp := wire.NewDispatcher(logger)

	decoded := 0
	disp.Handle('X', wire.DecoderFunc(func(r *wire.Reader) error {
		decoded++
		return nil
	}))

	port := &scriptPort{reads: [][]byte{[]byte("Xab\rXcd\r")}}
	s := newTestService(t, port, fb, disp)

	if err := s.step(s.lastCommand); err != nil {
		t.Fatalf("step: %v", err)
	}
	if decoded != 2 {
		t.Fatalf("decoded = %d, want 2", decoded)
	}
	if got := fb.countTopic(topics.RawFrameIn); got != 2 {
		t.Fatalf("raw frame events = %d, want 2", got)
	}
}

func TestStepCoalescesVelocityCommands(t *testing.T) {
	fb := newFakeBus()
	port := &scriptPort{}
	s := newTestService(t, port, fb, nil)

	for i := 1; i <= 3; i++ {
		fb.subs[topics.CommandVelocity] <- topics.VelocityCommand{Linear: float64(i)}
	}
	if err := s.step(s.lastCommand); err != nil {
		t.Fatalf("step: %v", err)
	}

	if len(port.writes) != 1 {
		t.Fatalf("writes = %d, want 1 coalesced velocity frame", len(port.writes))
	}
	frame := port.writes[0]
	if frame[0] != 'C' || len(frame) != 5 {
		t.Fatalf("unexpected frame: % X", frame)
	}
	// little-endian int16 of 3.0 m/s * 12.5
	if frame[1] != 37 || frame[2] != 0 {
		t.Fatalf("speed bytes = [%d %d], want last command (37)", frame[1], frame[2])
	}
	if got := fb.countTopic(topics.RawFrameOut); got != 1 {
		t.Fatalf("raw out events = %d, want 1", got)
	}
}

func TestHeartbeatInterval(t *testing.T) {
	fb := newFakeBus()
	port := &scriptPort{}
	s := newTestService(t, port, fb, nil)
	s.heartbeat = 500 * time.Millisecond

	t0 := s.lastHeartbeat
	if err := s.step(t0.Add(499 * time.Millisecond)); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(port.writes) != 0 {
		t.Fatalf("heartbeat sent early: % X", port.writes)
	}

	if err := s.step(t0.Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(port.writes) != 1 {
		t.Fatalf("writes = %d, want 1 heartbeat", len(port.writes))
	}
	if got := port.writes[0]; len(got) != 2 || got[0] != 'H' || got[1] != wire.Terminator {
		t.Fatalf("heartbeat frame = % X", got)
	}
}

func TestWatchdogStopsMotorsOnce(t *testing.T) {
	fb := newFakeBus()
	port := &scriptPort{}
	s := newTestService(t, port, fb, nil)

	t0 := s.lastCommand
	if err := s.step(t0.Add(1100 * time.Millisecond)); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(port.writes) != 1 {
		t.Fatalf("writes = %d, want 1 stop frame", len(port.writes))
	}
	stop := port.writes[0]
	if stop[0] != 'C' || stop[1] != 0 || stop[2] != 0 || stop[3] != 0 {
		t.Fatalf("stop frame = % X, want zero velocity", stop)
	}

	// silence continues, but the stop is only commanded once
	if err := s.step(t0.Add(1200 * time.Millisecond)); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(port.writes) != 1 {
		t.Fatalf("writes = %d, want no repeat stop", len(port.writes))
	}

	// fresh input re-arms the watchdog
	fb.subs[topics.CommandVelocity] <- topics.VelocityCommand{Linear: 0.8}
	if err := s.step(t0.Add(1300 * time.Millisecond)); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(port.writes) != 2 {
		t.Fatalf("writes = %d, want velocity frame after re-arm", len(port.writes))
	}
	if port.writes[1][1] != 10 {
		t.Fatalf("speed byte = %d, want 10", port.writes[1][1])
	}
}

func TestStepReturnsSerialError(t *testing.T) {
	fb := newFakeBus()
	port := &scriptPort{readErr: errors.New("device unplugged")}
	s := newTestService(t, port, fb, nil)

	if err := s.step(s.lastCommand); err == nil {
		t.Fatal("expected serial read error to propagate")
	}
}
