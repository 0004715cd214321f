package telemetry

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/topics"
	"github.com/droter/dagny-ros/internal/wire"
)

type published struct {
	topic string
	msg   any
}

type captureBus struct {
	events []published
}

func (b *captureBus) Publish(topic string, msg any) {
	b.events = append(b.events, published{topic: topic, msg: msg})
}
func (b *captureBus) Subscribe(string) bus.Subscription { return nil }
func (b *captureBus) Unsubscribe(bus.Subscription, ...string) {}
func (b *captureBus) Close() {}

func (b *captureBus) byTopic(topic string) []any {
	var out []any
	for _, e := range b.events {
		if e.topic == topic {
			out = append(out, e.msg)
		}
	}
	return out
}

type nopRecorder struct {
	idle     int
	gpsFixes int
}

func (r *nopRecorder) ObserveIdle(uint16, uint8, uint8) { r.idle++ }
func (r *nopRecorder) ObserveGPSFix() { r.gpsFixes++ }

func newHarness() (*wire.Dispatcher, *captureBus, *nopRecorder) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := &captureBus{}
	rec := &nopRecorder{}
	d := wire.NewDispatcher(logger)
	Register(d, b, rec, logger)
	return d, b, rec
}

func appendF32(frame []byte, v float32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	return append(frame, buf[:]...)
}

func appendS32(frame []byte, v int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return append(frame, buf[:]...)
}

func TestOdometryFrameEndToEnd(t *testing.T) {
	d, b, _ := newHarness()

	frame := []byte{'O'}
	for _, v := range []float32{1.0, 0.0, 2.5, 0.0, 0.0} {
		frame = appendF32(frame, v)
	}
	frame = append(frame, 0)          // bump
	frame = append(frame, 100, 0)     // quad count, little endian
	frame = append(frame, 0)          // steer
	d.Dispatch(frame)

	odos := b.byTopic(topics.TelemetryOdometry)
	if len(odos) != 1 {
		t.Fatalf("odometry events: got %d want 1", len(odos))
	}
	odo := odos[0].(topics.Odometry)
	if odo.Linear != 1.0 || odo.Angular != 0.0 {
		t.Fatalf("twist: linear=%v angular=%v", odo.Linear, odo.Angular)
	}
	if odo.X != 2.5 || odo.Y != 0.0 || odo.Yaw != 0.0 {
		t.Fatalf("pose: x=%v y=%v yaw=%v", odo.X, odo.Y, odo.Yaw)
	}
	if odo.Orientation.W != 1.0 || odo.Orientation.Z != 0.0 {
		t.Fatalf("orientation: %+v", odo.Orientation)
	}

	bumps := b.byTopic(topics.TelemetryBump)
	if len(bumps) != 1 || bumps[0].(topics.Bump).Pressed {
		t.Fatalf("bump events: %v", bumps)
	}

	encs := b.byTopic(topics.TelemetryEncoder)
	if len(encs) != 1 {
		t.Fatalf("encoder events: got %d want 1", len(encs))
	}
	enc := encs[0].(topics.EncoderState)
	if enc.Count != 100 || enc.Steer != 0 {
		t.Fatalf("encoder state: %+v", enc)
	}

	if tfs := b.byTopic(topics.TelemetryTransform); len(tfs) != 1 {
		t.Fatalf("transform events: got %d want 1", len(tfs))
	}
}

func TestGPSFrameConvertsMicrodegrees(t *testing.T) {
	d, b, rec := newHarness()

	frame := []byte{'G'}
	frame = appendS32(frame, 47620400)
	frame = appendS32(frame, -122349900)
	d.Dispatch(frame)

	fixes := b.byTopic(topics.TelemetryGPS)
	if len(fixes) != 1 {
		t.Fatalf("gps events: got %d want 1", len(fixes))
	}
	fix := fixes[0].(topics.GPSFix)
	if math.Abs(fix.Latitude-47.6204) > 1e-9 {
		t.Fatalf("latitude: got %v", fix.Latitude)
	}
	if math.Abs(fix.Longitude-(-122.3499)) > 1e-9 {
		t.Fatalf("longitude: got %v", fix.Longitude)
	}
	if rec.gpsFixes != 1 {
		t.Fatalf("gps freshness not recorded")
	}
}

func TestSonarFrameFansOutPerSensor(t *testing.T) {
	d, b, _ := newHarness()

	d.Dispatch([]byte{'S', 10, 20, 30, 40, 255})

	readings := b.byTopic(topics.TelemetryRange)
	if len(readings) != 5 {
		t.Fatalf("range events: got %d want 5", len(readings))
	}
	wantRanges := []float64{0.254, 0.508, 0.762, 1.016, 6.477}
	for i, msg := range readings {
		rr := msg.(topics.RangeReading)
		if math.Abs(rr.Range-wantRanges[i]) > 1e-9 {
			t.Fatalf("sensor %d range: got %v want %v", i, rr.Range, wantRanges[i])
		}
		if math.Abs(rr.MinRange-0.1524) > 1e-9 || math.Abs(rr.MaxRange-6.477) > 1e-9 {
			t.Fatalf("sensor %d limits: min=%v max=%v", i, rr.MinRange, rr.MaxRange)
		}
		if rr.Frame != sonarFrames[i] {
			t.Fatalf("sensor %d frame: got %q", i, rr.Frame)
		}
	}
}

func TestShortPayloadPublishesNothing(t *testing.T) {
	d, b, _ := newHarness()

	d.Dispatch([]byte{'O', 0x00, 0x00, 0x80}) // truncated odometry
	if len(b.events) != 0 {
		t.Fatalf("events published from short payload: %v", b.events)
	}
	decodeErrors, _ := d.Stats()
	if decodeErrors != 1 {
		t.Fatalf("decode errors: got %d want 1", decodeErrors)
	}
}

func TestHeadingUsesZComponent(t *testing.T) {
	d, b, _ := newHarness()

	frame := []byte{'U'}
	frame = appendF32(frame, 9)
	frame = appendF32(frame, 8)
	frame = appendF32(frame, 1.25)
	d.Dispatch(frame)

	headings := b.byTopic(topics.TelemetryHeading)
	if len(headings) != 1 || headings[0].(topics.Heading).Value != 1.25 {
		t.Fatalf("heading events: %v", headings)
	}
}

func TestGoalAppendAndDelete(t *testing.T) {
	d, b, _ := newHarness()

	frame := []byte{'L', byte(topics.GoalOpAppend)}
	frame = appendS32(frame, 47620400)
	frame = appendS32(frame, -122349900)
	d.Dispatch(frame)

	frame = []byte{'L', byte(topics.GoalOpDelete)}
	frame = appendS32(frame, 7)
	d.Dispatch(frame)

	updates := b.byTopic(topics.TelemetryGoalInput)
	if len(updates) != 2 {
		t.Fatalf("goal updates: got %d want 2", len(updates))
	}
	add := updates[0].(topics.GoalUpdate)
	if add.Op != topics.GoalOpAppend || math.Abs(add.Latitude-47.6204) > 1e-9 {
		t.Fatalf("append update: %+v", add)
	}
	del := updates[1].(topics.GoalUpdate)
	if del.Op != topics.GoalOpDelete || del.ID != 7 {
		t.Fatalf("delete update: %+v", del)
	}
}

func TestShutdownSentinelValidation(t *testing.T) {
	d, b, _ := newHarness()

	d.Dispatch([]byte("ZZZZZZZZZ"))
	if len(b.byTopic(topics.SystemShutdown)) != 1 {
		t.Fatalf("valid sentinel did not publish shutdown")
	}

	d.Dispatch([]byte("ZZZZxZZZZ"))
	d.Dispatch([]byte("ZZZ"))
	if len(b.byTopic(topics.SystemShutdown)) != 1 {
		t.Fatalf("malformed sentinel published shutdown")
	}
}

func TestBatteryNormalization(t *testing.T) {
	d, b, _ := newHarness()

	d.Dispatch([]byte{'B', 77, 50}) // main mid-range, motor switch off
	evs := b.byTopic(topics.TelemetryBattery)
	if len(evs) != 1 {
		t.Fatalf("battery events: got %d want 1", len(evs))
	}
	bat := evs[0].(topics.Battery)
	if math.Abs(bat.Main-0.5) > 1e-9 {
		t.Fatalf("main level: got %v want 0.5", bat.Main)
	}
	if bat.Motor != 0 {
		t.Fatalf("motor level: got %v want 0", bat.Motor)
	}

	d.Dispatch([]byte{'B', 55, 80}) // main on wall power
	bat = b.byTopic(topics.TelemetryBattery)[1].(topics.Battery)
	if bat.Main != 1.0 {
		t.Fatalf("wall power main level: got %v want 1", bat.Main)
	}
}
