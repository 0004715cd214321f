// Package telemetry decodes inbound frames from the robot into typed
// events and publishes them on the message bus. One decoder exists per
// message tag; each reads a fixed field sequence, applies unit conversion
// and publishes exactly one event (the sonar array publishes one per
// sensor). A payload shorter than the field sequence drops the event and
// surfaces one diagnostic from the dispatcher.
package telemetry

import (
	"log/slog"
	"math"
	"time"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/topics"
	"github.com/droter/dagny-ros/internal/wire"
)

const (
	odomFrame = "odom"
	baseFrame = "base_link"
	gpsFrame  = "gps"

	metersPerInch = 0.0254
	microDegrees  = 1e-6

	sonarCount    = 5
	sonarMinIn    = 6
	sonarMaxIn    = 255
	sonarFOV      = 45 * math.Pi / 180
	shutdownLen   = 9
	shutdownByte  = 'Z'
	batteryMax    = 84
	batteryMin    = 70
	mainCutoff    = 60 // below this the main battery reading means wall power
	motorCutoff   = 4  // readings below this mean the motor switch is off
)

var sonarFrames = [sonarCount]string{"sonar_1", "sonar_2", "sonar_3", "sonar_4", "sonar_5"}

// Recorder receives link health observations extracted from telemetry.
type Recorder interface {
	ObserveIdle(idle uint16, i2cFailures, i2cResets uint8)
	ObserveGPSFix()
}

type decoders struct {
	logger *slog.Logger
	bus    bus.MessageBus
	rec    Recorder
}

// Register installs all inbound message decoders into d. The dispatch
// table is immutable once the link service starts.
func Register(d *wire.Dispatcher, b bus.MessageBus, rec Recorder, logger *slog.Logger) {
	s := &decoders{logger: logger, bus: b, rec: rec}
	d.Handle('O', wire.DecoderFunc(s.odometry))
	d.Handle('I', wire.DecoderFunc(s.idle))
	d.Handle('G', wire.DecoderFunc(s.gps))
	d.Handle('S', wire.DecoderFunc(s.sonar))
	d.Handle('U', wire.DecoderFunc(s.heading))
	d.Handle('V', wire.DecoderFunc(s.rawIMU))
	d.Handle('M', wire.DecoderFunc(s.compass))
	d.Handle('L', wire.DecoderFunc(s.goal))
	d.Handle('B', wire.DecoderFunc(s.battery))
	d.Handle(shutdownByte, wire.DecoderFunc(s.shutdown))
}

func yawToQuaternion(yaw float64) topics.Quaternion {
	return topics.Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)}
}

func (s *decoders) odometry(r *wire.Reader) error {
	linear := r.F32()
	angular := r.F32()
	x := r.F32()
	y := r.F32()
	yaw := r.F32()
	bump := r.U8()
	count := r.S16()
	steer := r.S8()
	if err := r.Err(); err != nil {
		return err
	}

	now := time.Now()
	q := yawToQuaternion(float64(yaw))
	s.bus.Publish(topics.TelemetryOdometry, topics.Odometry{
		Stamp:       now,
		Frame:       odomFrame,
		ChildFrame:  baseFrame,
		Linear:      float64(linear),
		Angular:     float64(angular),
		X:           float64(x),
		Y:           float64(y),
		Yaw:         float64(yaw),
		Orientation: q,
	})
	s.bus.Publish(topics.TelemetryTransform, topics.Transform{
		Stamp:      now,
		Frame:      odomFrame,
		ChildFrame: baseFrame,
		X:          float64(x),
		Y:          float64(y),
		Rotation:   q,
	})
	s.bus.Publish(topics.TelemetryBump, topics.Bump{Stamp: now, Pressed: bump != 0})
	s.bus.Publish(topics.TelemetryEncoder, topics.EncoderState{Stamp: now, Count: count, Steer: steer})
	return nil
}

func (s *decoders) idle(r *wire.Reader) error {
	idle := r.U16()
	i2cFail := r.U8()
	i2cResets := r.U8()
	if err := r.Err(); err != nil {
		return err
	}

	s.rec.ObserveIdle(idle, i2cFail, i2cResets)
	s.bus.Publish(topics.TelemetryIdle, topics.IdleCounters{
		Stamp:       time.Now(),
		IdleCount:   idle,
		I2CFailures: i2cFail,
		I2CResets:   i2cResets,
	})
	return nil
}

func (s *decoders) gps(r *wire.Reader) error {
	lat := r.S32()
	lon := r.S32()
	if err := r.Err(); err != nil {
		return err
	}

	s.rec.ObserveGPSFix()
	s.bus.Publish(topics.TelemetryGPS, topics.GPSFix{
		Stamp:     time.Now(),
		Frame:     gpsFrame,
		Latitude:  float64(lat) * microDegrees,
		Longitude: float64(lon) * microDegrees,
	})
	return nil
}

func (s *decoders) sonar(r *wire.Reader) error {
	var inches [sonarCount]uint8
	for i := range inches {
		inches[i] = r.U8()
	}
	if err := r.Err(); err != nil {
		return err
	}

	now := time.Now()
	for i, in := range inches {
		s.bus.Publish(topics.TelemetryRange, topics.RangeReading{
			Stamp:       now,
			Frame:       sonarFrames[i],
			Range:       float64(in) * metersPerInch,
			MinRange:    sonarMinIn * metersPerInch,
			MaxRange:    sonarMaxIn * metersPerInch,
			FieldOfView: sonarFOV,
		})
	}
	return nil
}

func (s *decoders) heading(r *wire.Reader) error {
	r.F32()
	r.F32()
	z := r.F32()
	if err := r.Err(); err != nil {
		return err
	}

	s.bus.Publish(topics.TelemetryHeading, topics.Heading{Stamp: time.Now(), Value: float64(z)})
	return nil
}

func (s *decoders) rawIMU(r *wire.Reader) error {
	gx := r.F32()
	gy := r.F32()
	gz := r.F32()
	ax := r.F32()
	ay := r.F32()
	az := r.F32()
	if err := r.Err(); err != nil {
		return err
	}

	s.bus.Publish(topics.TelemetryIMU, topics.RawIMU{
		Stamp:  time.Now(),
		Frame:  baseFrame,
		GyroX:  float64(gx),
		GyroY:  float64(gy),
		GyroZ:  float64(gz),
		AccelX: float64(ax),
		AccelY: float64(ay),
		AccelZ: float64(az),
	})
	return nil
}

func (s *decoders) compass(r *wire.Reader) error {
	mx := r.F32()
	my := r.F32()
	mz := r.F32()
	if err := r.Err(); err != nil {
		return err
	}

	s.bus.Publish(topics.TelemetryMagnetic, topics.Magnetic{
		Stamp: time.Now(),
		X:     float64(mx),
		Y:     float64(my),
		Z:     float64(mz),
	})
	return nil
}

func (s *decoders) goal(r *wire.Reader) error {
	op := topics.GoalOp(r.S8())
	update := topics.GoalUpdate{Stamp: time.Now(), Op: op}
	switch op {
	case topics.GoalOpAppend:
		update.Latitude = float64(r.S32()) * microDegrees
		update.Longitude = float64(r.S32()) * microDegrees
	case topics.GoalOpDelete:
		update.ID = r.S32()
	default:
		if err := r.Err(); err != nil {
			return err
		}
		s.logger.Warn("unknown goal update operation", "op", int8(op))
		return nil
	}
	if err := r.Err(); err != nil {
		return err
	}

	switch op {
	case topics.GoalOpAppend:
		s.logger.Info("goal appended", "lat", update.Latitude, "lon", update.Longitude)
	case topics.GoalOpDelete:
		s.logger.Info("goal removed", "id", update.ID)
	}
	s.bus.Publish(topics.TelemetryGoalInput, update)
	return nil
}

func normalizeBattery(raw uint8) float64 {
	level := (float64(raw) - batteryMin) / (batteryMax - batteryMin)
	return math.Min(math.Max(level, 0), 1)
}

func (s *decoders) battery(r *wire.Reader) error {
	main := r.U8()
	motor := r.U8()
	if err := r.Err(); err != nil {
		return err
	}

	if main > batteryMax {
		s.logger.Warn("main battery above maximum", "raw", main)
	}
	if main < batteryMin && main > mainCutoff {
		s.logger.Warn("main battery low", "raw", main)
	}
	if motor > batteryMax {
		s.logger.Warn("motor battery above maximum", "raw", motor)
	}
	if motor < batteryMin && motor > motorCutoff {
		s.logger.Warn("motor battery low", "raw", motor)
	}

	ev := topics.Battery{
		Stamp:    time.Now(),
		MainRaw:  main,
		MotorRaw: motor,
		Motor:    normalizeBattery(motor),
	}
	if main <= mainCutoff {
		ev.Main = 1.0 // wall power
	} else {
		ev.Main = normalizeBattery(main)
	}
	s.bus.Publish(topics.TelemetryBattery, ev)
	return nil
}

func (s *decoders) shutdown(r *wire.Reader) error {
	// the request is a fixed sentinel: nine 'Z' bytes including the tag
	valid := r.Remaining() == shutdownLen-1
	for r.Remaining() > 0 {
		if r.U8() != shutdownByte {
			valid = false
		}
	}
	if !valid {
		s.logger.Warn("malformed shutdown request")
		return nil
	}

	s.logger.Info("received shutdown request")
	s.bus.Publish(topics.SystemShutdown, topics.ShutdownRequest{Stamp: time.Now()})
	return nil
}
