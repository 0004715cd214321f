package command

import (
	"log/slog"
	"math"

	"github.com/droter/dagny-ros/internal/steering"
	"github.com/droter/dagny-ros/internal/topics"
	"github.com/droter/dagny-ros/internal/wire"
)

// speedScale converts m/s into the AVR's speed units (ticks/sec / 10 at
// 0.08 m per tick: 1/0.08 = 12.5).
const speedScale = 12.5

// packet capacities cover the largest payload each command ever carries,
// with headroom so the wire format can grow without reallocating
const (
	velocityCap   = 12
	goalCap       = 32
	compassCalCap = 32
	imuCalCap     = 64
	trimCap       = 8
	heartbeatCap  = 8
)

// driveCommand is a velocity command after the domain transform, in wire
// units.
type driveCommand struct {
	speed int16
	steer int8
}

// SendFunc transmits one finished frame. A short write is the transport's
// problem to report; the outbox never retries.
type SendFunc func(frame []byte) error

// Outbox owns one mailbox and one reusable packet per outbound command
// kind. Producers fill mailboxes from any goroutine; the control loop
// drains them once per tick in a fixed order. Packets are allocated once
// here and reused for the life of the process.
type Outbox struct {
	logger *slog.Logger

	velocity   Mailbox[driveCommand]
	goal       Mailbox[topics.GoalCommand]
	compassCal Mailbox[topics.CompassCal]
	imuCal     Mailbox[topics.IMUCal]
	trim       Mailbox[topics.SteeringTrim]

	velocityPkt   *wire.Packet
	goalPkt       *wire.Packet
	compassCalPkt *wire.Packet
	imuCalPkt     *wire.Packet
	trimPkt       *wire.Packet
	heartbeatPkt  *wire.Packet
}

func NewOutbox(logger *slog.Logger) *Outbox {
	return &Outbox{
		logger:        logger,
		velocityPkt:   wire.NewPacket('C', velocityCap),
		goalPkt:       wire.NewPacket('L', goalCap),
		compassCalPkt: wire.NewPacket('O', compassCalCap),
		imuCalPkt:     wire.NewPacket('I', imuCalCap),
		trimPkt:       wire.NewPacket('S', trimCap),
		heartbeatPkt:  wire.NewPacket('H', heartbeatCap),
	}
}

// PutVelocity transforms a velocity command into wire units and stores it.
// Angular rate zero steers straight ahead regardless of speed. A positive
// angular rate is a left turn, which the servo encodes as negative counts.
func (o *Outbox) PutVelocity(cmd topics.VelocityCommand) {
	var steer int8
	if cmd.Angular != 0 {
		radius := math.Abs(cmd.Linear / cmd.Angular)
		counts := steering.RadiusToSteer(radius)
		steer = steering.Clamp(counts)
		if cmd.Angular > 0 {
			steer = -steer
		}
	}
	o.velocity.Put(driveCommand{
		speed: int16(cmd.Linear * speedScale),
		steer: steer,
	})
}

// PutStop stores an all-zero drive command, bypassing the transform.
func (o *Outbox) PutStop() {
	o.velocity.Put(driveCommand{})
}

func (o *Outbox) PutGoal(cmd topics.GoalCommand) {
	o.goal.Put(cmd)
}

func (o *Outbox) PutCompassCal(cal topics.CompassCal) {
	o.compassCal.Put(cal)
}

func (o *Outbox) PutIMUCal(cal topics.IMUCal) {
	o.imuCal.Put(cal)
}

func (o *Outbox) PutSteeringTrim(trim topics.SteeringTrim) {
	o.trim.Put(trim)
}

// Drain transmits every pending command in fixed order: velocity, goal,
// compass calibration, IMU calibration, steering trim, then a heartbeat if
// one is due. Send failures are reported and the value is lost for this
// tick; a later mailbox write schedules its own retransmission.
func (o *Outbox) Drain(send SendFunc, heartbeatDue bool) {
	if cmd, ok := o.velocity.Take(); ok {
		o.velocityPkt.Reset()
		o.velocityPkt.AppendS16(cmd.speed)
		o.velocityPkt.AppendS8(cmd.steer)
		o.transmit(o.velocityPkt, send, "velocity")
	}

	if cmd, ok := o.goal.Take(); ok {
		o.goalPkt.Reset()
		o.goalPkt.AppendU8(uint8(cmd.Op))
		o.goalPkt.AppendS32(cmd.ID)
		o.transmit(o.goalPkt, send, "goal")
	}

	if cal, ok := o.compassCal.Take(); ok {
		o.compassCalPkt.Reset()
		o.compassCalPkt.AppendF32(float32(cal.X))
		o.compassCalPkt.AppendF32(float32(cal.Y))
		o.compassCalPkt.AppendF32(float32(cal.Z))
		o.transmit(o.compassCalPkt, send, "compass_cal")
	}

	if cal, ok := o.imuCal.Take(); ok {
		o.imuCalPkt.Reset()
		o.imuCalPkt.AppendF32(float32(cal.GyroX))
		o.imuCalPkt.AppendF32(float32(cal.GyroY))
		o.imuCalPkt.AppendF32(float32(cal.GyroZ))
		o.imuCalPkt.AppendF32(float32(cal.AccelX))
		o.imuCalPkt.AppendF32(float32(cal.AccelY))
		o.imuCalPkt.AppendF32(float32(cal.AccelZ))
		o.transmit(o.imuCalPkt, send, "imu_cal")
	}

	if trim, ok := o.trim.Take(); ok {
		o.trimPkt.Reset()
		o.trimPkt.AppendS8(trim.Offset)
		o.transmit(o.trimPkt, send, "steering_trim")
	}

	if heartbeatDue {
		o.heartbeatPkt.Reset()
		o.transmit(o.heartbeatPkt, send, "heartbeat")
	}
}

func (o *Outbox) transmit(p *wire.Packet, send SendFunc, kind string) {
	if err := p.Finish(); err != nil {
		o.logger.Error("encode command failed", "kind", kind, "error", err)
		return
	}
	if err := send(p.Bytes()); err != nil {
		o.logger.Error("send command failed", "kind", kind, "error", err)
	}
}
