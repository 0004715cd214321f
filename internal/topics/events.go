package topics

import "time"

// Quaternion is an orientation in xyzw order.
type Quaternion struct {
	X, Y, Z, W float64
}

// Odometry is one decoded odometry report from the robot.
type Odometry struct {
	Stamp       time.Time
	Frame       string
	ChildFrame  string
	Linear      float64 // forward velocity, m/s
	Angular     float64 // yaw rate, rad/s
	X, Y        float64 // planar position, meters
	Yaw         float64 // radians
	Orientation Quaternion
}

// Transform is the odom→base frame transform derived from odometry.
type Transform struct {
	Stamp      time.Time
	Frame      string
	ChildFrame string
	X, Y       float64
	Rotation   Quaternion
}

// RangeReading is a single sonar measurement.
type RangeReading struct {
	Stamp       time.Time
	Frame       string
	Range       float64 // meters
	MinRange    float64
	MaxRange    float64
	FieldOfView float64 // radians
}

// GPSFix is a decoded position fix in degrees.
type GPSFix struct {
	Stamp     time.Time
	Frame     string
	Latitude  float64
	Longitude float64
}

// Heading is the fused compass heading.
type Heading struct {
	Stamp time.Time
	Value float64
}

// RawIMU carries uncalibrated gyro and accelerometer readings.
type RawIMU struct {
	Stamp                  time.Time
	Frame                  string
	GyroX, GyroY, GyroZ    float64
	AccelX, AccelY, AccelZ float64
}

// Magnetic is the raw magnetometer vector.
type Magnetic struct {
	Stamp   time.Time
	X, Y, Z float64
}

// Bump reports the state of the front bump sensor.
type Bump struct {
	Stamp   time.Time
	Pressed bool
}

// EncoderState carries the raw drive encoder count and steering position.
type EncoderState struct {
	Stamp time.Time
	Count int16
	Steer int8
}

// IdleCounters is the microcontroller's self-reported load and I2C health.
type IdleCounters struct {
	Stamp       time.Time
	IdleCount   uint16
	I2CFailures uint8
	I2CResets   uint8
}

// Battery carries raw and normalized battery levels.
type Battery struct {
	Stamp    time.Time
	MainRaw  uint8
	MotorRaw uint8
	Main     float64 // 0..1
	Motor    float64 // 0..1
}

// GoalOp distinguishes goal list operations on the wire.
type GoalOp int8

const (
	GoalOpAppend     GoalOp = 0
	GoalOpDelete     GoalOp = 1
	GoalOpSetCurrent GoalOp = 2
)

// GoalUpdate is a goal list change reported by the robot's UI.
type GoalUpdate struct {
	Stamp     time.Time
	Op        GoalOp
	Latitude  float64 // append only
	Longitude float64 // append only
	ID        int32   // delete only
}

// VelocityCommand requests a drive velocity. Angular > 0 turns left.
type VelocityCommand struct {
	Linear  float64 // m/s
	Angular float64 // rad/s
}

// GoalCommand updates the robot's goal list.
type GoalCommand struct {
	Op GoalOp
	ID int32
}

// CompassCal carries magnetometer calibration offsets.
type CompassCal struct {
	X, Y, Z float64
}

// IMUCal carries gyro and accelerometer calibration offsets.
type IMUCal struct {
	GyroX, GyroY, GyroZ    float64
	AccelX, AccelY, AccelZ float64
}

// SteeringTrim adjusts the steering servo center point.
type SteeringTrim struct {
	Offset int8
}

// ShutdownRequest is emitted when the robot asks the host to power off.
type ShutdownRequest struct {
	Stamp time.Time
}

// RawFrame carries frame diagnostics for debug consumers.
type RawFrame struct {
	Hex string
	Len int
}

// HealthLevel grades one health check.
type HealthLevel int

const (
	HealthOK HealthLevel = iota
	HealthWarn
	HealthError
)

func (l HealthLevel) String() string {
	switch l {
	case HealthOK:
		return "ok"
	case HealthWarn:
		return "warn"
	case HealthError:
		return "error"
	}
	return "unknown"
}

// HealthCheck is one named check inside a report.
type HealthCheck struct {
	Name    string
	Level   HealthLevel
	Message string
}

// Health is the periodic link health report.
type Health struct {
	Stamp          time.Time
	IdleCount      uint16
	BytesPerSecond float64
	I2CResets      uint8
	GPSAge         time.Duration
	Checks         []HealthCheck
}
