// Package topics names the message bus topics exchanged between the serial
// link service and the rest of the process, and defines the event types
// carried on them.
package topics

const (
	TelemetryOdometry  = "telemetry.odometry"
	TelemetryTransform = "telemetry.transform"
	TelemetryRange     = "telemetry.range"
	TelemetryGPS       = "telemetry.gps"
	TelemetryHeading   = "telemetry.heading"
	TelemetryIMU       = "telemetry.imu"
	TelemetryMagnetic  = "telemetry.magnetic"
	TelemetryBump      = "telemetry.bump"
	TelemetryEncoder   = "telemetry.encoder"
	TelemetryIdle      = "telemetry.idle"
	TelemetryBattery   = "telemetry.battery"
	TelemetryGoalInput = "telemetry.goal_input"

	CommandVelocity     = "command.velocity"
	CommandGoal         = "command.goal"
	CommandCompassCal   = "command.compass_cal"
	CommandIMUCal       = "command.imu_cal"
	CommandSteeringTrim = "command.steering_trim"

	SystemShutdown = "system.shutdown"
	HealthReport   = "health.report"

	RawFrameIn  = "raw.frame.in"
	RawFrameOut = "raw.frame.out"
)
