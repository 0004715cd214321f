// Package steering maps a commanded turn radius onto the steering servo's
// count scale.
package steering

import "math"

// MaxCounts is the servo's physical travel limit in either direction.
// Encoded steering values must be clamped to [-MaxCounts, MaxCounts].
const MaxCounts = 120

const (
	// axle-to-axle distance, meters
	wheelbase = 0.28
	// servo calibration: counts of travel per degree of wheel angle
	countsPerDegree = 4.0
)

// RadiusToSteer converts a non-negative turn radius in meters into unsigned
// servo counts. The mapping is monotonic in radius and saturates at the
// servo's travel: radius 0 pins the wheels to full lock, an infinite radius
// is straight ahead. The caller assigns sign from turn direction and clamps
// with Clamp before encoding.
func RadiusToSteer(radius float64) int16 {
	if math.IsInf(radius, 1) {
		return 0
	}
	if radius < 0 {
		radius = -radius
	}
	deg := math.Atan2(wheelbase, radius) * 180 / math.Pi
	counts := math.Round(deg * countsPerDegree)
	if counts > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(counts)
}

// Clamp bounds a signed steering value to the servo's travel.
func Clamp(counts int16) int8 {
	if counts < -MaxCounts {
		return -MaxCounts
	}
	if counts > MaxCounts {
		return MaxCounts
	}
	return int8(counts)
}
