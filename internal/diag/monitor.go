// Package diag tracks link and microcontroller health and publishes
// periodic reports: load, bandwidth, I2C resets and GPS freshness, graded
// with the thresholds the robot has always been judged by.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/droter/dagny-ros/internal/bus"
	"github.com/droter/dagny-ros/internal/topics"
)

const (
	// idle counts below these mean the AVR is starved for cycles
	idleErrorBelow = 200
	idleWarnBelow  = 400

	// expected inbound byte rate window
	bandwidthLowBelow  = 1000
	bandwidthHighAbove = 1500

	i2cResetErrorAt = 5

	gpsStaleAfter = 1100 * time.Millisecond
)

// Monitor accumulates health observations from the link service and
// telemetry decoders. All methods are safe for concurrent use.
type Monitor struct {
	logger *slog.Logger
	bus    bus.MessageBus

	mu          sync.Mutex
	windowBytes int
	windowStart time.Time
	bytesPerSec float64
	idleCount   uint16
	i2cFailures uint8
	i2cResets   uint8
	lastGPS     time.Time
	sawData     bool
}

func NewMonitor(b bus.MessageBus, logger *slog.Logger) *Monitor {
	registerMetrics()
	return &Monitor{
		logger:      logger,
		bus:         b,
		windowStart: time.Now(),
	}
}

// AddBytes records n bytes read from the link.
func (m *Monitor) AddBytes(n int) {
	if n <= 0 {
		return
	}
	serialBytesRead.Add(float64(n))
	m.mu.Lock()
	m.windowBytes += n
	m.sawData = true
	m.mu.Unlock()
}

// FrameDispatched records one complete inbound frame.
func (m *Monitor) FrameDispatched() {
	framesDispatched.Inc()
}

// FramingError records a discarded noise span or a stream buffer overflow.
func (m *Monitor) FramingError() {
	framingErrors.Inc()
}

// DecodeError records a frame dropped for a short payload.
func (m *Monitor) DecodeError() {
	decodeErrors.Inc()
}

// ObserveIdle records the AVR's self-reported load counters.
func (m *Monitor) ObserveIdle(idle uint16, i2cFailures, i2cResets uint8) {
	idleGauge.Set(float64(idle))
	i2cResetsGauge.Set(float64(i2cResets))
	m.mu.Lock()
	m.idleCount = idle
	m.i2cFailures = i2cFailures
	m.i2cResets = i2cResets
	m.mu.Unlock()
}

// ObserveGPSFix marks the GPS stream as fresh.
func (m *Monitor) ObserveGPSFix() {
	m.mu.Lock()
	m.lastGPS = time.Now()
	m.mu.Unlock()
}

// Start publishes a health report on the bus every interval until ctx ends.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := m.Report()
				for _, c := range report.Checks {
					if c.Level == topics.HealthError {
						m.logger.Warn("health check failing", "check", c.Name, "message", c.Message)
					}
				}
				m.bus.Publish(topics.HealthReport, report)
			}
		}
	}()
}

// Report snapshots current health, rolling the bandwidth window.
func (m *Monitor) Report() topics.Health {
	now := time.Now()

	m.mu.Lock()
	elapsed := now.Sub(m.windowStart)
	if elapsed > 0 {
		m.bytesPerSec = float64(m.windowBytes) / elapsed.Seconds()
	}
	m.windowBytes = 0
	m.windowStart = now

	report := topics.Health{
		Stamp:          now,
		IdleCount:      m.idleCount,
		BytesPerSecond: m.bytesPerSec,
		I2CResets:      m.i2cResets,
	}
	if !m.lastGPS.IsZero() {
		report.GPSAge = now.Sub(m.lastGPS)
	}
	sawData := m.sawData
	lastGPS := m.lastGPS
	m.mu.Unlock()

	bandwidthGauge.Set(report.BytesPerSecond)
	if !lastGPS.IsZero() {
		gpsAgeGauge.Set(report.GPSAge.Seconds())
	}

	report.Checks = []topics.HealthCheck{
		idleCheck(report.IdleCount),
		bandwidthCheck(report.BytesPerSecond, sawData),
		i2cCheck(report.I2CResets),
		gpsCheck(lastGPS, report.GPSAge),
	}
	return report
}

func idleCheck(idle uint16) topics.HealthCheck {
	c := topics.HealthCheck{Name: "avr_load"}
	switch {
	case idle < idleErrorBelow:
		c.Level = topics.HealthError
		c.Message = "AVR too busy"
	case idle < idleWarnBelow:
		c.Level = topics.HealthWarn
		c.Message = "AVR load high"
	default:
		c.Level = topics.HealthOK
		c.Message = "AVR load normal"
	}
	return c
}

func bandwidthCheck(bytesPerSec float64, sawData bool) topics.HealthCheck {
	c := topics.HealthCheck{Name: "avr_bandwidth"}
	switch {
	case !sawData || bytesPerSec == 0:
		c.Level = topics.HealthError
		c.Message = "no AVR data"
	case bytesPerSec < bandwidthLowBelow:
		c.Level = topics.HealthWarn
		c.Message = "low AVR bandwidth"
	case bytesPerSec > bandwidthHighAbove:
		c.Level = topics.HealthWarn
		c.Message = "high AVR bandwidth"
	default:
		c.Level = topics.HealthOK
		c.Message = "AVR bandwidth normal"
	}
	return c
}

func i2cCheck(resets uint8) topics.HealthCheck {
	c := topics.HealthCheck{Name: "i2c"}
	switch {
	case resets == 0:
		c.Level = topics.HealthOK
		c.Message = "no I2C resets"
	case resets < i2cResetErrorAt:
		c.Level = topics.HealthWarn
		c.Message = fmt.Sprintf("%d I2C resets", resets)
	default:
		c.Level = topics.HealthError
		c.Message = fmt.Sprintf("%d I2C resets", resets)
	}
	return c
}

func gpsCheck(lastGPS time.Time, age time.Duration) topics.HealthCheck {
	c := topics.HealthCheck{Name: "gps"}
	switch {
	case lastGPS.IsZero():
		c.Level = topics.HealthWarn
		c.Message = "no GPS fix yet"
	case age < gpsStaleAfter:
		c.Level = topics.HealthOK
		c.Message = "GPS fix good"
	default:
		c.Level = topics.HealthWarn
		c.Message = "GPS out of date"
	}
	return c
}
