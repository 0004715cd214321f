package diag

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	serialBytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagny",
		Subsystem: "link",
		Name:      "bytes_read_total",
		Help:      "Bytes read from the robot serial link.",
	})
	framesDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagny",
		Subsystem: "link",
		Name:      "frames_total",
		Help:      "Complete frames dispatched to decoders.",
	})
	framingErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagny",
		Subsystem: "link",
		Name:      "framing_errors_total",
		Help:      "Framing errors: short spans discarded as line noise and stream buffer overflows without a frame terminator.",
	})
	decodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagny",
		Subsystem: "link",
		Name:      "decode_errors_total",
		Help:      "Frames whose payload was shorter than the decoder required.",
	})
	bandwidthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dagny",
		Subsystem: "link",
		Name:      "bandwidth_bytes_per_second",
		Help:      "Windowed inbound serial bandwidth estimate.",
	})
	idleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dagny",
		Subsystem: "avr",
		Name:      "idle_count",
		Help:      "Microcontroller idle loop counter; low values mean high load.",
	})
	i2cResetsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dagny",
		Subsystem: "avr",
		Name:      "i2c_resets",
		Help:      "I2C bus resets reported by the microcontroller.",
	})
	gpsAgeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dagny",
		Subsystem: "gps",
		Name:      "fix_age_seconds",
		Help:      "Seconds since the last GPS fix was decoded.",
	})
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			serialBytesRead,
			framesDispatched,
			framingErrors,
			decodeErrors,
			bandwidthGauge,
			idleGauge,
			i2cResetsGauge,
			gpsAgeGauge,
		)
	})
}

// MetricsHandler exposes the process metrics for scraping.
func MetricsHandler() http.Handler {
	registerMetrics()
	return promhttp.Handler()
}
