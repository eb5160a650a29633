package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for baro_readings_total.
const (
	ResultOK          = "ok"
	ResultIOError     = "io_error"
	ResultTimeout     = "timeout"
	ResultAbsent      = "absent"
	ResultCalibration = "calibration"
	ResultError       = "error"
)

// Metrics are the sampler's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	readings    *prometheus.CounterVec
	reinits     *prometheus.CounterVec
	pressure    *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	altitude    *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baro_readings_total",
			Help: "Sampling attempts by sensor and result.",
		}, []string{"sensor", "result"}),
		reinits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baro_reinit_total",
			Help: "Sensor re-initializations after repeated failures.",
		}, []string{"sensor"}),
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "baro_pressure_hpa",
			Help: "Last compensated pressure.",
		}, []string{"sensor"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "baro_temperature_celsius",
			Help: "Last compensated temperature.",
		}, []string{"sensor"}),
		altitude: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "baro_altitude_meters",
			Help: "Last pressure altitude.",
		}, []string{"sensor"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baro_read_duration_seconds",
			Help:    "Time to take one reading, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"sensor"}),
	}
	reg.MustRegister(m.readings, m.reinits, m.pressure, m.temperature, m.altitude, m.duration)
	return m
}

func (m *Metrics) observe(r Reading, result string, seconds float64) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(r.Source, result).Inc()
	if result == ResultAbsent {
		return
	}
	m.duration.WithLabelValues(r.Source).Observe(seconds)
	if r.Valid {
		m.pressure.WithLabelValues(r.Source).Set(r.Sample.PressureHPa())
		m.temperature.WithLabelValues(r.Source).Set(r.Sample.TemperatureC)
		m.altitude.WithLabelValues(r.Source).Set(r.AltitudeM)
	}
}

func (m *Metrics) reinit(sensor string) {
	if m == nil {
		return
	}
	m.reinits.WithLabelValues(sensor).Inc()
}
