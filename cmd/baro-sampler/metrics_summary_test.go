package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSummarizeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	readings := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "baro_readings_total", Help: "h"}, []string{"sensor", "result"})
	pressure := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "baro_pressure_hpa", Help: "h"}, []string{"sensor"})
	reg.MustRegister(readings, pressure)

	readings.WithLabelValues("BMP280", "ok").Add(3)
	readings.WithLabelValues("BMP280", "timeout").Inc()
	readings.WithLabelValues("DPS310", "absent").Add(4)
	pressure.WithLabelValues("BMP280").Set(1006.5325)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	s := summarizeMetrics(mfs)
	if got := s.Sensors["BMP280"].Results["ok"]; got != 3 {
		t.Fatalf("ok=%d want 3", got)
	}

	lines := s.Lines()
	want := []string{
		"summary BMP280: ok=3 timeout=1 last=1006.53hPa",
		"summary DPS310: absent=4",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines=%q want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d got=%q want=%q", i, lines[i], want[i])
		}
	}
}

func TestSummarizeMetrics_Empty(t *testing.T) {
	if lines := summarizeMetrics(nil).Lines(); len(lines) != 0 {
		t.Fatalf("lines=%q want none", lines)
	}
}
