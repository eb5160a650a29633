package main

import (
	"fmt"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

type sensorSummary struct {
	Results      map[string]int
	LastPressure float64
	HavePressure bool
}

type metricsSummary struct {
	Sensors map[string]*sensorSummary
}

func (s metricsSummary) sensor(name string) *sensorSummary {
	ss, ok := s.Sensors[name]
	if !ok {
		ss = &sensorSummary{Results: map[string]int{}}
		s.Sensors[name] = ss
	}
	return ss
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// summarizeMetrics folds the gathered sampler metrics into per-sensor counts.
func summarizeMetrics(mfs []*dto.MetricFamily) metricsSummary {
	s := metricsSummary{Sensors: map[string]*sensorSummary{}}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "baro_readings_total":
			for _, m := range mf.GetMetric() {
				ss := s.sensor(labelValue(m, "sensor"))
				ss.Results[labelValue(m, "result")] += int(m.GetCounter().GetValue())
			}
		case "baro_pressure_hpa":
			for _, m := range mf.GetMetric() {
				ss := s.sensor(labelValue(m, "sensor"))
				ss.LastPressure = m.GetGauge().GetValue()
				ss.HavePressure = true
			}
		}
	}
	return s
}

// Lines renders one line per sensor, sorted by name.
func (s metricsSummary) Lines() []string {
	names := make([]string, 0, len(s.Sensors))
	for n := range s.Sensors {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, n := range names {
		ss := s.Sensors[n]
		results := make([]string, 0, len(ss.Results))
		for r := range ss.Results {
			results = append(results, r)
		}
		sort.Strings(results)
		parts := make([]string, 0, len(results)+1)
		for _, r := range results {
			parts = append(parts, fmt.Sprintf("%s=%d", r, ss.Results[r]))
		}
		if ss.HavePressure {
			parts = append(parts, fmt.Sprintf("last=%.2fhPa", ss.LastPressure))
		}
		out = append(out, fmt.Sprintf("summary %s: %s", n, strings.Join(parts, " ")))
	}
	return out
}
