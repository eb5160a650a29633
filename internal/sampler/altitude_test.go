package sampler

import (
	"math"
	"testing"
	"time"

	"baro-sampler/internal/sensors"
)

func TestAltitude(t *testing.T) {
	if got := Altitude(1013.25); got != 0 {
		t.Fatalf("Altitude(1013.25)=%v want 0", got)
	}
	if got := Altitude(900); math.Abs(got-988.6724675326817) > 1e-6 {
		t.Fatalf("Altitude(900)=%v", got)
	}
	for _, p := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		got := Altitude(p)
		if got != 0 {
			t.Fatalf("Altitude(%v)=%v want 0", p, got)
		}
	}
	if got := AltitudeAt(1013.25, 1000); math.Abs(got-(-111.18213400926246)) > 1e-6 {
		t.Fatalf("AltitudeAt(1013.25, 1000)=%v", got)
	}
	if got := AltitudeAt(1000, 0); got != 0 {
		t.Fatalf("AltitudeAt with zero reference=%v want 0", got)
	}
}

func TestAltitude_Monotonic(t *testing.T) {
	prev := math.Inf(1)
	for p := 300.0; p <= 1100; p += 25 {
		a := Altitude(p)
		if !(a < prev) {
			t.Fatalf("altitude not decreasing at %v hPa: %v >= %v", p, a, prev)
		}
		prev = a
	}
}

func TestReadingFormat(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_700_000, time.UTC)
	if got := Stamp(ts); got != "[03:04:05:006]" {
		t.Fatalf("Stamp got=%q", got)
	}

	r := Reading{
		Source:    "BMP280",
		Time:      ts,
		Valid:     true,
		Sample:    sensors.Sample{TemperatureC: 21.5, PressurePa: 101325},
		AltitudeM: 12.344,
	}
	if got := r.String(); got != "BMP280 1013.25hPa 12.34m" {
		t.Fatalf("String got=%q", got)
	}
	if got := r.Line(); got != "[03:04:05:006] BMP280 1013.25hPa 12.34m" {
		t.Fatalf("Line got=%q", got)
	}

	absent := Reading{Source: "DPS310", Err: ErrAbsent}
	if got := absent.String(); got != "DPS310 ---" {
		t.Fatalf("String got=%q", got)
	}
}
