package sampler

import (
	"fmt"
	"time"

	"baro-sampler/internal/sensors"
)

// Reading is the outcome of sampling one sensor once. Invalid readings carry
// the error that caused them.
type Reading struct {
	Source string
	Chip   sensors.Chip
	Bus    string
	Time   time.Time

	Valid     bool
	Sample    sensors.Sample
	AltitudeM float64
	Err       error
}

// String renders "NAME 1013.25hPa 12.34m", or "NAME ---" when invalid.
func (r Reading) String() string {
	if !r.Valid {
		return r.Source + " ---"
	}
	return fmt.Sprintf("%s %.2fhPa %.2fm", r.Source, r.Sample.PressureHPa(), r.AltitudeM)
}

// Stamp formats t as [HH:MM:SS:mmm].
func Stamp(t time.Time) string {
	return fmt.Sprintf("[%02d:%02d:%02d:%03d]", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

// Line is the presentation form of r, prefixed with its timestamp.
func (r Reading) Line() string { return Stamp(r.Time) + " " + r.String() }
