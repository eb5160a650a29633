package bmp280

import (
	"time"

	"baro-sampler/internal/sensors"
)

var (
	// LowPowerSettings: 1x/1x, 1s standby, filter off.
	LowPowerSettings = sensors.Settings{
		Power:             sensors.Normal,
		TempOversampling:  sensors.O1x,
		PressOversampling: sensors.O1x,
		Interval:          time.Second,
	}
	// NormalSettings: temperature 2x, pressure 16x, 0.5ms standby, filter 4.
	NormalSettings = sensors.Settings{
		Power:             sensors.Normal,
		TempOversampling:  sensors.O2x,
		PressOversampling: sensors.O16x,
		Interval:          500 * time.Microsecond,
		IIR:               4,
	}
)

// t_sb field of the config register.
var standbyTimes = [...]time.Duration{
	500 * time.Microsecond,
	62500 * time.Microsecond,
	125 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	4 * time.Second,
}

// filter field of the config register, indexed by code.
var filterCoeffs = [...]uint8{0, 2, 4, 8, 16}

type regValues struct {
	ctrlMeas byte
	config   byte
}

func osrsCode(o sensors.Oversampling) (byte, bool) {
	e, ok := o.Log2()
	if !ok || o > sensors.O16x {
		return 0, false
	}
	return e + 1, true
}

func encodeSettings(s sensors.Settings) (regValues, error) {
	osrsT, ok := osrsCode(s.TempOversampling)
	if !ok {
		return regValues{}, sensors.Invalid("bmp280: temperature oversampling %s", s.TempOversampling)
	}
	osrsP, ok := osrsCode(s.PressOversampling)
	if !ok {
		return regValues{}, sensors.Invalid("bmp280: pressure oversampling %s", s.PressOversampling)
	}

	filter := -1
	for i, c := range filterCoeffs {
		if c == s.IIR {
			filter = i
		}
	}
	if filter < 0 {
		return regValues{}, sensors.Invalid("bmp280: iir coefficient %d", s.IIR)
	}

	var mode, tsb byte
	switch s.Power {
	case sensors.Sleep, sensors.Forced:
		// The mode bits stay asleep here; forced conversions are started
		// per measurement.
		mode = modeSleep
	case sensors.Normal:
		mode = modeNormal
		found := false
		for i, d := range standbyTimes {
			if d == s.Interval {
				tsb, found = byte(i), true
			}
		}
		if !found {
			return regValues{}, sensors.Invalid("bmp280: standby %s", s.Interval)
		}
	default:
		return regValues{}, sensors.Invalid("bmp280: power mode %s", s.Power)
	}

	return regValues{
		ctrlMeas: osrsT<<5 | osrsP<<2 | mode,
		config:   tsb<<5 | byte(filter)<<2,
	}, nil
}
