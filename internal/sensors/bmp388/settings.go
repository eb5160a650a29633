package bmp388

import (
	"time"

	"baro-sampler/internal/sensors"
)

var (
	// LowPowerSettings: 1x/1x at ODR 1.5Hz, filter off.
	LowPowerSettings = sensors.Settings{
		Power:             sensors.Normal,
		TempOversampling:  sensors.O1x,
		PressOversampling: sensors.O1x,
		Interval:          odrInterval(0x07),
	}
	// NormalSettings: pressure 8x, temperature 2x at ODR 50Hz, IIR coefficient 1.
	NormalSettings = sensors.Settings{
		Power:             sensors.Normal,
		TempOversampling:  sensors.O2x,
		PressOversampling: sensors.O8x,
		Interval:          odrInterval(0x02),
		IIR:               1,
	}
)

const maxODRCode = 0x11

// odrInterval returns the sampling period for ODR code c: 200Hz halved per
// step.
func odrInterval(c byte) time.Duration { return 5 * time.Millisecond << c }

// iir_filter field of CONFIG, indexed by code.
var iirCoeffs = [...]uint8{0, 1, 3, 7, 15, 31, 63, 127}

type regValues struct {
	odr    byte
	osr    byte
	config byte
	pwr    byte
}

func osrCode(o sensors.Oversampling) (byte, bool) {
	e, ok := o.Log2()
	if !ok || o > sensors.O32x {
		return 0, false
	}
	return e, true
}

func encodeSettings(s sensors.Settings) (regValues, error) {
	osrT, ok := osrCode(s.TempOversampling)
	if !ok {
		return regValues{}, sensors.Invalid("bmp388: temperature oversampling %s", s.TempOversampling)
	}
	osrP, ok := osrCode(s.PressOversampling)
	if !ok {
		return regValues{}, sensors.Invalid("bmp388: pressure oversampling %s", s.PressOversampling)
	}

	iir := -1
	for i, c := range iirCoeffs {
		if c == s.IIR {
			iir = i
		}
	}
	if iir < 0 {
		return regValues{}, sensors.Invalid("bmp388: iir coefficient %d", s.IIR)
	}

	r := regValues{
		osr:    osrT<<3 | osrP,
		config: byte(iir) << 1,
	}
	switch s.Power {
	case sensors.Sleep, sensors.Forced:
		r.pwr = pwrSleep
	case sensors.Normal:
		r.pwr = pwrNormal
		found := false
		for c := byte(0); c <= maxODRCode; c++ {
			if odrInterval(c) == s.Interval {
				r.odr, found = c, true
			}
		}
		if !found {
			return regValues{}, sensors.Invalid("bmp388: output data rate interval %s", s.Interval)
		}
	default:
		return regValues{}, sensors.Invalid("bmp388: power mode %s", s.Power)
	}
	return r, nil
}
