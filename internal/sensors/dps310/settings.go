package dps310

import (
	"time"

	"baro-sampler/internal/sensors"
)

var (
	// LowPowerSettings: 1x/1x at 1Hz.
	LowPowerSettings = sensors.Settings{
		Power:             sensors.Normal,
		TempOversampling:  sensors.O1x,
		PressOversampling: sensors.O1x,
		Interval:          time.Second,
	}
	// NormalSettings: pressure 64x, temperature 16x, both at 4Hz. 8Hz would
	// exceed the one second measurement budget.
	NormalSettings = sensors.Settings{
		Power:             sensors.Normal,
		TempOversampling:  sensors.O16x,
		PressOversampling: sensors.O64x,
		Interval:          250 * time.Millisecond,
	}
)

const maxRateCode = 7

// rateInterval returns the background period for rate code c (2^c
// measurements per second).
func rateInterval(c byte) time.Duration { return time.Second >> c }

type regValues struct {
	prsCfg byte
	tmpCfg byte // without the coefficient source bit
	shift  byte // CFG_REG shift bits
	meas   byte
	kT, kP float64
}

func encodeSettings(s sensors.Settings) (regValues, error) {
	if s.IIR != 0 {
		return regValues{}, sensors.Invalid("dps310: iir coefficient %d", s.IIR)
	}
	prcT, ok := s.TempOversampling.Log2()
	if !ok || prcT > 7 {
		return regValues{}, sensors.Invalid("dps310: temperature oversampling %s", s.TempOversampling)
	}
	prcP, ok := s.PressOversampling.Log2()
	if !ok || prcP > 7 {
		return regValues{}, sensors.Invalid("dps310: pressure oversampling %s", s.PressOversampling)
	}

	r := regValues{}
	r.kT, _ = ScaleFactor(s.TempOversampling)
	r.kP, _ = ScaleFactor(s.PressOversampling)
	if s.TempOversampling > sensors.O8x {
		r.shift |= cfgTShift
	}
	if s.PressOversampling > sensors.O8x {
		r.shift |= cfgPShift
	}

	switch s.Power {
	case sensors.Sleep:
		r.prsCfg, r.tmpCfg, r.meas = prcP, prcT, measIdle
	case sensors.Normal:
		rate := -1
		for c := byte(0); c <= maxRateCode; c++ {
			if rateInterval(c) == s.Interval {
				rate = int(c)
			}
		}
		if rate < 0 {
			return regValues{}, sensors.Invalid("dps310: measurement interval %s", s.Interval)
		}
		tT, _ := MeasurementTime(s.TempOversampling)
		tP, _ := MeasurementTime(s.PressOversampling)
		perSecond := time.Duration(1) << rate
		if busy := perSecond*tT + perSecond*tP; busy >= time.Second {
			return regValues{}, sensors.Invalid("dps310: %dHz at %s/%s needs %s per second", perSecond, s.TempOversampling, s.PressOversampling, busy)
		}
		r.prsCfg = byte(rate)<<4 | prcP
		r.tmpCfg = byte(rate)<<4 | prcT
		r.meas = measBackground
	default:
		// One-shot measurements are not supported.
		return regValues{}, sensors.Invalid("dps310: power mode %s", s.Power)
	}
	return r, nil
}
