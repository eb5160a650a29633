package dps310

import (
	"fmt"
	"time"

	"baro-sampler/internal/sensors"
)

// Coefficients are the factory calibration values c0..c30, sign-extended
// from their packed widths.
type Coefficients struct {
	C0  int32 // 12 bit
	C1  int32 // 12 bit
	C00 int32 // 20 bit
	C10 int32 // 20 bit
	C01 int32
	C11 int32
	C20 int32
	C21 int32
	C30 int32
}

// signExtend interprets the low n bits of v as two's complement.
func signExtend(v uint32, n uint) int32 {
	shift := 32 - n
	return int32(v<<shift) >> shift
}

// DecodeCoefficients unpacks the 18-byte block at 0x10. c0/c1 are 12-bit and
// c00/c10 20-bit fields sharing nibbles across byte boundaries; the rest are
// big-endian 16-bit words.
func DecodeCoefficients(b []byte) (Coefficients, error) {
	if len(b) != coefLen {
		return Coefficients{}, fmt.Errorf("%w: got %d bytes want %d", sensors.ErrCalibration, len(b), coefLen)
	}
	u := func(i int) uint32 { return uint32(b[i]) }
	w16 := func(i int) int32 { return signExtend(u(i)<<8|u(i+1), 16) }
	return Coefficients{
		C0:  signExtend(u(0)<<4|u(1)>>4, 12),
		C1:  signExtend((u(1)&0x0F)<<8|u(2), 12),
		C00: signExtend(u(3)<<12|u(4)<<4|u(5)>>4, 20),
		C10: signExtend((u(5)&0x0F)<<16|u(6)<<8|u(7), 20),
		C01: w16(8),
		C11: w16(10),
		C20: w16(12),
		C21: w16(14),
		C30: w16(16),
	}, nil
}

func (c Coefficients) plausible() bool {
	return c != Coefficients{}
}

// Compensation scale factors kT/kP by oversampling, from the datasheet.
var scaleFactors = [...]float64{
	524288,  // 1x
	1572864, // 2x
	3670016, // 4x
	7864320, // 8x
	253952,  // 16x
	516096,  // 32x
	1040384, // 64x
	2088960, // 128x
}

// Typical measurement time per oversampling setting.
var measTimes = [...]time.Duration{
	3600 * time.Microsecond,
	5200 * time.Microsecond,
	8400 * time.Microsecond,
	14800 * time.Microsecond,
	27600 * time.Microsecond,
	53200 * time.Microsecond,
	104400 * time.Microsecond,
	206800 * time.Microsecond,
}

// ScaleFactor returns the compensation scale factor for o.
func ScaleFactor(o sensors.Oversampling) (float64, bool) {
	e, ok := o.Log2()
	if !ok || int(e) >= len(scaleFactors) {
		return 0, false
	}
	return scaleFactors[e], true
}

// MeasurementTime returns how long one conversion at o takes.
func MeasurementTime(o sensors.Oversampling) (time.Duration, bool) {
	e, ok := o.Log2()
	if !ok || int(e) >= len(measTimes) {
		return 0, false
	}
	return measTimes[e], true
}

// CompensateTemperature returns the scaled raw temperature, which pressure
// compensation needs, and the temperature in degrees Celsius.
func CompensateTemperature(rawT int32, kT float64, c *Coefficients) (scaled, tempC float64) {
	scaled = float64(rawT) / kT
	return scaled, float64(c.C0)*0.5 + float64(c.C1)*scaled
}

// CompensatePressure returns the pressure in Pa. scaledT is the first result
// of CompensateTemperature.
func CompensatePressure(rawP int32, kP, scaledT float64, c *Coefficients) float64 {
	sp := float64(rawP) / kP
	return float64(c.C00) +
		sp*(float64(c.C10)+sp*(float64(c.C20)+sp*float64(c.C30))) +
		scaledT*(float64(c.C01)+sp*(float64(c.C11)+sp*float64(c.C21)))
}
