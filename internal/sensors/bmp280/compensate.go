package bmp280

// Fixed-point compensation from the BMP280 datasheet (section 3.11.3). All
// intermediates are int64 so extreme raw values cannot overflow.

// CompensateTemperature returns t_fine, which CompensatePressure needs, and
// the temperature in degrees Celsius with 0.01 resolution.
func CompensateTemperature(adcT int32, c *Calibration) (tFine int32, tempC float64) {
	adc := int64(adcT)
	t1 := int64(c.T1)
	var1 := ((adc>>3 - t1<<1) * int64(c.T2)) >> 11
	d := adc>>4 - t1
	var2 := (((d * d) >> 12) * int64(c.T3)) >> 14
	tFine = int32(var1 + var2)
	t := (int64(tFine)*5 + 128) >> 8
	return tFine, float64(t) / 100
}

// CompensatePressure returns the pressure in Pa. It returns 0 when the
// calibration would divide by zero.
func CompensatePressure(adcP int32, tFine int32, c *Calibration) float64 {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.P6)
	var2 += (var1 * int64(c.P5)) << 17
	var2 += int64(c.P4) << 35
	var1 = (var1*var1*int64(c.P3))>>8 + (var1*int64(c.P2))<<12
	var1 = ((int64(1)<<47 + var1) * int64(c.P1)) >> 33
	if var1 == 0 {
		return 0
	}
	p := 1048576 - int64(adcP)
	p = ((p<<31 - var2) * 3125) / var1
	var1 = (int64(c.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.P8) * p) >> 19
	p = (p+var1+var2)>>8 + int64(c.P7)<<4
	// Q24.8
	return float64(p) / 256
}
