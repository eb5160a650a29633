package bmp388

// Floating point compensation from the BMP388 datasheet. Temperature must be
// compensated first; pressure consumes its linearized value.

// CompensateTemperature returns the linearized temperature in degrees Celsius.
func CompensateTemperature(raw uint32, c *Coefficients) float64 {
	d1 := float64(raw) - c.T1
	d2 := d1 * c.T2
	return d2 + d1*d1*c.T3
}

// CompensatePressure returns the pressure in Pa.
func CompensatePressure(raw uint32, tLin float64, c *Coefficients) float64 {
	t := tLin
	t2 := t * t
	t3 := t2 * t
	p := float64(raw)

	out1 := c.P5 + c.P6*t + c.P7*t2 + c.P8*t3
	out2 := p * (c.P1 + c.P2*t + c.P3*t2 + c.P4*t3)
	pp := p * p
	d4 := pp*(c.P9+c.P10*t) + pp*p*c.P11
	return out1 + out2 + d4
}
