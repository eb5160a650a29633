package sensors

import "periph.io/x/conn/v3/physic"

// Sample is one compensated reading. Pressure is kept in Pa; hPa only
// appears at the presentation boundary.
type Sample struct {
	TemperatureC float64
	PressurePa   float64
}

// PressureHPa returns the pressure in hPa.
func (s Sample) PressureHPa() float64 { return s.PressurePa / 100 }

// Env converts the sample to periph unit types.
func (s Sample) Env() physic.Env {
	return physic.Env{
		Temperature: physic.Temperature(s.TemperatureC*float64(physic.Kelvin)) + physic.ZeroCelsius,
		Pressure:    physic.Pressure(s.PressurePa * float64(physic.Pascal)),
	}
}
