// Package sensors holds the contract shared by the barometric sensor drivers:
// the register transport they consume, the facade they expose to the
// sampler, and the settings, states and errors they have in common.
package sensors

import (
	"context"
	"fmt"
)

// RegisterIO is a byte-oriented register transport bound to one device
// address. Implementations must serialize transfers on a shared bus.
type RegisterIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// Chip names a supported sensor variant.
type Chip string

const (
	BMP280 Chip = "bmp280"
	BMP388 Chip = "bmp388"
	DPS310 Chip = "dps310"
)

// ParseChip maps a configuration name onto a Chip.
func ParseChip(s string) (Chip, error) {
	switch c := Chip(s); c {
	case BMP280, BMP388, DPS310:
		return c, nil
	}
	return "", fmt.Errorf("unknown chip %q", s)
}

// Sensor is the facade every driver implements.
//
// A Sensor is owned by a single caller; none of its methods may be called
// concurrently.
type Sensor interface {
	Chip() Chip
	State() State
	Settings() Settings

	// Reset issues a soft reset and reloads the calibration coefficients.
	// On success the device is Configured in Sleep mode.
	Reset(ctx context.Context) error
	// Configure validates and applies s. Nothing is written when s is
	// rejected.
	Configure(s Settings) error
	SetLowPowerMode() error
	SetNormalMode() error
	Sleep() error

	// Sense returns one compensated sample. Temperature is always
	// compensated before pressure from the same raw burst.
	Sense(ctx context.Context) (Sample, error)
	// Temperature returns degrees Celsius.
	Temperature(ctx context.Context) (float64, error)
	// Pressure returns hPa.
	Pressure(ctx context.Context) (float64, error)
}

// ForcedMeasurer is implemented by chips that support one-shot measurements.
// After ForceMeasure the next Sense returns the forced sample without
// triggering another conversion.
type ForcedMeasurer interface {
	ForceMeasure(ctx context.Context) error
}
