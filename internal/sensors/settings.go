package sensors

import (
	"fmt"
	"math/bits"
	"time"
)

// PowerMode selects how the chip produces measurements.
type PowerMode uint8

const (
	Sleep PowerMode = iota
	// Forced takes one measurement per command and returns to sleep.
	Forced
	// Normal free-runs at the configured interval.
	Normal
)

func (m PowerMode) String() string {
	switch m {
	case Sleep:
		return "sleep"
	case Forced:
		return "forced"
	case Normal:
		return "normal"
	}
	return fmt.Sprintf("PowerMode(%d)", m)
}

// Oversampling is the number of raw ADC samples averaged per measurement.
type Oversampling uint8

const (
	O1x   Oversampling = 1
	O2x   Oversampling = 2
	O4x   Oversampling = 4
	O8x   Oversampling = 8
	O16x  Oversampling = 16
	O32x  Oversampling = 32
	O64x  Oversampling = 64
	O128x Oversampling = 128
)

// Log2 returns the register exponent for o. It fails unless o is a power of
// two.
func (o Oversampling) Log2() (uint8, bool) {
	if o == 0 || o&(o-1) != 0 {
		return 0, false
	}
	return uint8(bits.TrailingZeros8(uint8(o))), true
}

func (o Oversampling) String() string { return fmt.Sprintf("%dx", uint8(o)) }

// Settings is a chip-independent measurement configuration. Each driver
// validates it against what its registers can encode.
type Settings struct {
	Power             PowerMode
	TempOversampling  Oversampling
	PressOversampling Oversampling
	// Interval is the normal-mode measurement period: BMP280 standby time,
	// BMP388 output data rate, DPS310 measurement rate.
	Interval time.Duration
	// IIR is the filter coefficient; 0 disables the filter.
	IIR uint8
}

func (s Settings) String() string {
	return fmt.Sprintf("%s osr_t=%s osr_p=%s interval=%s iir=%d",
		s.Power, s.TempOversampling, s.PressOversampling, s.Interval, s.IIR)
}

// Invalid wraps ErrInvalidSettings with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSettings, fmt.Sprintf(format, args...))
}
