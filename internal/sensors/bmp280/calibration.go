package bmp280

import (
	"encoding/binary"
	"fmt"

	"baro-sampler/internal/sensors"
)

// Calibration holds the factory trimming parameters. The compensation
// formulas consume them as integers, so there is no scaled form.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16
	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16
}

// DecodeCalibration parses the 24-byte block starting at 0x88. Words are
// little-endian; T1 and P1 are unsigned, the rest two's complement.
func DecodeCalibration(b []byte) (Calibration, error) {
	if len(b) != calibLen {
		return Calibration{}, fmt.Errorf("%w: got %d bytes want %d", sensors.ErrCalibration, len(b), calibLen)
	}
	u := func(i int) uint16 { return binary.LittleEndian.Uint16(b[i : i+2]) }
	s := func(i int) int16 { return int16(u(i)) }
	return Calibration{
		T1: u(0),
		T2: s(2),
		T3: s(4),
		P1: u(6),
		P2: s(8),
		P3: s(10),
		P4: s(12),
		P5: s(14),
		P6: s(16),
		P7: s(18),
		P8: s(20),
		P9: s(22),
	}, nil
}

// plausible rejects blocks read before the NVM copy finished. These two are
// never zero on a real part.
func (c Calibration) plausible() bool { return c.T1 != 0 && c.P1 != 0 }
