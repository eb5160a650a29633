package bmp388

import (
	"encoding/binary"
	"fmt"
	"math"

	"baro-sampler/internal/sensors"
)

// RawCalibration is the NVM trimming block as stored at 0x31..0x45.
type RawCalibration struct {
	T1  uint16
	T2  uint16
	T3  int8
	P1  int16
	P2  int16
	P3  int8
	P4  int8
	P5  uint16
	P6  uint16
	P7  int8
	P8  int8
	P9  int16
	P10 int8
	P11 int8
}

// Coefficients are the floating point parameters used by the compensation.
type Coefficients struct {
	T1, T2, T3                                  float64
	P1, P2, P3, P4, P5, P6, P7, P8, P9, P10, P11 float64
}

func DecodeCalibration(b []byte) (RawCalibration, error) {
	if len(b) != calibLen {
		return RawCalibration{}, fmt.Errorf("%w: got %d bytes want %d", sensors.ErrCalibration, len(b), calibLen)
	}
	u16 := func(i int) uint16 { return binary.LittleEndian.Uint16(b[i : i+2]) }
	return RawCalibration{
		T1:  u16(0),
		T2:  u16(2),
		T3:  int8(b[4]),
		P1:  int16(u16(5)),
		P2:  int16(u16(7)),
		P3:  int8(b[9]),
		P4:  int8(b[10]),
		P5:  u16(11),
		P6:  u16(13),
		P7:  int8(b[15]),
		P8:  int8(b[16]),
		P9:  int16(u16(17)),
		P10: int8(b[19]),
		P11: int8(b[20]),
	}, nil
}

// Bytes encodes c in register layout.
func (c RawCalibration) Bytes() []byte {
	b := make([]byte, calibLen)
	binary.LittleEndian.PutUint16(b[0:], c.T1)
	binary.LittleEndian.PutUint16(b[2:], c.T2)
	b[4] = byte(c.T3)
	binary.LittleEndian.PutUint16(b[5:], uint16(c.P1))
	binary.LittleEndian.PutUint16(b[7:], uint16(c.P2))
	b[9] = byte(c.P3)
	b[10] = byte(c.P4)
	binary.LittleEndian.PutUint16(b[11:], c.P5)
	binary.LittleEndian.PutUint16(b[13:], c.P6)
	b[15] = byte(c.P7)
	b[16] = byte(c.P8)
	binary.LittleEndian.PutUint16(b[17:], uint16(c.P9))
	b[19] = byte(c.P10)
	b[20] = byte(c.P11)
	return b
}

// Scale converts the raw block with the datasheet's power-of-two factors.
func (c RawCalibration) Scale() Coefficients {
	return Coefficients{
		T1:  float64(c.T1) * 256,
		T2:  float64(c.T2) / math.Exp2(30),
		T3:  float64(c.T3) / math.Exp2(48),
		P1:  (float64(c.P1) - math.Exp2(14)) / math.Exp2(20),
		P2:  (float64(c.P2) - math.Exp2(14)) / math.Exp2(29),
		P3:  float64(c.P3) / math.Exp2(32),
		P4:  float64(c.P4) / math.Exp2(37),
		P5:  float64(c.P5) * 8,
		P6:  float64(c.P6) / math.Exp2(6),
		P7:  float64(c.P7) / math.Exp2(8),
		P8:  float64(c.P8) / math.Exp2(15),
		P9:  float64(c.P9) / math.Exp2(48),
		P10: float64(c.P10) / math.Exp2(48),
		P11: float64(c.P11) / math.Exp2(65),
	}
}

func (c RawCalibration) plausible() bool {
	return c.T1 != 0 && c.P5 != 0
}
