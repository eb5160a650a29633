package sensors

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when the chip-ID register does not match.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrTimeout is returned when a bounded status poll gives up.
	ErrTimeout = errors.New("timed out")
	// ErrCalibration is returned for a malformed calibration block. The
	// device stays unusable until the next Reset.
	ErrCalibration = errors.New("malformed calibration data")
	// ErrNotConfigured is returned when sampling a device that has no valid
	// calibration or is asleep.
	ErrNotConfigured = errors.New("not configured")
	// ErrInvalidSettings is returned for settings the chip cannot encode.
	ErrInvalidSettings = errors.New("invalid settings")
)

// IOError wraps a transport failure with the register it concerned.
type IOError struct {
	Op  string
	Reg byte
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s reg 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err carries an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// Retryable reports whether err is transient: a transport failure or a
// timed out poll. Everything else needs a Reset or is permanent.
func Retryable(err error) bool {
	return IsIOError(err) || errors.Is(err, ErrTimeout)
}

// Recoverable reports whether constructing the device again may succeed.
// Only a missing or foreign chip is permanent.
func Recoverable(err error) bool {
	return Retryable(err) || errors.Is(err, ErrCalibration)
}

// ReadReg reads len(dst) bytes starting at reg.
func ReadReg(dev RegisterIO, reg byte, dst []byte) error {
	if err := dev.ReadReg(reg, dst); err != nil {
		return &IOError{Op: "read", Reg: reg, Err: err}
	}
	return nil
}

// ReadRegU8 reads a single register.
func ReadRegU8(dev RegisterIO, reg byte) (byte, error) {
	v, err := dev.ReadRegU8(reg)
	if err != nil {
		return 0, &IOError{Op: "read", Reg: reg, Err: err}
	}
	return v, nil
}

// WriteReg writes a single register.
func WriteReg(dev RegisterIO, reg, value byte) error {
	if err := dev.WriteReg(reg, value); err != nil {
		return &IOError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}
