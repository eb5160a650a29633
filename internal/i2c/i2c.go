package i2c

import (
	"fmt"
	"strings"
)

// Conn is a handle to one device at a fixed 7-bit address.
type Conn interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// Opener is an opened bus. Transfers through Conns of the same Opener are
// serialized.
type Opener interface {
	Conn(addr uint16) (Conn, error)
	Close() error
	String() string
}

// Backend selects the I2C implementation.
type Backend string

const (
	// Linux talks to /dev/i2c-N directly.
	Linux  Backend = "linux"
	Periph Backend = "periph"
	Embd   Backend = "embd"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case Linux, Periph, Embd:
		return b, nil
	case "":
		return Linux, nil
	}
	return "", fmt.Errorf("unknown i2c transport %q", s)
}

// OpenBus opens bus number n with the given backend.
func OpenBus(b Backend, n int) (Opener, error) {
	if n < 0 {
		return nil, fmt.Errorf("i2c: invalid bus %d", n)
	}
	switch b {
	case Linux, "":
		bus, err := Open(fmt.Sprintf("/dev/i2c-%d", n))
		if err != nil {
			return nil, err
		}
		return bus, nil
	case Periph:
		return openPeriph(n)
	case Embd:
		return openEmbd(n)
	}
	return nil, fmt.Errorf("unknown i2c transport %q", b)
}

func checkAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("invalid i2c addr 0x%X", addr)
	}
	return nil
}
