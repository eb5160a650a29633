package i2c

import (
	"fmt"
	"sync"

	"github.com/kidoman/embd"
)

// embdBus drives the bus through kidoman/embd. The host driver is registered
// by a platform specific file.
type embdBus struct {
	mu  sync.Mutex
	n   int
	bus embd.I2CBus
}

func openEmbd(n int) (*embdBus, error) {
	if n > 0xFF {
		return nil, fmt.Errorf("i2c: invalid bus %d", n)
	}
	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("i2c: embd init: %w", err)
	}
	return newEmbdBus(n, embd.NewI2CBus(byte(n))), nil
}

func newEmbdBus(n int, b embd.I2CBus) *embdBus {
	return &embdBus{n: n, bus: b}
}

func (e *embdBus) String() string { return fmt.Sprintf("embd:%d", e.n) }

func (e *embdBus) Close() error { return e.bus.Close() }

func (e *embdBus) Conn(addr uint16) (Conn, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	return &embdConn{bus: e, addr: byte(addr)}, nil
}

type embdConn struct {
	bus  *embdBus
	addr byte
}

func (c *embdConn) ReadReg(reg byte, dst []byte) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	return c.bus.bus.ReadFromReg(c.addr, reg, dst)
}

func (c *embdConn) ReadRegU8(reg byte) (byte, error) {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	return c.bus.bus.ReadByteFromReg(c.addr, reg)
}

func (c *embdConn) WriteReg(reg, value byte) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	return c.bus.bus.WriteByteToReg(c.addr, reg, value)
}
