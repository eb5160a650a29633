package i2c

import (
	"fmt"
	"strconv"
	"sync"

	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	periphOnce sync.Once
	periphErr  error
)

// periphBus goes through periph.io's driver registry.
type periphBus struct {
	mu   sync.Mutex
	name string
	bus  periphi2c.BusCloser
}

func openPeriph(n int) (*periphBus, error) {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	if periphErr != nil {
		return nil, fmt.Errorf("i2c: periph host init: %w", periphErr)
	}
	name := strconv.Itoa(n)
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("i2c: periph open bus %s: %w", name, err)
	}
	return newPeriphBus(name, b), nil
}

func newPeriphBus(name string, b periphi2c.BusCloser) *periphBus {
	return &periphBus{name: name, bus: b}
}

func (p *periphBus) String() string { return "periph:" + p.name }

func (p *periphBus) Close() error { return p.bus.Close() }

func (p *periphBus) Conn(addr uint16) (Conn, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	return &periphConn{bus: p, dev: &periphi2c.Dev{Bus: p.bus, Addr: addr}}, nil
}

type periphConn struct {
	bus *periphBus
	dev *periphi2c.Dev
}

func (c *periphConn) tx(w, r []byte) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	return c.dev.Tx(w, r)
}

func (c *periphConn) ReadReg(reg byte, dst []byte) error {
	return c.tx([]byte{reg}, dst)
}

func (c *periphConn) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := c.tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *periphConn) WriteReg(reg, value byte) error {
	return c.tx([]byte{reg, value}, nil)
}
