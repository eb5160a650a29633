//go:build !linux

package i2c

import "fmt"

var errUnsupported = fmt.Errorf("i2c: unsupported OS (need linux)")

type Bus struct{}

type Dev struct{}

func Open(path string) (*Bus, error) { return nil, errUnsupported }

func (b *Bus) Close() error                   { return nil }
func (b *Bus) String() string                 { return "unsupported" }
func (b *Bus) Dev(addr uint16) *Dev           { return nil }
func (b *Bus) Conn(addr uint16) (Conn, error) { return nil, errUnsupported }

func (d *Dev) ReadReg(reg byte, dst []byte) error { return errUnsupported }
func (d *Dev) ReadRegU8(reg byte) (byte, error)   { return 0, errUnsupported }
func (d *Dev) WriteReg(reg, value byte) error     { return errUnsupported }
