// Package sensortest provides an in-memory register file for driver tests.
package sensortest

import (
	"errors"
	"sync"
)

// ErrNoRegister is returned when a read touches a register that was never
// set.
var ErrNoRegister = errors.New("sensortest: no such register")

// Write records one register write.
type Write struct {
	Reg byte
	Val byte
}

// Fake is a register-addressed device. Multi-byte reads walk consecutive
// registers. Queued values are returned before the register file, which lets
// a test script status bits that change between polls.
type Fake struct {
	mu sync.Mutex

	regs   map[byte]byte
	queued map[byte][]byte
	fail   map[byte]error
	writes []Write

	// OnWrite, when set, runs after a write is stored and may mutate the
	// register file to model how the chip reacts.
	OnWrite func(f *Fake, reg, val byte)
}

func New() *Fake {
	return &Fake{
		regs:   make(map[byte]byte),
		queued: make(map[byte][]byte),
		fail:   make(map[byte]error),
	}
}

// Set stores vals at reg, reg+1, ...
func (f *Fake) Set(reg byte, vals ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(reg, vals...)
}

func (f *Fake) setLocked(reg byte, vals ...byte) {
	for i, v := range vals {
		f.regs[reg+byte(i)] = v
	}
}

// SetLocked is Set for use inside OnWrite, which already holds the lock.
func (f *Fake) SetLocked(reg byte, vals ...byte) { f.setLocked(reg, vals...) }

// Queue appends single-byte values returned by successive reads of reg.
func (f *Fake) Queue(reg byte, vals ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[reg] = append(f.queued[reg], vals...)
}

// Fail makes every transfer starting at reg return err until cleared with a
// nil err.
func (f *Fake) Fail(reg byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, reg)
		return
	}
	f.fail[reg] = err
}

// Reg returns the current value of reg.
func (f *Fake) Reg(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// Writes returns a copy of all recorded writes.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// WritesTo returns the values written to reg in order.
func (f *Fake) WritesTo(reg byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, w := range f.writes {
		if w.Reg == reg {
			out = append(out, w.Val)
		}
	}
	return out
}

// ResetWrites forgets recorded writes.
func (f *Fake) ResetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

func (f *Fake) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := f.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *Fake) ReadReg(reg byte, dst []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[reg]; err != nil {
		return err
	}
	for i := range dst {
		r := reg + byte(i)
		if q := f.queued[r]; len(q) > 0 {
			dst[i] = q[0]
			f.queued[r] = q[1:]
			continue
		}
		v, ok := f.regs[r]
		if !ok {
			return ErrNoRegister
		}
		dst[i] = v
	}
	return nil
}

func (f *Fake) WriteReg(reg, val byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[reg]; err != nil {
		return err
	}
	f.writes = append(f.writes, Write{Reg: reg, Val: val})
	f.regs[reg] = val
	if f.OnWrite != nil {
		f.OnWrite(f, reg, val)
	}
	return nil
}
