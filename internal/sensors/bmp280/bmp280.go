package bmp280

import (
	"context"
	"fmt"
	"time"

	"baro-sampler/internal/sensors"
)

var sleep = time.Sleep

// BMP280 driver.
//
// Temperature and pressure use the datasheet's integer compensation path.

const (
	addrDefault   = 0x76
	addrSecondary = 0x77

	regID        = 0xD0
	chipIDBMP280 = 0x58

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 24

	regStatus   = 0xF3
	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regPressMsb = 0xF7
	dataLen     = 6

	statusMeasuring = 0x08
	statusImUpdate  = 0x01

	modeMask   = 0x03
	modeSleep  = 0x00
	modeForced = 0x01
	modeNormal = 0x03

	// Start-up time after power-on or soft reset.
	startupDelay = 2 * time.Millisecond

	calibAttempts = 3
)

type Device struct {
	dev  sensors.RegisterIO
	opts sensors.Opts

	state    sensors.State
	settings sensors.Settings
	regs     regValues
	calib    Calibration
}

var (
	_ sensors.Sensor         = (*Device)(nil)
	_ sensors.ForcedMeasurer = (*Device)(nil)
)

func DefaultAddress() uint16 { return addrDefault }

// Addresses lists the addresses selectable with the SDO pin.
func Addresses() []uint16 { return []uint16{addrDefault, addrSecondary} }

// New checks the chip ID, resets the chip and loads its calibration. The
// returned device is Configured in Sleep mode.
func New(dev sensors.RegisterIO, opts *sensors.Opts) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	d := &Device{dev: dev, opts: opts.Resolve()}

	id, err := sensors.ReadRegU8(d.dev, regID)
	if err != nil {
		return nil, fmt.Errorf("bmp280: id read failed: %w", err)
	}
	if id != chipIDBMP280 {
		return nil, fmt.Errorf("bmp280: chip id=0x%02X want 0x%02X: %w", id, chipIDBMP280, sensors.ErrDeviceNotFound)
	}

	if err := d.Reset(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Chip() sensors.Chip         { return sensors.BMP280 }
func (d *Device) State() sensors.State       { return d.state }
func (d *Device) Settings() sensors.Settings { return d.settings }

// Calibration returns the loaded coefficients.
func (d *Device) Calibration() Calibration { return d.calib }

func (d *Device) Reset(ctx context.Context) error {
	d.state = sensors.Resetting
	if err := sensors.WriteReg(d.dev, regReset, resetCmd); err != nil {
		return fmt.Errorf("bmp280: reset failed: %w", err)
	}
	sleep(startupDelay)

	// After reset the NVM coefficients are copied into the image registers;
	// im_update stays set until that is done. Reading too early returns zeros
	// and ends up with compensated pressure=0.
	d.state = sensors.AwaitingCalibration
	err := sensors.WaitUntil(ctx, d.opts.PollInterval, d.opts.ReadyTimeout, func() (bool, error) {
		st, err := sensors.ReadRegU8(d.dev, regStatus)
		return st&(statusImUpdate|statusMeasuring) == 0, err
	})
	if err != nil {
		return fmt.Errorf("bmp280: waiting for calibration: %w", err)
	}

	// Retry a couple of times to ride out transient zero reads.
	var calibErr error
	for i := 0; i < calibAttempts; i++ {
		var c Calibration
		c, calibErr = d.readCalibration()
		if calibErr == nil {
			if c.plausible() {
				d.calib = c
				break
			}
			calibErr = fmt.Errorf("bmp280: calibration invalid (digT1=%d digP1=%d): %w", c.T1, c.P1, sensors.ErrCalibration)
		}
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return calibErr
	}

	d.settings = sensors.Settings{Power: sensors.Sleep, TempOversampling: sensors.O1x, PressOversampling: sensors.O1x}
	d.regs = regValues{}
	d.state = sensors.Configured
	return nil
}

func (d *Device) readCalibration() (Calibration, error) {
	buf := make([]byte, calibLen)
	if err := sensors.ReadReg(d.dev, regCalib00, buf); err != nil {
		return Calibration{}, fmt.Errorf("bmp280: read calib failed: %w", err)
	}
	return DecodeCalibration(buf)
}

func (d *Device) Configure(s sensors.Settings) error {
	if !d.state.Usable() {
		return fmt.Errorf("bmp280: configure in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	regs, err := encodeSettings(s)
	if err != nil {
		return err
	}
	// The config register is only writable in sleep mode.
	if err := sensors.WriteReg(d.dev, regCtrlMeas, regs.ctrlMeas&^modeMask); err != nil {
		return fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
	}
	if err := sensors.WriteReg(d.dev, regConfig, regs.config); err != nil {
		return fmt.Errorf("bmp280: config write failed: %w", err)
	}
	if regs.ctrlMeas&modeMask != modeSleep {
		if err := sensors.WriteReg(d.dev, regCtrlMeas, regs.ctrlMeas); err != nil {
			return fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
		}
	}
	d.settings = s
	d.regs = regs
	d.state = sensors.Configured
	return nil
}

func (d *Device) SetLowPowerMode() error { return d.Configure(LowPowerSettings) }
func (d *Device) SetNormalMode() error   { return d.Configure(NormalSettings) }

func (d *Device) Sleep() error {
	s := d.settings
	s.Power = sensors.Sleep
	return d.Configure(s)
}

// ForceMeasure starts a single conversion and waits for it. The chip is left
// in Forced mode, so every later Sense triggers its own conversion.
func (d *Device) ForceMeasure(ctx context.Context) error {
	if !d.state.Usable() {
		return fmt.Errorf("bmp280: force measure in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	if d.settings.Power != sensors.Forced {
		s := d.settings
		s.Power = sensors.Forced
		if err := d.Configure(s); err != nil {
			return err
		}
	}
	if err := sensors.WriteReg(d.dev, regCtrlMeas, d.regs.ctrlMeas&^modeMask|modeForced); err != nil {
		return fmt.Errorf("bmp280: forced write failed: %w", err)
	}
	d.state = sensors.Measuring
	// The mode bits fall back to sleep once the conversion is done.
	err := d.waitData(ctx, func(status, ctrl byte) bool {
		return status&statusMeasuring == 0 && ctrl&modeMask == modeSleep
	})
	if err != nil {
		d.state = sensors.Configured
		return fmt.Errorf("bmp280: measurement: %w", err)
	}
	d.state = sensors.DataReady
	return nil
}

func (d *Device) waitData(ctx context.Context, done func(status, ctrl byte) bool) error {
	return sensors.WaitUntil(ctx, d.opts.PollInterval, d.opts.ReadyTimeout, func() (bool, error) {
		var buf [2]byte // status, ctrl_meas
		if err := sensors.ReadReg(d.dev, regStatus, buf[:]); err != nil {
			return false, err
		}
		return done(buf[0], buf[1]), nil
	})
}

// Sense returns compensated temperature (C) and pressure (Pa).
func (d *Device) Sense(ctx context.Context) (sensors.Sample, error) {
	if !d.state.Usable() {
		return sensors.Sample{}, fmt.Errorf("bmp280: sense in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	switch d.settings.Power {
	case sensors.Sleep:
		return sensors.Sample{}, fmt.Errorf("bmp280: asleep: %w", sensors.ErrNotConfigured)
	case sensors.Forced:
		if d.state != sensors.DataReady {
			if err := d.ForceMeasure(ctx); err != nil {
				return sensors.Sample{}, err
			}
		}
	case sensors.Normal:
		// Free-running: only the first read after configuration waits for a
		// completed conversion.
		if d.state != sensors.DataReady {
			d.state = sensors.Measuring
			err := d.waitData(ctx, func(status, _ byte) bool { return status&statusMeasuring == 0 })
			if err != nil {
				d.state = sensors.Configured
				return sensors.Sample{}, fmt.Errorf("bmp280: measurement: %w", err)
			}
			d.state = sensors.DataReady
		}
	}

	buf := make([]byte, dataLen)
	if err := sensors.ReadReg(d.dev, regPressMsb, buf); err != nil {
		return sensors.Sample{}, fmt.Errorf("bmp280: read data failed: %w", err)
	}
	if d.settings.Power == sensors.Forced {
		d.state = sensors.Configured
	}

	adcP := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	adcT := int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4

	tFine, t := CompensateTemperature(adcT, &d.calib)
	p := CompensatePressure(adcP, tFine, &d.calib)
	return sensors.Sample{TemperatureC: t, PressurePa: p}, nil
}

func (d *Device) Temperature(ctx context.Context) (float64, error) {
	s, err := d.Sense(ctx)
	return s.TemperatureC, err
}

func (d *Device) Pressure(ctx context.Context) (float64, error) {
	s, err := d.Sense(ctx)
	return s.PressureHPa(), err
}
