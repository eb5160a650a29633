package bmp388

import (
	"context"
	"fmt"
	"time"

	"baro-sampler/internal/sensors"
)

var sleep = time.Sleep

const (
	addrDefault   = 0x77
	addrSecondary = 0x76

	regChipID = 0x00
	chipID    = 0x50

	regErr     = 0x02
	errConf    = 0x04
	regStatus  = 0x03
	regData0   = 0x04
	dataLen    = 6
	regPwrCtrl = 0x1B
	regOSR     = 0x1C
	regODR     = 0x1D
	regConfig  = 0x1F
	regCalib   = 0x31
	calibLen   = 21
	regCmd     = 0x7E

	cmdSoftReset = 0xB6

	statusCmdRdy    = 0x10
	statusDrdyPress = 0x20
	statusDrdyTemp  = 0x40
	statusDrdy      = statusDrdyPress | statusDrdyTemp

	// press_en | temp_en with the mode in bits 4-5.
	pwrSleep  = 0x03
	pwrForced = 0x13
	pwrNormal = 0x33

	startupDelay  = 2 * time.Millisecond
	calibAttempts = 3
)

type Device struct {
	dev  sensors.RegisterIO
	opts sensors.Opts

	state    sensors.State
	settings sensors.Settings
	raw      RawCalibration
	coeffs   Coefficients
}

var (
	_ sensors.Sensor         = (*Device)(nil)
	_ sensors.ForcedMeasurer = (*Device)(nil)
)

func DefaultAddress() uint16 { return addrDefault }

// Addresses lists the addresses selectable with the SDO pin.
func Addresses() []uint16 { return []uint16{addrDefault, addrSecondary} }

// New checks the chip ID, soft resets the chip and loads its calibration. The
// returned device is Configured in Sleep mode.
func New(dev sensors.RegisterIO, opts *sensors.Opts) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp388: dev is nil")
	}
	d := &Device{dev: dev, opts: opts.Resolve()}

	id, err := sensors.ReadRegU8(d.dev, regChipID)
	if err != nil {
		return nil, fmt.Errorf("bmp388: id read failed: %w", err)
	}
	if id != chipID {
		return nil, fmt.Errorf("bmp388: chip id=0x%02X want 0x%02X: %w", id, chipID, sensors.ErrDeviceNotFound)
	}
	if err := d.Reset(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Chip() sensors.Chip         { return sensors.BMP388 }
func (d *Device) State() sensors.State       { return d.state }
func (d *Device) Settings() sensors.Settings { return d.settings }

// Calibration returns the raw NVM block and its scaled form.
func (d *Device) Calibration() (RawCalibration, Coefficients) { return d.raw, d.coeffs }

func (d *Device) Reset(ctx context.Context) error {
	d.state = sensors.Resetting
	if err := sensors.WriteReg(d.dev, regCmd, cmdSoftReset); err != nil {
		return fmt.Errorf("bmp388: reset failed: %w", err)
	}
	sleep(startupDelay)

	d.state = sensors.AwaitingCalibration
	err := sensors.WaitUntil(ctx, d.opts.PollInterval, d.opts.ReadyTimeout, func() (bool, error) {
		st, err := sensors.ReadRegU8(d.dev, regStatus)
		return st&statusCmdRdy != 0, err
	})
	if err != nil {
		return fmt.Errorf("bmp388: waiting for command ready: %w", err)
	}

	var calibErr error
	for i := 0; i < calibAttempts; i++ {
		var raw RawCalibration
		raw, calibErr = d.readCalibration()
		if calibErr == nil {
			if raw.plausible() {
				d.raw = raw
				d.coeffs = raw.Scale()
				break
			}
			calibErr = fmt.Errorf("bmp388: calibration invalid (T1=%d P5=%d): %w", raw.T1, raw.P5, sensors.ErrCalibration)
		}
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return calibErr
	}

	d.settings = sensors.Settings{Power: sensors.Sleep, TempOversampling: sensors.O1x, PressOversampling: sensors.O1x}
	d.state = sensors.Configured
	return nil
}

func (d *Device) readCalibration() (RawCalibration, error) {
	buf := make([]byte, calibLen)
	if err := sensors.ReadReg(d.dev, regCalib, buf); err != nil {
		return RawCalibration{}, fmt.Errorf("bmp388: read calib failed: %w", err)
	}
	return DecodeCalibration(buf)
}

// Configure writes ODR, OSR, CONFIG and PWR_CTRL in that order and then
// checks the chip's configuration error flag.
func (d *Device) Configure(s sensors.Settings) error {
	if !d.state.Usable() {
		return fmt.Errorf("bmp388: configure in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	r, err := encodeSettings(s)
	if err != nil {
		return err
	}
	for _, w := range []struct{ reg, val byte }{
		{regODR, r.odr},
		{regOSR, r.osr},
		{regConfig, r.config},
		{regPwrCtrl, r.pwr},
	} {
		if err := sensors.WriteReg(d.dev, w.reg, w.val); err != nil {
			return fmt.Errorf("bmp388: configure write failed: %w", err)
		}
	}
	e, err := sensors.ReadRegU8(d.dev, regErr)
	if err != nil {
		return fmt.Errorf("bmp388: err_reg read failed: %w", err)
	}
	if e&errConf != 0 {
		// The chip refused the combination and stays asleep.
		d.settings.Power = sensors.Sleep
		d.state = sensors.Configured
		return sensors.Invalid("bmp388: chip reported conf_err for %s", s)
	}
	d.settings = s
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

// ForceMeasure starts a single conversion and waits for both data ready
// flags. The device stays in Forced mode afterwards.
func (d *Device) ForceMeasure(ctx context.Context) error {
	if !d.state.Usable() {
		return fmt.Errorf("bmp388: force measure in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	if d.settings.Power != sensors.Forced {
		s := d.settings
		s.Power = sensors.Forced
		if err := d.Configure(s); err != nil {
			return err
		}
	}
	if err := sensors.WriteReg(d.dev, regPwrCtrl, pwrForced); err != nil {
		return fmt.Errorf("bmp388: forced write failed: %w", err)
	}
	d.state = sensors.Measuring
	if err := d.waitDataReady(ctx); err != nil {
		d.state = sensors.Configured
		return fmt.Errorf("bmp388: measurement: %w", err)
	}
	d.state = sensors.DataReady
	return nil
}

func (d *Device) waitDataReady(ctx context.Context) error {
	return sensors.WaitUntil(ctx, d.opts.PollInterval, d.opts.ReadyTimeout, func() (bool, error) {
		st, err := sensors.ReadRegU8(d.dev, regStatus)
		return st&statusDrdy == statusDrdy, err
	})
}

// Sense returns compensated temperature (C) and pressure (Pa).
func (d *Device) Sense(ctx context.Context) (sensors.Sample, error) {
	if !d.state.Usable() {
		return sensors.Sample{}, fmt.Errorf("bmp388: sense in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	switch d.settings.Power {
	case sensors.Sleep:
		return sensors.Sample{}, fmt.Errorf("bmp388: asleep: %w", sensors.ErrNotConfigured)
	case sensors.Forced:
		if d.state != sensors.DataReady {
			if err := d.ForceMeasure(ctx); err != nil {
				return sensors.Sample{}, err
			}
		}
	case sensors.Normal:
		if d.state != sensors.DataReady {
			d.state = sensors.Measuring
			if err := d.waitDataReady(ctx); err != nil {
				d.state = sensors.Configured
				return sensors.Sample{}, fmt.Errorf("bmp388: measurement: %w", err)
			}
			d.state = sensors.DataReady
		}
	}

	buf := make([]byte, dataLen)
	if err := sensors.ReadReg(d.dev, regData0, buf); err != nil {
		return sensors.Sample{}, fmt.Errorf("bmp388: read data failed: %w", err)
	}
	if d.settings.Power == sensors.Forced {
		d.state = sensors.Configured
	}

	rawP := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
	rawT := uint32(buf[3]) | uint32(buf[4])<<8 | uint32(buf[5])<<16

	t := CompensateTemperature(rawT, &d.coeffs)
	p := CompensatePressure(rawP, t, &d.coeffs)
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
