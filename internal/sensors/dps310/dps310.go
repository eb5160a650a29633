// Package dps310 drives the Infineon DPS310 in background (continuous) mode.
package dps310

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

	regPrsB2 = 0x00
	dataLen  = 6 // PRS_B2..TMP_B0

	regPrsCfg  = 0x06
	regTmpCfg  = 0x07
	regMeasCfg = 0x08
	regCfg     = 0x09
	regReset   = 0x0C
	regProdID  = 0x0D
	regCoef    = 0x10
	coefLen    = 18
	regCoefSrc = 0x28

	prodID    = 0x10
	softReset = 0x89

	measCoefRdy   = 0x80
	measSensorRdy = 0x40
	measTmpRdy    = 0x20
	measPrsRdy    = 0x10

	measIdle       = 0x00
	measBackground = 0x07

	cfgTShift = 0x08
	cfgPShift = 0x04

	tmpExt = 0x80

	// Sensor start-up after a soft reset.
	startupDelay  = 12 * time.Millisecond
	calibAttempts = 3
)

type Device struct {
	dev  sensors.RegisterIO
	opts sensors.Opts

	state    sensors.State
	settings sensors.Settings
	coef     Coefficients
	coefSrc  byte
	kT, kP   float64
}

var _ sensors.Sensor = (*Device)(nil)

func DefaultAddress() uint16 { return addrDefault }

// Addresses lists the addresses selectable with the SDO pin.
func Addresses() []uint16 { return []uint16{addrDefault, addrSecondary} }

// New checks the product ID, soft resets the chip and loads its
// coefficients. The returned device is Configured and idle.
func New(dev sensors.RegisterIO, opts *sensors.Opts) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("dps310: dev is nil")
	}
	d := &Device{dev: dev, opts: opts.Resolve()}

	id, err := sensors.ReadRegU8(d.dev, regProdID)
	if err != nil {
		return nil, fmt.Errorf("dps310: id read failed: %w", err)
	}
	if id != prodID {
		return nil, fmt.Errorf("dps310: product id=0x%02X want 0x%02X: %w", id, prodID, sensors.ErrDeviceNotFound)
	}
	if err := d.Reset(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Chip() sensors.Chip         { return sensors.DPS310 }
func (d *Device) State() sensors.State       { return d.state }
func (d *Device) Settings() sensors.Settings { return d.settings }

// Coefficients returns the decoded calibration.
func (d *Device) Coefficients() Coefficients { return d.coef }

func (d *Device) Reset(ctx context.Context) error {
	d.state = sensors.Resetting
	if err := sensors.WriteReg(d.dev, regReset, softReset); err != nil {
		return fmt.Errorf("dps310: reset failed: %w", err)
	}
	sleep(startupDelay)

	d.state = sensors.AwaitingCalibration
	err := sensors.WaitUntil(ctx, d.opts.PollInterval, d.opts.ReadyTimeout, func() (bool, error) {
		v, err := sensors.ReadRegU8(d.dev, regMeasCfg)
		return v&(measCoefRdy|measSensorRdy) == measCoefRdy|measSensorRdy, err
	})
	if err != nil {
		return fmt.Errorf("dps310: waiting for coefficients: %w", err)
	}

	var calibErr error
	for i := 0; i < calibAttempts; i++ {
		var c Coefficients
		c, calibErr = d.readCoefficients()
		if calibErr == nil {
			if c.plausible() {
				d.coef = c
				break
			}
			calibErr = fmt.Errorf("dps310: coefficients all zero: %w", sensors.ErrCalibration)
		}
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return calibErr
	}

	// Temperature must be measured with the sensor the coefficients were
	// trimmed against.
	src, err := sensors.ReadRegU8(d.dev, regCoefSrc)
	if err != nil {
		return fmt.Errorf("dps310: coefficient source read failed: %w", err)
	}
	d.coefSrc = src & tmpExt

	d.settings = sensors.Settings{Power: sensors.Sleep, TempOversampling: sensors.O1x, PressOversampling: sensors.O1x}
	d.kT, d.kP = scaleFactors[0], scaleFactors[0]
	d.state = sensors.Configured
	return nil
}

func (d *Device) readCoefficients() (Coefficients, error) {
	buf := make([]byte, coefLen)
	if err := sensors.ReadReg(d.dev, regCoef, buf); err != nil {
		return Coefficients{}, fmt.Errorf("dps310: read coefficients failed: %w", err)
	}
	return DecodeCoefficients(buf)
}

// Configure writes PRS_CFG, TMP_CFG, the shift bits in CFG_REG and finally
// MEAS_CFG. Settings whose conversions do not fit in one second are
// rejected.
func (d *Device) Configure(s sensors.Settings) error {
	if !d.state.Usable() {
		return fmt.Errorf("dps310: configure in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	r, err := encodeSettings(s)
	if err != nil {
		return err
	}
	// Stop background conversions while the configuration changes.
	if err := sensors.WriteReg(d.dev, regMeasCfg, measIdle); err != nil {
		return fmt.Errorf("dps310: meas_cfg write failed: %w", err)
	}
	if err := sensors.WriteReg(d.dev, regPrsCfg, r.prsCfg); err != nil {
		return fmt.Errorf("dps310: prs_cfg write failed: %w", err)
	}
	if err := sensors.WriteReg(d.dev, regTmpCfg, r.tmpCfg|d.coefSrc); err != nil {
		return fmt.Errorf("dps310: tmp_cfg write failed: %w", err)
	}
	cfg, err := sensors.ReadRegU8(d.dev, regCfg)
	if err != nil {
		return fmt.Errorf("dps310: cfg_reg read failed: %w", err)
	}
	cfg = cfg&^(cfgTShift|cfgPShift) | r.shift
	if err := sensors.WriteReg(d.dev, regCfg, cfg); err != nil {
		return fmt.Errorf("dps310: cfg_reg write failed: %w", err)
	}
	if r.meas != measIdle {
		if err := sensors.WriteReg(d.dev, regMeasCfg, r.meas); err != nil {
			return fmt.Errorf("dps310: meas_cfg write failed: %w", err)
		}
	}
	d.settings = s
	d.kT, d.kP = r.kT, r.kP
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

// Sense returns compensated temperature (C) and pressure (Pa). The first
// read after configuration waits until both results are available.
func (d *Device) Sense(ctx context.Context) (sensors.Sample, error) {
	if !d.state.Usable() {
		return sensors.Sample{}, fmt.Errorf("dps310: sense in state %s: %w", d.state, sensors.ErrNotConfigured)
	}
	if d.settings.Power != sensors.Normal {
		return sensors.Sample{}, fmt.Errorf("dps310: idle: %w", sensors.ErrNotConfigured)
	}
	if d.state != sensors.DataReady {
		d.state = sensors.Measuring
		err := sensors.WaitUntil(ctx, d.opts.PollInterval, d.opts.ReadyTimeout, func() (bool, error) {
			v, err := sensors.ReadRegU8(d.dev, regMeasCfg)
			return v&(measTmpRdy|measPrsRdy) == measTmpRdy|measPrsRdy, err
		})
		if err != nil {
			d.state = sensors.Configured
			return sensors.Sample{}, fmt.Errorf("dps310: measurement: %w", err)
		}
		d.state = sensors.DataReady
	}

	buf := make([]byte, dataLen)
	if err := sensors.ReadReg(d.dev, regPrsB2, buf); err != nil {
		return sensors.Sample{}, fmt.Errorf("dps310: read data failed: %w", err)
	}
	rawP := signExtend(uint32(buf[0])<<16|uint32(buf[1])<<8|uint32(buf[2]), 24)
	rawT := signExtend(uint32(buf[3])<<16|uint32(buf[4])<<8|uint32(buf[5]), 24)

	st, t := CompensateTemperature(rawT, d.kT, &d.coef)
	p := CompensatePressure(rawP, d.kP, st, &d.coef)
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
