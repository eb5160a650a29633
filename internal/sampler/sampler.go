// Package sampler periodically reads a set of barometric sensors, one worker
// per I2C bus, and turns every attempt into a Reading.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"baro-sampler/internal/sensors"
)

// ErrAbsent marks readings from a sensor that could not be initialized.
var ErrAbsent = errors.New("sensor absent")

// Mode is the sampling policy applied to every sensor.
type Mode string

const (
	LowPower Mode = "low_power"
	Normal   Mode = "normal"
)

type Config struct {
	Mode Mode
	// Period is the default per-sensor period.
	Period time.Duration
	// ReadRetries bounds extra attempts after an IO error within one tick.
	ReadRetries int
	// ReinitAfter consecutive failed ticks trigger a Reset, at most once per
	// ReinitBackoff.
	ReinitAfter   int
	ReinitBackoff time.Duration
	SeaLevelHPa   float64
	// ForceMeasure triggers a one-shot conversion before each read on
	// sensors implementing sensors.ForcedMeasurer.
	ForceMeasure bool
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = LowPower
	}
	if c.Period <= 0 {
		c.Period = time.Second
	}
	if c.ReadRetries < 0 {
		c.ReadRetries = 0
	}
	if c.ReinitAfter <= 0 {
		c.ReinitAfter = 10
	}
	if c.ReinitBackoff <= 0 {
		c.ReinitBackoff = 2 * time.Second
	}
	if !(c.SeaLevelHPa > 0) {
		c.SeaLevelHPa = StandardSeaLevelHPa
	}
}

// Source is one configured sensor. Sensor is nil when initialization failed;
// such sources still produce (invalid) readings every period.
type Source struct {
	Name   string
	Chip   sensors.Chip
	Bus    string
	Addr   uint16
	Period time.Duration
	Sensor sensors.Sensor
	// Init builds Sensor again while it is nil, at most once per
	// ReinitBackoff. Nil when the sensor is known to be missing.
	Init func() (sensors.Sensor, error)
}

// Handler receives every reading. It is called from one goroutine per bus.
type Handler func(Reading)

type Sampler struct {
	cfg     Config
	sources []Source
	log     *logrus.Entry
	metrics *Metrics
	handler Handler
	now     func() time.Time
}

func New(cfg Config, sources []Source, log *logrus.Entry, m *Metrics, h Handler) (*Sampler, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("sampler: no sensors configured")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if h == nil {
		h = func(Reading) {}
	}
	cfg.setDefaults()
	if cfg.Mode != LowPower && cfg.Mode != Normal {
		return nil, fmt.Errorf("sampler: unknown mode %q", cfg.Mode)
	}
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if seen[s.Name] {
			return nil, fmt.Errorf("sampler: duplicate sensor name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &Sampler{
		cfg:     cfg,
		sources: sources,
		log:     log,
		metrics: m,
		handler: h,
		now:     time.Now,
	}, nil
}

// Run samples until ctx is done, then puts every sensor to sleep.
func (s *Sampler) Run(ctx context.Context) error {
	byBus := make(map[string][]*sensorState)
	for _, src := range s.sources {
		if src.Period <= 0 {
			src.Period = s.cfg.Period
		}
		st := &sensorState{src: src, log: s.log.WithFields(logrus.Fields{
			"sensor":  src.Name,
			"chip":    string(src.Chip),
			"bus":     src.Bus,
			"address": fmt.Sprintf("0x%02X", src.Addr),
		})}
		byBus[src.Bus] = append(byBus[src.Bus], st)
	}
	buses := make([]string, 0, len(byBus))
	for b := range byBus {
		buses = append(buses, b)
	}
	sort.Strings(buses)

	var wg sync.WaitGroup
	for _, b := range buses {
		wg.Add(1)
		go func(states []*sensorState) {
			defer wg.Done()
			s.runBus(ctx, states)
		}(byBus[b])
	}
	wg.Wait()
	return nil
}

type sensorState struct {
	src Source
	log *logrus.Entry

	next        time.Time
	failures    int
	needsReinit bool
	lastReinit  time.Time
}

func (s *Sampler) runBus(ctx context.Context, states []*sensorState) {
	tick := states[0].src.Period
	for _, st := range states {
		if st.src.Period < tick {
			tick = st.src.Period
		}
		if st.src.Sensor == nil {
			st.log.Warn("sensor absent; reporting empty readings")
			continue
		}
		if err := s.applyMode(st.src.Sensor); err != nil {
			st.log.WithError(err).Warn("configure failed")
			st.needsReinit = true
		}
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	now := s.now()
	for {
		for _, st := range states {
			if now.Before(st.next) {
				continue
			}
			st.next = now.Add(st.src.Period)
			r := s.sample(ctx, st)
			if ctx.Err() != nil {
				break
			}
			s.handler(r)
		}

		select {
		case <-ctx.Done():
			for _, st := range states {
				if st.src.Sensor == nil {
					continue
				}
				if err := st.src.Sensor.Sleep(); err != nil {
					st.log.WithError(err).Debug("sleep failed")
				}
			}
			return
		case <-ticker.C:
			now = s.now()
		}
	}
}

func (s *Sampler) applyMode(sn sensors.Sensor) error {
	if s.cfg.Mode == Normal {
		return sn.SetNormalMode()
	}
	return sn.SetLowPowerMode()
}

// sample takes one reading from st, retrying IO errors and re-initializing
// the sensor when it keeps failing.
func (s *Sampler) sample(ctx context.Context, st *sensorState) Reading {
	start := s.now()
	r := Reading{Source: st.src.Name, Chip: st.src.Chip, Bus: st.src.Bus, Time: start}

	sn := st.src.Sensor
	if sn == nil {
		sn = s.construct(st, start)
	}
	if sn == nil {
		r.Err = ErrAbsent
		s.metrics.observe(r, ResultAbsent, 0)
		return r
	}

	if st.needsReinit || st.failures >= s.cfg.ReinitAfter {
		if start.Sub(st.lastReinit) >= s.cfg.ReinitBackoff {
			s.reinit(ctx, st)
		}
	}

	var sample sensors.Sample
	var err error
	if st.needsReinit {
		err = fmt.Errorf("waiting for re-init: %w", sensors.ErrNotConfigured)
	} else {
		for attempt := 0; attempt <= s.cfg.ReadRetries; attempt++ {
			sample, err = s.read(ctx, sn)
			if err == nil || !sensors.IsIOError(err) || ctx.Err() != nil {
				break
			}
			st.log.WithError(err).WithField("attempt", attempt+1).Debug("read failed")
		}
	}
	elapsed := s.now().Sub(start).Seconds()

	if err != nil {
		st.failures++
		if errors.Is(err, sensors.ErrCalibration) || errors.Is(err, sensors.ErrNotConfigured) {
			st.needsReinit = true
		}
		r.Err = err
		s.metrics.observe(r, classify(err), elapsed)
		st.log.WithError(err).WithField("failures", st.failures).Warn("reading failed")
		return r
	}

	st.failures = 0
	r.Valid = true
	r.Sample = sample
	r.AltitudeM = AltitudeAt(sample.PressureHPa(), s.cfg.SeaLevelHPa)
	s.metrics.observe(r, ResultOK, elapsed)
	env := sample.Env()
	st.log.WithFields(logrus.Fields{
		"pressure":    env.Pressure.String(),
		"temperature": env.Temperature.String(),
		"altitude_m":  r.AltitudeM,
	}).Debug("reading")
	return r
}

func (s *Sampler) read(ctx context.Context, sn sensors.Sensor) (sensors.Sample, error) {
	if s.cfg.ForceMeasure && s.cfg.Mode == LowPower {
		if fm, ok := sn.(sensors.ForcedMeasurer); ok {
			if err := fm.ForceMeasure(ctx); err != nil {
				return sensors.Sample{}, err
			}
		}
	}
	return sn.Sense(ctx)
}

// construct retries building an absent sensor. A sensor that reports it is
// not there stops being retried.
func (s *Sampler) construct(st *sensorState, now time.Time) sensors.Sensor {
	if st.src.Init == nil || now.Sub(st.lastReinit) < s.cfg.ReinitBackoff {
		return nil
	}
	st.lastReinit = now
	s.metrics.reinit(st.src.Name)
	sn, err := st.src.Init()
	if err != nil {
		if !sensors.Recoverable(err) {
			st.src.Init = nil
			st.log.WithError(err).Warn("sensor absent; giving up")
			return nil
		}
		st.log.WithError(err).Debug("init failed")
		return nil
	}
	st.src.Sensor = sn
	if err := s.applyMode(sn); err != nil {
		st.log.WithError(err).Warn("configure failed")
		st.needsReinit = true
		return sn
	}
	st.log.Info("sensor initialized")
	return sn
}

func (s *Sampler) reinit(ctx context.Context, st *sensorState) {
	st.lastReinit = s.now()
	s.metrics.reinit(st.src.Name)
	sn := st.src.Sensor
	if err := sn.Reset(ctx); err != nil {
		st.log.WithError(err).Warn("re-init failed")
		st.needsReinit = true
		return
	}
	if err := s.applyMode(sn); err != nil {
		st.log.WithError(err).Warn("re-init configure failed")
		st.needsReinit = true
		return
	}
	st.log.Info("sensor re-initialized")
	st.needsReinit = false
	st.failures = 0
}

func classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, sensors.ErrTimeout):
		return ResultTimeout
	case sensors.IsIOError(err):
		return ResultIOError
	case errors.Is(err, sensors.ErrCalibration):
		return ResultCalibration
	}
	return ResultError
}
