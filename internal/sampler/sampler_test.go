package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"baro-sampler/internal/sensors"
	"baro-sampler/internal/sensors/bmp280"
	"baro-sampler/internal/sensors/sensortest"
)

var errNack = &sensors.IOError{Op: "read", Reg: 0xF7, Err: errors.New("nack")}

type fakeSensor struct {
	mu sync.Mutex

	sample   sensors.Sample
	errs     []error // returned by successive Sense calls before succeeding
	resetErr error

	senses, resets, lowPower, normal, sleeps, forced int
}

func (f *fakeSensor) Chip() sensors.Chip         { return sensors.BMP280 }
func (f *fakeSensor) State() sensors.State       { return sensors.Configured }
func (f *fakeSensor) Settings() sensors.Settings { return sensors.Settings{} }

func (f *fakeSensor) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeSensor) Configure(sensors.Settings) error { return nil }

func (f *fakeSensor) SetLowPowerMode() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowPower++
	return nil
}

func (f *fakeSensor) SetNormalMode() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.normal++
	return nil
}

func (f *fakeSensor) Sleep() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps++
	return nil
}

func (f *fakeSensor) Sense(context.Context) (sensors.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.senses++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return sensors.Sample{}, err
	}
	return f.sample, nil
}

func (f *fakeSensor) Temperature(ctx context.Context) (float64, error) {
	s, err := f.Sense(ctx)
	return s.TemperatureC, err
}

func (f *fakeSensor) Pressure(ctx context.Context) (float64, error) {
	s, err := f.Sense(ctx)
	return s.PressureHPa(), err
}

type forcedSensor struct{ fakeSensor }

func (f *forcedSensor) ForceMeasure(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
	return nil
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestSampler(t *testing.T, cfg Config, srcs ...Source) (*Sampler, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	s, err := New(cfg, srcs, quietLog(), m, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, m
}

func stateFor(s *Sampler, i int) *sensorState {
	return &sensorState{src: s.sources[i], log: s.log}
}

var okSample = sensors.Sample{TemperatureC: 20, PressurePa: 90000}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for no sensors")
	}
	dup := []Source{{Name: "A"}, {Name: "A"}}
	if _, err := New(Config{}, dup, nil, nil, nil); err == nil {
		t.Fatalf("expected error for duplicate names")
	}
	if _, err := New(Config{Mode: "turbo"}, []Source{{Name: "A"}}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSample_RetriesIOErrors(t *testing.T) {
	f := &fakeSensor{sample: okSample, errs: []error{errNack, errNack}}
	s, m := newTestSampler(t, Config{ReadRetries: 2}, Source{Name: "A", Sensor: f})
	st := stateFor(s, 0)
	st.lastReinit = time.Now()

	r := s.sample(context.Background(), st)
	if !r.Valid {
		t.Fatalf("reading invalid: %v", r.Err)
	}
	if f.senses != 3 {
		t.Fatalf("senses=%d want 3", f.senses)
	}
	if want := AltitudeAt(900, StandardSeaLevelHPa); r.AltitudeM != want {
		t.Fatalf("altitude got=%v want=%v", r.AltitudeM, want)
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("A", ResultOK)); got != 1 {
		t.Fatalf("ok count=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.pressure.WithLabelValues("A")); got != 900 {
		t.Fatalf("pressure gauge=%v want 900", got)
	}
}

func TestSample_RetriesExhausted(t *testing.T) {
	f := &fakeSensor{sample: okSample, errs: []error{errNack, errNack, errNack}}
	s, m := newTestSampler(t, Config{ReadRetries: 2}, Source{Name: "A", Sensor: f})
	st := stateFor(s, 0)
	st.lastReinit = time.Now()

	r := s.sample(context.Background(), st)
	if r.Valid || !sensors.IsIOError(r.Err) {
		t.Fatalf("reading=%+v want io error", r)
	}
	if r.String() != "A ---" {
		t.Fatalf("String got=%q", r.String())
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("A", ResultIOError)); got != 1 {
		t.Fatalf("io_error count=%v want 1", got)
	}

	// The sensor recovers on the next tick.
	if r := s.sample(context.Background(), st); !r.Valid {
		t.Fatalf("second reading invalid: %v", r.Err)
	}
	if st.failures != 0 {
		t.Fatalf("failures=%d want 0", st.failures)
	}
}

func TestSample_TimeoutIsNotRetriedWithinTick(t *testing.T) {
	f := &fakeSensor{sample: okSample, errs: []error{sensors.ErrTimeout}}
	s, m := newTestSampler(t, Config{ReadRetries: 5}, Source{Name: "A", Sensor: f})
	st := stateFor(s, 0)
	st.lastReinit = time.Now()

	r := s.sample(context.Background(), st)
	if !errors.Is(r.Err, sensors.ErrTimeout) {
		t.Fatalf("err=%v want timeout", r.Err)
	}
	if f.senses != 1 {
		t.Fatalf("senses=%d want 1", f.senses)
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("A", ResultTimeout)); got != 1 {
		t.Fatalf("timeout count=%v want 1", got)
	}
	if st.needsReinit {
		t.Fatalf("timeout must not force a reset")
	}
}

func TestSample_Absent(t *testing.T) {
	s, m := newTestSampler(t, Config{}, Source{Name: "GONE", Chip: sensors.DPS310})
	r := s.sample(context.Background(), stateFor(s, 0))
	if r.Valid || !errors.Is(r.Err, ErrAbsent) {
		t.Fatalf("reading=%+v want absent", r)
	}
	if r.String() != "GONE ---" {
		t.Fatalf("String got=%q", r.String())
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("GONE", ResultAbsent)); got != 1 {
		t.Fatalf("absent count=%v want 1", got)
	}
}

func TestSample_RebuildsSensorAfterTransientInitError(t *testing.T) {
	fk := newBMP280Fake()
	fk.Fail(0xD0, errors.New("nack"))
	opts := &sensors.Opts{PollInterval: time.Millisecond, ReadyTimeout: 50 * time.Millisecond}
	build := func() (sensors.Sensor, error) { return bmp280.New(fk, opts) }

	_, err := build()
	if !sensors.IsIOError(err) {
		t.Fatalf("err=%v want io error", err)
	}

	s, m := newTestSampler(t, Config{ReinitBackoff: time.Second},
		Source{Name: "BMP280", Chip: sensors.BMP280, Init: build})
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	st := stateFor(s, 0)

	// The bus still fails on the first tick.
	if r := s.sample(context.Background(), st); r.Valid || !errors.Is(r.Err, ErrAbsent) {
		t.Fatalf("reading=%+v want absent", r)
	}
	if st.src.Init == nil {
		t.Fatalf("transient error must keep the sensor retryable")
	}

	fk.Fail(0xD0, nil)
	now = now.Add(500 * time.Millisecond)
	if r := s.sample(context.Background(), st); r.Valid {
		t.Fatalf("rebuilt inside backoff")
	}

	now = now.Add(time.Second)
	r := s.sample(context.Background(), st)
	if !r.Valid {
		t.Fatalf("reading invalid after recovery: %v", r.Err)
	}
	if r.String() != "BMP280 1006.53hPa 56.08m" {
		t.Fatalf("String got=%q", r.String())
	}
	if st.src.Sensor == nil || st.src.Sensor.State() < sensors.Configured {
		t.Fatalf("sensor not kept after rebuild")
	}
	if got := testutil.ToFloat64(m.reinits.WithLabelValues("BMP280")); got != 2 {
		t.Fatalf("reinit count=%v want 2", got)
	}
}

func TestSample_MissingSensorIsNotRebuilt(t *testing.T) {
	calls := 0
	build := func() (sensors.Sensor, error) {
		calls++
		return nil, fmt.Errorf("dps310: product id 0x00: %w", sensors.ErrDeviceNotFound)
	}
	s, _ := newTestSampler(t, Config{ReinitBackoff: time.Second}, Source{Name: "DPS310", Init: build})
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	st := stateFor(s, 0)

	for i := 0; i < 3; i++ {
		if r := s.sample(context.Background(), st); !errors.Is(r.Err, ErrAbsent) {
			t.Fatalf("err=%v want absent", r.Err)
		}
		now = now.Add(2 * time.Second)
	}
	if calls != 1 {
		t.Fatalf("init calls=%d want 1", calls)
	}
}

func TestSample_LogsUnitTypedValues(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fakeSensor{sample: okSample}
	s, err := New(Config{}, []Source{{Name: "A", Sensor: f}}, logrus.NewEntry(logger), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st := stateFor(s, 0)
	st.lastReinit = time.Now()

	if r := s.sample(context.Background(), st); !r.Valid {
		t.Fatalf("reading invalid: %v", r.Err)
	}
	e := hook.LastEntry()
	if e == nil || e.Message != "reading" {
		t.Fatalf("last entry=%v want reading", e)
	}
	env := okSample.Env()
	if got := e.Data["pressure"]; got != env.Pressure.String() {
		t.Fatalf("pressure got=%v want=%v", got, env.Pressure.String())
	}
	if got := e.Data["temperature"]; got != env.Temperature.String() {
		t.Fatalf("temperature got=%v want=%v", got, env.Temperature.String())
	}
}

func TestSample_ReinitAfterConsecutiveFailures(t *testing.T) {
	f := &fakeSensor{sample: okSample, errs: []error{sensors.ErrTimeout, sensors.ErrTimeout}}
	s, m := newTestSampler(t, Config{ReinitAfter: 2, ReinitBackoff: time.Second}, Source{Name: "A", Sensor: f})
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	st := stateFor(s, 0)
	st.lastReinit = now

	s.sample(context.Background(), st)
	s.sample(context.Background(), st)
	if f.resets != 0 {
		t.Fatalf("resets=%d want 0", f.resets)
	}

	// Still inside the backoff window.
	f.errs = []error{sensors.ErrTimeout}
	s.sample(context.Background(), st)
	if f.resets != 0 {
		t.Fatalf("resets=%d want 0 inside backoff", f.resets)
	}

	now = now.Add(time.Second)
	r := s.sample(context.Background(), st)
	if f.resets != 1 || f.lowPower != 1 {
		t.Fatalf("resets=%d lowPower=%d want 1/1", f.resets, f.lowPower)
	}
	if !r.Valid {
		t.Fatalf("reading after reinit invalid: %v", r.Err)
	}
	if got := testutil.ToFloat64(m.reinits.WithLabelValues("A")); got != 1 {
		t.Fatalf("reinit count=%v want 1", got)
	}
}

func TestSample_CalibrationErrorForcesReset(t *testing.T) {
	f := &fakeSensor{sample: okSample, errs: []error{sensors.ErrCalibration}}
	s, m := newTestSampler(t, Config{Mode: Normal, ReinitBackoff: time.Second}, Source{Name: "A", Sensor: f})
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	st := stateFor(s, 0)
	st.lastReinit = now.Add(-time.Hour)

	// The bad calibration surfaces first; the reset happens on the next tick.
	r := s.sample(context.Background(), st)
	if f.resets != 0 {
		t.Fatalf("resets=%d want 0", f.resets)
	}
	if !errors.Is(r.Err, sensors.ErrCalibration) || !st.needsReinit {
		t.Fatalf("err=%v needsReinit=%v", r.Err, st.needsReinit)
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("A", ResultCalibration)); got != 1 {
		t.Fatalf("calibration count=%v want 1", got)
	}

	r = s.sample(context.Background(), st)
	if f.resets != 1 || f.normal != 1 || !r.Valid {
		t.Fatalf("resets=%d normal=%d valid=%v", f.resets, f.normal, r.Valid)
	}
}

func TestSample_FailedResetWaitsForBackoff(t *testing.T) {
	f := &fakeSensor{sample: okSample, resetErr: errors.New("bus stuck")}
	s, _ := newTestSampler(t, Config{ReinitBackoff: time.Second}, Source{Name: "A", Sensor: f})
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	st := stateFor(s, 0)
	st.needsReinit = true

	r := s.sample(context.Background(), st)
	if f.resets != 1 || r.Valid || f.senses != 0 {
		t.Fatalf("resets=%d valid=%v senses=%d", f.resets, r.Valid, f.senses)
	}
	now = now.Add(500 * time.Millisecond)
	s.sample(context.Background(), st)
	if f.resets != 1 {
		t.Fatalf("resets=%d want 1 inside backoff", f.resets)
	}

	f.resetErr = nil
	now = now.Add(time.Second)
	if r := s.sample(context.Background(), st); !r.Valid {
		t.Fatalf("reading invalid after recovery: %v", r.Err)
	}
}

func TestSample_ForceMeasure(t *testing.T) {
	f := &forcedSensor{fakeSensor{sample: okSample}}
	plain := &fakeSensor{sample: okSample}
	s, _ := newTestSampler(t, Config{ForceMeasure: true},
		Source{Name: "F", Sensor: f},
		Source{Name: "P", Sensor: plain},
	)
	for i := range s.sources {
		st := stateFor(s, i)
		st.lastReinit = time.Now()
		if r := s.sample(context.Background(), st); !r.Valid {
			t.Fatalf("%s invalid: %v", r.Source, r.Err)
		}
	}
	if f.forced != 1 {
		t.Fatalf("forced=%d want 1", f.forced)
	}
}

func TestRun_SamplesEveryBus(t *testing.T) {
	a := &fakeSensor{sample: okSample}
	b := &fakeSensor{sample: okSample}
	srcs := []Source{
		{Name: "A", Bus: "0", Sensor: a, Period: 5 * time.Millisecond},
		{Name: "GONE", Bus: "0", Period: 5 * time.Millisecond},
		{Name: "B", Bus: "1", Sensor: b, Period: 10 * time.Millisecond},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	counts := map[string]int{}
	h := func(r Reading) {
		mu.Lock()
		defer mu.Unlock()
		counts[r.Source]++
		if counts["A"] >= 3 && counts["GONE"] >= 3 && counts["B"] >= 3 {
			cancel()
		}
	}
	s, err := New(Config{Mode: Normal}, srcs, quietLog(), NewMetrics(prometheus.NewRegistry()), h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("timed out, counts=%v", counts)
	}
	for _, f := range []*fakeSensor{a, b} {
		if f.normal != 1 || f.sleeps != 1 {
			t.Fatalf("normal=%d sleeps=%d want 1/1", f.normal, f.sleeps)
		}
	}
}

// newBMP280Fake models a BMP280 with the datasheet trimming values.
func newBMP280Fake() *sensortest.Fake {
	fk := sensortest.New()
	fk.Set(0xD0, 0x58)
	fk.Set(0x88,
		0x70, 0x6B, 0x43, 0x67, 0x18, 0xFC, 0x7D, 0x8E,
		0x43, 0xD6, 0xD0, 0x0B, 0x27, 0x0B, 0x8C, 0x00,
		0xF9, 0xFF, 0x8C, 0x3C, 0xF8, 0xC6, 0x70, 0x17,
	)
	fk.Set(0xF3, 0x00)
	fk.Set(0xF7, 0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00)
	return fk
}

func TestSample_BMP280EndToEnd(t *testing.T) {
	fk := newBMP280Fake()

	dev, err := bmp280.New(fk, &sensors.Opts{PollInterval: time.Millisecond, ReadyTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("bmp280.New: %v", err)
	}
	s, _ := newTestSampler(t, Config{}, Source{Name: "BMP280", Chip: sensors.BMP280, Sensor: dev})
	if err := s.applyMode(dev); err != nil {
		t.Fatalf("applyMode: %v", err)
	}
	st := stateFor(s, 0)
	st.lastReinit = time.Now()

	r := s.sample(context.Background(), st)
	if !r.Valid {
		t.Fatalf("reading invalid: %v", r.Err)
	}
	if r.Sample.TemperatureC != 25.08 {
		t.Fatalf("temp got=%v want 25.08", r.Sample.TemperatureC)
	}
	if math.Abs(r.AltitudeM-56.07816744868399) > 1e-6 {
		t.Fatalf("altitude got=%v", r.AltitudeM)
	}
	if r.String() != "BMP280 1006.53hPa 56.08m" {
		t.Fatalf("String got=%q", r.String())
	}
}
