package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"baro-sampler/internal/config"
	"baro-sampler/internal/i2c"
	"baro-sampler/internal/sampler"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./baro.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := i2c.ParseBackend(cfg.Transport)
	if err != nil {
		logger.Fatalf("transport: %v", err)
	}
	opener := func(bus int) (i2c.Opener, error) { return i2c.OpenBus(backend, bus) }

	if err := run(ctx, cfg, logger, opener, os.Stdout); err != nil {
		logger.WithError(err).Fatal("baro-sampler failed")
	}
}

// run builds the sensors, samples until ctx is done and logs a summary.
func run(ctx context.Context, cfg config.Config, logger *logrus.Logger, open busOpener, out io.Writer) error {
	entry := logrus.NewEntry(logger)
	entry.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"mode":      cfg.Sampling.Mode,
		"period":    cfg.Sampling.Period,
	}).Info("baro-sampler starting")

	sources, closeBuses := buildSources(cfg, open, entry)
	defer closeBuses()

	reg := prometheus.NewRegistry()
	metrics := sampler.NewMetrics(reg)

	var outMu sync.Mutex
	handler := func(r sampler.Reading) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(out, r.Line())
	}

	s, err := sampler.New(samplerConfig(cfg.Sampling), sources, entry, metrics, handler)
	if err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return err
	}

	mfs, err := reg.Gather()
	if err != nil {
		entry.WithError(err).Warn("gather metrics failed")
	}
	for _, line := range summarizeMetrics(mfs).Lines() {
		entry.Info(line)
	}
	entry.Info("baro-sampler stopping")
	return nil
}

func samplerConfig(c config.SamplingConfig) sampler.Config {
	return sampler.Config{
		Mode:          sampler.Mode(c.Mode),
		Period:        c.Period,
		ReadRetries:   *c.ReadRetries,
		ReinitAfter:   c.ReinitAfter,
		ReinitBackoff: c.ReinitBackoff,
		SeaLevelHPa:   c.SeaLevelHPa,
		ForceMeasure:  c.ForceMeasure,
	}
}
