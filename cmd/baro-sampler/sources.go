package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"baro-sampler/internal/config"
	"baro-sampler/internal/i2c"
	"baro-sampler/internal/sampler"
	"baro-sampler/internal/sensors"
	"baro-sampler/internal/sensors/bmp280"
	"baro-sampler/internal/sensors/bmp388"
	"baro-sampler/internal/sensors/dps310"
)

type busOpener func(bus int) (i2c.Opener, error)

type constructor func(sensors.RegisterIO, *sensors.Opts) (sensors.Sensor, error)

var constructors = map[sensors.Chip]constructor{
	sensors.BMP280: func(dev sensors.RegisterIO, o *sensors.Opts) (sensors.Sensor, error) { return bmp280.New(dev, o) },
	sensors.BMP388: func(dev sensors.RegisterIO, o *sensors.Opts) (sensors.Sensor, error) { return bmp388.New(dev, o) },
	sensors.DPS310: func(dev sensors.RegisterIO, o *sensors.Opts) (sensors.Sensor, error) { return dps310.New(dev, o) },
}

// buildSources opens every bus the enabled sensors need and initializes the
// sensors. A sensor that fails is kept as an absent source so it still shows
// up in the output; transient failures leave it rebuildable.
func buildSources(cfg config.Config, open busOpener, log *logrus.Entry) ([]sampler.Source, func()) {
	opts := &sensors.Opts{
		PollInterval: cfg.Sampling.PollInterval,
		ReadyTimeout: cfg.Sampling.ReadyTimeout,
	}

	buses := map[int]i2c.Opener{}
	busErrs := map[int]error{}
	var sources []sampler.Source
	for _, sc := range cfg.Sensors {
		if !sc.Enabled() {
			continue
		}
		chip, err := sensors.ParseChip(sc.Chip)
		if err != nil {
			// config validation already rejects unknown chips
			log.WithError(err).WithField("sensor", sc.Name).Warn("skipping sensor")
			continue
		}
		src := sampler.Source{
			Name:   sc.Name,
			Chip:   chip,
			Bus:    strconv.Itoa(sc.Bus),
			Addr:   sc.Address,
			Period: sc.Period,
		}
		l := log.WithFields(logrus.Fields{
			"sensor":  sc.Name,
			"chip":    sc.Chip,
			"bus":     sc.Bus,
			"address": fmt.Sprintf("0x%02X", sc.Address),
		})

		bus, ok := buses[sc.Bus]
		if !ok && busErrs[sc.Bus] == nil {
			bus, err = open(sc.Bus)
			if err != nil {
				busErrs[sc.Bus] = err
			} else {
				buses[sc.Bus] = bus
				src.Bus = bus.String()
			}
		} else if ok {
			src.Bus = bus.String()
		}
		if err := busErrs[sc.Bus]; err != nil {
			l.WithError(err).Warn("bus unavailable; sensor absent")
			sources = append(sources, src)
			continue
		}

		conn, err := bus.Conn(sc.Address)
		if err != nil {
			l.WithError(err).Warn("sensor absent")
			sources = append(sources, src)
			continue
		}
		build := func() (sensors.Sensor, error) { return constructors[chip](conn, opts) }
		sn, err := build()
		if err != nil {
			if sensors.Recoverable(err) {
				// The sampler retries construction on its re-init schedule.
				src.Init = build
			}
			l.WithError(err).Warn("sensor absent")
			sources = append(sources, src)
			continue
		}
		l.Info("sensor initialized")
		src.Sensor = sn
		sources = append(sources, src)
	}

	closeAll := func() {
		for n, b := range buses {
			if err := b.Close(); err != nil {
				log.WithError(err).WithField("bus", n).Warn("close bus failed")
			}
		}
	}
	return sources, closeAll
}
