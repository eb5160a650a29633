package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LogConfig      `yaml:"log"`
	Transport string         `yaml:"transport"`
	Sampling  SamplingConfig `yaml:"sampling"`
	Sensors   []SensorConfig `yaml:"sensors"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives log output instead of stderr.
	File string `yaml:"file"`
}

type SamplingConfig struct {
	Mode         string        `yaml:"mode"`
	Period       time.Duration `yaml:"period"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	// ReadRetries is a pointer so an explicit 0 disables retries.
	ReadRetries   *int          `yaml:"read_retries"`
	ReinitAfter   int           `yaml:"reinit_after"`
	ReinitBackoff time.Duration `yaml:"reinit_backoff"`
	SeaLevelHPa   float64       `yaml:"sea_level_hpa"`
	// ForceMeasure triggers a one-shot conversion before each read on chips
	// that support it.
	ForceMeasure bool `yaml:"force_measure"`
}

type SensorConfig struct {
	Name    string        `yaml:"name"`
	Chip    string        `yaml:"chip"`
	Bus     int           `yaml:"bus"`
	Address uint16        `yaml:"address"`
	Period  time.Duration `yaml:"period"`
	Enable  *bool         `yaml:"enable"`
}

// Enabled reports whether the sensor should be sampled. Sensors are enabled
// unless explicitly disabled.
func (s SensorConfig) Enabled() bool { return s.Enable == nil || *s.Enable }

const (
	ModeLowPower = "low_power"
	ModeNormal   = "normal"
)

var chipAddresses = map[string][]uint16{
	"bmp280": {0x76, 0x77},
	"bmp388": {0x77, 0x76},
	"dps310": {0x77, 0x76},
}

// DefaultSensors mirrors the reference board: a BMP280 and a DPS310 on bus 0
// and a BMP388 on bus 1.
func DefaultSensors() []SensorConfig {
	return []SensorConfig{
		{Name: "BMP280", Chip: "bmp280", Bus: 0, Address: 0x76},
		{Name: "DPS310", Chip: "dps310", Bus: 0, Address: 0x77},
		{Name: "BMP388", Chip: "bmp388", Bus: 1, Address: 0x77},
	}
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = "linux"
	}
	switch cfg.Transport {
	case "linux", "periph", "embd":
	default:
		return fmt.Errorf("transport must be one of linux, periph, embd")
	}

	s := &cfg.Sampling
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	if s.Mode == "" {
		s.Mode = ModeLowPower
	}
	if s.Mode != ModeLowPower && s.Mode != ModeNormal {
		return fmt.Errorf("sampling.mode must be 'low_power' or 'normal'")
	}
	if s.Period == 0 {
		s.Period = 1 * time.Second
	}
	if s.Period < 0 {
		return fmt.Errorf("sampling.period must be > 0")
	}
	if s.PollInterval == 0 {
		s.PollInterval = 5 * time.Millisecond
	}
	if s.ReadyTimeout == 0 {
		s.ReadyTimeout = 1000 * time.Millisecond
	}
	if s.PollInterval < 0 || s.ReadyTimeout < 0 {
		return fmt.Errorf("sampling.poll_interval and sampling.ready_timeout must be > 0")
	}
	if s.ReadyTimeout < s.PollInterval {
		return fmt.Errorf("sampling.ready_timeout must be >= sampling.poll_interval")
	}
	if s.ReadRetries == nil {
		retries := 2
		s.ReadRetries = &retries
	}
	if *s.ReadRetries < 0 {
		return fmt.Errorf("sampling.read_retries must be >= 0")
	}
	if s.ReinitAfter == 0 {
		s.ReinitAfter = 10
	}
	if s.ReinitAfter < 0 {
		return fmt.Errorf("sampling.reinit_after must be > 0")
	}
	if s.ReinitBackoff == 0 {
		s.ReinitBackoff = 2 * time.Second
	}
	if s.ReinitBackoff < 0 {
		return fmt.Errorf("sampling.reinit_backoff must be > 0")
	}
	if s.SeaLevelHPa == 0 {
		s.SeaLevelHPa = 1013.25
	}
	if s.SeaLevelHPa < 0 {
		return fmt.Errorf("sampling.sea_level_hpa must be > 0")
	}

	if len(cfg.Sensors) == 0 {
		cfg.Sensors = DefaultSensors()
	}
	names := make(map[string]bool, len(cfg.Sensors))
	type busAddr struct {
		bus  int
		addr uint16
	}
	owners := make(map[busAddr]string, len(cfg.Sensors))
	for i := range cfg.Sensors {
		sc := &cfg.Sensors[i]
		sc.Chip = strings.ToLower(strings.TrimSpace(sc.Chip))
		addrs, ok := chipAddresses[sc.Chip]
		if !ok {
			return fmt.Errorf("sensors[%d].chip must be one of bmp280, bmp388, dps310", i)
		}
		if sc.Name == "" {
			sc.Name = strings.ToUpper(sc.Chip)
		}
		if names[sc.Name] {
			return fmt.Errorf("sensors[%d].name %q is duplicated", i, sc.Name)
		}
		names[sc.Name] = true
		if sc.Bus < 0 {
			return fmt.Errorf("sensors[%d].bus must be >= 0", i)
		}
		if sc.Address == 0 {
			sc.Address = addrs[0]
		}
		if sc.Address != addrs[0] && sc.Address != addrs[1] {
			return fmt.Errorf("sensors[%d].address 0x%02X is not valid for %s", i, sc.Address, sc.Chip)
		}
		if sc.Enabled() {
			k := busAddr{sc.Bus, sc.Address}
			if owner, ok := owners[k]; ok {
				return fmt.Errorf("sensors[%d] bus %d address 0x%02X is already used by %q", i, sc.Bus, sc.Address, owner)
			}
			owners[k] = sc.Name
		}
		if sc.Period == 0 {
			sc.Period = s.Period
		}
		if sc.Period < 0 {
			return fmt.Errorf("sensors[%d].period must be > 0", i)
		}
	}
	return nil
}
