package config

import (
	"github.com/keks/flashfs/dir"
	"github.com/keks/flashfs/internal/flashsim"
)

const (
	defaultSpeedHz       = 10_000_000
	defaultBaud          = 115200
	defaultSerialTimeout = 2000
	defaultWakeupDelay   = 50
)

// Normalize fills defaults.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	t := &cfg.Transport
	if t.Kind == "" {
		t.Kind = KindSim
	}
	if t.Sim.Model == "" {
		t.Sim.Model = flashsim.W25Q128.Name
	}
	if t.Periph.SpeedHz == 0 {
		t.Periph.SpeedHz = defaultSpeedHz
	}
	if t.Serprog.Baud == 0 {
		t.Serprog.Baud = defaultBaud
	}
	if t.Serprog.TimeoutMs == 0 {
		t.Serprog.TimeoutMs = defaultSerialTimeout
	}

	if cfg.Chip.WakeupDelayUs == 0 {
		cfg.Chip.WakeupDelayUs = defaultWakeupDelay
	}

	if cfg.Directory.MaxFiles == 0 {
		cfg.Directory.MaxFiles = dir.DefaultMaxFiles
	}
	if cfg.Directory.StringsSize == 0 {
		cfg.Directory.StringsSize = dir.DefaultStringsSize
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
