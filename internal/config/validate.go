package config

import (
	"github.com/jmgilman/go/errors"

	"github.com/keks/flashfs/dir"
	"github.com/keks/flashfs/internal/flashsim"
)

// Validate checks configuration correctness.
// Zero values mean "use the default" and are accepted.
// It does not mutate configuration.
func Validate(cfg *Config) error {
	if err := validateTransport(&cfg.Transport); err != nil {
		return err
	}

	if cfg.Chip.WaitTimeoutMs < 0 {
		return invalid("chip.wait_timeout_ms must not be negative")
	}
	if cfg.Chip.WakeupDelayUs < 0 {
		return invalid("chip.wakeup_delay_us must not be negative")
	}

	// the header stores max_files as u16 and strings_size/4 as u16;
	// 0xFFFF would read as an empty slot marker
	d := cfg.Directory
	if d.MaxFiles < 0 || d.MaxFiles > 0xFFFE {
		return invalid("directory.max_files must be between 1 and 65534, got %d", d.MaxFiles)
	}
	if d.StringsSize < 0 || d.StringsSize%4 != 0 || d.StringsSize > dir.MaxStringsSize {
		return invalid("directory.strings_size must be a multiple of 4 up to %d, got %d", dir.MaxStringsSize, d.StringsSize)
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

func validateTransport(t *TransportConfig) error {
	switch t.Kind {
	case "", KindSim:
		if t.Sim.Model != "" {
			if _, ok := flashsim.Models[t.Sim.Model]; !ok {
				return invalid("transport.sim.model %q is unknown", t.Sim.Model)
			}
		}

	case KindPeriph:
		p := t.Periph
		if p.Port == "" {
			return invalid("transport.periph.port is required")
		}
		if p.CS == "" {
			return invalid("transport.periph.cs is required")
		}
		if p.SpeedHz < 0 {
			return invalid("transport.periph.speed_hz must not be negative")
		}
		if p.Mode < 0 || p.Mode > 3 {
			return invalid("transport.periph.mode must be 0-3, got %d", p.Mode)
		}

	case KindSerprog:
		s := t.Serprog
		if s.Device == "" {
			return invalid("transport.serprog.device is required")
		}
		if s.Baud < 0 || s.TimeoutMs < 0 {
			return invalid("transport.serprog baud and timeout_ms must not be negative")
		}

	default:
		return invalid("transport.kind %q is not one of periph, serprog, sim", t.Kind)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return errors.Newf(errors.CodeInvalidConfig, format, args...)
}
