package main

import (
	stderrors "errors"
	"io"
	"log/slog"
	"os"

	"github.com/jmgilman/go/errors"
	"periph.io/x/host/v3"

	"github.com/keks/flashfs/chip"
	"github.com/keks/flashfs/dir"
	"github.com/keks/flashfs/internal/config"
	"github.com/keks/flashfs/internal/flashsim"
	"github.com/keks/flashfs/spibus"
)

// session is an identified chip and its directory, opened for the
// duration of one command.
type session struct {
	cfg  *config.Config
	log  *slog.Logger
	chip *chip.Chip
	dir  *dir.Dir

	closers []func() error
}

func openSession(flags *rootFlags, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	s := &session{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})),
	}

	conn, err := s.openTransport()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.chip = chip.New(conn,
		chip.WithLogger(s.log),
		chip.WithWaitTimeout(cfg.Chip.WaitTimeout()),
		chip.WithWakeupDelay(cfg.Chip.WakeupDelay()),
	)
	// a chip left in deep power-down ignores identify
	if err := s.chip.Wakeup(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.chip.Begin(); err != nil {
		s.Close()
		return nil, err
	}

	s.dir = dir.New(s.chip,
		dir.WithLogger(s.log),
		dir.WithMaxFiles(uint16(cfg.Directory.MaxFiles)),
		dir.WithStringsSize(uint32(cfg.Directory.StringsSize)),
	)

	return s, nil
}

func (s *session) openTransport() (spibus.Conn, error) {
	t := s.cfg.Transport
	s.log.Debug("opening transport", "kind", t.Kind)

	switch t.Kind {
	case config.KindPeriph:
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, errors.CodeUnavailable, "initialize periph host drivers")
		}

		p, closePort, err := spibus.DialPeriph(spibus.PeriphConfig{
			Port:    t.Periph.Port,
			CS:      t.Periph.CS,
			SpeedHz: t.Periph.SpeedHz,
			Mode:    t.Periph.Mode,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closePort)
		return p, nil

	case config.KindSerprog:
		p, err := spibus.DialSerprog(spibus.SerprogConfig{
			Device:  t.Serprog.Device,
			Baud:    t.Serprog.Baud,
			Timeout: t.Serprog.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, p.Close)
		return p, nil

	default:
		return s.openSim(t.Sim)
	}
}

// openSim loads the image if it exists and saves it back on Close.
func (s *session) openSim(cfg config.SimConfig) (spibus.Conn, error) {
	sim := flashsim.New(flashsim.Models[cfg.Model])
	if cfg.Image == "" {
		return sim, nil
	}

	f, err := os.Open(cfg.Image)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info("starting with a blank simulated chip", "image", cfg.Image)
	case err != nil:
		return nil, err
	default:
		err := sim.LoadImage(f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	s.closers = append(s.closers, func() error {
		f, err := os.Create(cfg.Image)
		if err != nil {
			return err
		}
		if err := sim.WriteImage(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})

	return sim, nil
}

// Close lets the chip finish, then releases the transport.
func (s *session) Close() error {
	var errs []error
	if s.chip != nil {
		if err := s.chip.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	return stderrors.Join(errs...)
}
