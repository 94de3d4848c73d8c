package chip

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Option configures a Chip.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	waitTimeout time.Duration
	wakeupDelay time.Duration
	sleep       func(time.Duration)
	backoff     func() backoff.BackOff
}

func defaultConfig() config {
	return config{
		logger:      slog.New(slog.DiscardHandler),
		wakeupDelay: 3 * time.Microsecond,
		sleep:       time.Sleep,
		backoff:     defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Microsecond
	b.MaxInterval = 10 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// WithLogger sets the logger for lifecycle events. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWaitTimeout bounds Wait and the waits inside other operations. Zero,
// the default, waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *config) {
		c.waitTimeout = d
	}
}

// WithWakeupDelay sets how long Wakeup pauses for the chip to leave deep
// power-down.
func WithWakeupDelay(d time.Duration) Option {
	return func(c *config) {
		c.wakeupDelay = d
	}
}

// WithBackOff sets the polling schedule of WaitContext.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *config) {
		if f != nil {
			c.backoff = f
		}
	}
}
