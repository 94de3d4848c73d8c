package dir

import "log/slog"

// Option configures a Dir.
type Option func(*config)

type config struct {
	logger *slog.Logger
	format Layout
}

func defaultConfig() config {
	return config{
		logger: slog.New(slog.DiscardHandler),
		format: DefaultLayout,
	}
}

// WithLogger sets the logger for directory events. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxFiles sets the slot count written when a blank chip is
// formatted. Flash that already holds a directory keeps its own.
func WithMaxFiles(n uint16) Option {
	return func(c *config) {
		c.format.MaxFiles = n
	}
}

// WithStringsSize sets the strings region size written when a blank chip
// is formatted. It is rounded down to a multiple of 4.
func WithStringsSize(n uint32) Option {
	return func(c *config) {
		c.format.StringsSize = n &^ 3
	}
}
