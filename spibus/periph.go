package spibus

import (
	"sync"

	"github.com/jmgilman/go/errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// DefaultMaxTx is the largest single transfer handed to the periph
// connection. Linux spidev defaults to a 4 KiB buffer.
const DefaultMaxTx = 4096

// Periph drives a flash chip through a periph.io SPI connection with a
// GPIO pin as chip-select. Chip-select stays asserted across Tx calls,
// so long reads are split into DefaultMaxTx sized transfers.
type Periph struct {
	mu sync.Mutex

	conn  spi.Conn
	cs    gpio.PinOut
	maxTx int
}

// NewPeriph returns a Periph using conn for data and cs for chip-select.
// cs is driven high (released) before NewPeriph returns.
func NewPeriph(conn spi.Conn, cs gpio.PinOut) (*Periph, error) {
	if conn == nil || cs == nil {
		return nil, errors.New(errors.CodeInvalidInput, "spibus: periph needs both a connection and a chip-select pin")
	}

	if err := cs.Out(gpio.High); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "spibus: release chip-select")
	}

	return &Periph{
		conn:  conn,
		cs:    cs,
		maxTx: DefaultMaxTx,
	}, nil
}

// PeriphConfig names the host resources for DialPeriph.
type PeriphConfig struct {
	Port    string
	CS      string
	SpeedHz int64
	Mode    int
}

// DialPeriph opens an SPI port and chip-select pin by name through the
// periph registries. host.Init must have run before.
func DialPeriph(cfg PeriphConfig) (*Periph, func() error, error) {
	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, nil, errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "spibus: open spi port"),
			"port", cfg.Port,
		)
	}

	conn, err := port.Connect(physic.Frequency(cfg.SpeedHz)*physic.Hertz, spi.Mode(cfg.Mode), 8)
	if err != nil {
		port.Close()
		return nil, nil, errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "spibus: connect spi port"),
			"port", cfg.Port,
		)
	}

	pin := gpioreg.ByName(cfg.CS)
	if pin == nil {
		port.Close()
		return nil, nil, errors.WithContext(
			errors.New(errors.CodeInvalidInput, "spibus: unknown chip-select pin"),
			"pin", cfg.CS,
		)
	}

	p, err := NewPeriph(conn, pin)
	if err != nil {
		port.Close()
		return nil, nil, err
	}

	return p, port.Close, nil
}

func (p *Periph) Begin() error {
	p.mu.Lock()
	return nil
}

func (p *Periph) End() error {
	p.mu.Unlock()
	return nil
}

func (p *Periph) Select() error {
	return p.cs.Out(gpio.Low)
}

func (p *Periph) Deselect() error {
	return p.cs.Out(gpio.High)
}

func (p *Periph) Tx(w, r []byte) error {
	for len(w) > 0 {
		n := min(len(w), p.maxTx)
		if err := p.conn.Tx(w[:n], make([]byte, n)); err != nil {
			return err
		}
		w = w[n:]
	}

	for len(r) > 0 {
		n := min(len(r), p.maxTx)
		if err := p.conn.Tx(make([]byte, n), r[:n]); err != nil {
			return err
		}
		r = r[n:]
	}

	return nil
}
