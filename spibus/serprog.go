package spibus

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/jmgilman/go/errors"
)

// serprog opcodes and replies, see flashrom's serprog protocol.
const (
	serprogQueryIface  = 0x01
	serprogSyncNOP     = 0x10
	serprogSetBusType  = 0x12
	serprogSPIOp       = 0x13
	serprogACK         = 0x06
	serprogNAK         = 0x15
	serprogBusSPI      = 0x08
	serprogIfaceVer    = 1
	serprogMaxFrameLen = 1<<24 - 1
)

// SerprogConfig describes the serial line of a serprog programmer.
type SerprogConfig struct {
	Device  string
	Baud    int
	Timeout time.Duration
}

// Serprog talks to a flash chip through a serprog programmer on a serial
// line. The protocol has no separate chip-select control: the programmer
// frames every S_CMD_O_SPIOP itself. Writes are queued while the chip is
// selected and sent together with the read phase, or on Deselect when
// the command has none.
type Serprog struct {
	mu   sync.Mutex
	port io.ReadWriter
	f    frame
}

// DialSerprog opens the serial device and runs the serprog handshake.
func DialSerprog(cfg SerprogConfig) (*Serprog, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "spibus: open serial device"),
			"device", cfg.Device,
		)
	}

	s, err := NewSerprog(port)
	if err != nil {
		port.Close()
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "spibus: serprog handshake"),
			"device", cfg.Device,
		)
	}

	return s, nil
}

// NewSerprog runs the serprog handshake over port and switches the
// programmer to SPI.
func NewSerprog(port io.ReadWriter) (*Serprog, error) {
	s := &Serprog{port: port}

	if err := s.sync(); err != nil {
		return nil, err
	}

	if err := s.send([]byte{serprogQueryIface}); err != nil {
		return nil, err
	}
	var ver [2]byte
	if _, err := io.ReadFull(s.port, ver[:]); err != nil {
		return nil, fmt.Errorf("spibus: serprog interface version: %w", err)
	}
	if v := binary.LittleEndian.Uint16(ver[:]); v != serprogIfaceVer {
		return nil, fmt.Errorf("spibus: serprog interface version %d not supported", v)
	}

	if err := s.send([]byte{serprogSetBusType, serprogBusSPI}); err != nil {
		return nil, fmt.Errorf("spibus: programmer has no SPI bus: %w", err)
	}

	return s, nil
}

// Close closes the serial port if it can be closed.
func (s *Serprog) Close() error {
	if c, ok := s.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// sync sends SYNCNOP, which the programmer answers with NAK then ACK.
func (s *Serprog) sync() error {
	if _, err := s.port.Write([]byte{serprogSyncNOP}); err != nil {
		return err
	}

	var reply [2]byte
	if _, err := io.ReadFull(s.port, reply[:]); err != nil {
		return fmt.Errorf("spibus: serprog sync: %w", err)
	}
	if reply[0] != serprogNAK || reply[1] != serprogACK {
		return fmt.Errorf("spibus: serprog sync: unexpected reply % x", reply[:])
	}

	return nil
}

// send writes one command and waits for its ACK.
func (s *Serprog) send(cmd []byte) error {
	if _, err := s.port.Write(cmd); err != nil {
		return err
	}

	var ack [1]byte
	if _, err := io.ReadFull(s.port, ack[:]); err != nil {
		return err
	}
	switch ack[0] {
	case serprogACK:
		return nil
	case serprogNAK:
		return fmt.Errorf("spibus: serprog command 0x%02x refused", cmd[0])
	default:
		return fmt.Errorf("spibus: serprog command 0x%02x: unexpected reply 0x%02x", cmd[0], ack[0])
	}
}

// spiOp runs one S_CMD_O_SPIOP exchange.
func (s *Serprog) spiOp(w, r []byte) error {
	if len(w) > serprogMaxFrameLen || len(r) > serprogMaxFrameLen {
		return fmt.Errorf("spibus: serprog frame too long")
	}

	cmd := make([]byte, 7, 7+len(w))
	cmd[0] = serprogSPIOp
	putUint24(cmd[1:], uint32(len(w)))
	putUint24(cmd[4:], uint32(len(r)))
	cmd = append(cmd, w...)

	if err := s.send(cmd); err != nil {
		return err
	}

	if _, err := io.ReadFull(s.port, r); err != nil {
		return fmt.Errorf("spibus: serprog read phase: %w", err)
	}

	return nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func (s *Serprog) Begin() error {
	s.mu.Lock()
	return nil
}

func (s *Serprog) End() error {
	s.mu.Unlock()
	return nil
}

func (s *Serprog) Select() error {
	s.f.start()
	return nil
}

func (s *Serprog) Deselect() error {
	s.f.selected = false
	if len(s.f.pending) == 0 {
		return nil
	}

	return s.spiOp(s.f.take(nil), nil)
}

func (s *Serprog) Tx(w, r []byte) error {
	if !s.f.selected {
		return fmt.Errorf("spibus: transfer without chip-select")
	}

	if len(r) == 0 {
		s.f.pending = append(s.f.pending, w...)
		return nil
	}

	return s.spiOp(s.f.take(w), r)
}
