// Package chip drives a serial NOR flash chip over a spibus.Conn.
//
// Program and erase commands return as soon as the chip accepts them.
// The driver remembers what is outstanding and settles it lazily: the
// next program or erase waits for it, and a read suspends a program or
// block erase for the duration of the transfer, then resumes it. Callers
// that need the data durable call Wait.
//
// A Chip is safe for concurrent use; every operation holds the chip for
// its duration.
package chip

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/keks/flashfs"
	"github.com/keks/flashfs/spibus"
)

var _ flashfs.Device = (*Chip)(nil)

// Chip is one flash chip behind a bus connection.
type Chip struct {
	mu   sync.Mutex
	conn spibus.Conn
	cfg  config

	started bool
	id      ID
	profile Profile

	state State
	// dies issued so far during a die-by-die chip erase
	dieProgress int
}

// New returns a driver for the chip on conn. Begin must be called before
// any other operation.
func New(conn spibus.Conn, opts ...Option) *Chip {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Chip{conn: conn, cfg: cfg}
}

// Begin identifies the chip and switches it to 4-byte addressing when its
// capacity needs it. Calling it again waits for the outstanding operation
// and re-identifies the chip.
func (c *Chip) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started && c.state != Idle {
		if err := c.wait(); err != nil {
			return err
		}
	}

	id, err := c.readID()
	if err != nil {
		return err
	}

	c.id = id
	c.profile = Identify(id)
	c.state = Idle
	c.dieProgress = 0

	if id == (ID{0xFF, 0xFF, 0xFF}) || id == (ID{}) {
		c.cfg.logger.Warn("flash chip did not answer identify", "id", id.String())
	}

	if c.profile.Addr32 {
		err := c.transaction(func() error {
			if c.profile.Family == FamilySpansion {
				return c.command([]byte{CmdBankRegisterWrite, bankExtAddr}, nil)
			}
			if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
				return err
			}
			return c.command([]byte{CmdEnter4ByteMode}, nil)
		})
		if err != nil {
			return err
		}
	}

	c.started = true
	c.cfg.logger.Info("flash chip ready",
		"id", id.String(),
		"family", c.profile.Family.String(),
		"capacity", humanize.IBytes(uint64(c.profile.Capacity)),
		"block", humanize.IBytes(uint64(c.profile.BlockSize)),
		"addr32", c.profile.Addr32,
		"quirks", c.profile.Quirks.String(),
	)

	return nil
}

// ReadID reads the JEDEC identification, waiting for an outstanding
// operation first.
func (c *Chip) ReadID() (ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started && c.state != Idle {
		if err := c.wait(); err != nil {
			return ID{}, err
		}
	}

	return c.readID()
}

func (c *Chip) readID() (ID, error) {
	var id ID
	err := c.transaction(func() error {
		return c.command([]byte{CmdReadID}, id[:])
	})
	return id, err
}

func (c *Chip) ID() ID            { return c.id }
func (c *Chip) Profile() Profile  { return c.profile }
func (c *Chip) Family() Family    { return c.profile.Family }
func (c *Chip) Quirks() Quirks    { return c.profile.Quirks }
func (c *Chip) Capacity() uint32  { return c.profile.Capacity }
func (c *Chip) BlockSize() uint32 { return c.profile.BlockSize }
func (c *Chip) Addr32() bool      { return c.profile.Addr32 }

// State returns the outstanding operation and, for a die-by-die erase,
// how many dies were started.
func (c *Chip) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state, c.dieProgress
}

// transaction brackets fn with bus Begin and End.
func (c *Chip) transaction(fn func() error) error {
	if err := c.conn.Begin(); err != nil {
		return transportError(err, 0)
	}

	err := fn()
	if endErr := c.conn.End(); endErr != nil && err == nil {
		err = transportError(endErr, 0)
	}

	return err
}

// command runs one chip-select frame. w starts with the opcode.
func (c *Chip) command(w, r []byte) error {
	if err := spibus.Command(c.conn, w, r); err != nil {
		return transportError(err, w[0])
	}
	return nil
}

// addrCommand encodes op with addr, picking the 4-byte variant in 32-bit
// mode. extra is reserved after the address.
func (c *Chip) addrCommand(op24, op32 byte, addr uint32, extra int) []byte {
	if c.profile.Addr32 {
		b := make([]byte, 5, 5+extra)
		b[0] = op32
		binary.BigEndian.PutUint32(b[1:], addr)
		return b
	}

	b := make([]byte, 4, 4+extra)
	b[0] = op24
	b[1] = byte(addr >> 16)
	b[2] = byte(addr >> 8)
	b[3] = byte(addr)
	return b
}

// pollBusy reads the busy bit once.
func (c *Chip) pollBusy() (bool, error) {
	var status [1]byte

	if c.profile.Quirks.Has(QuirkAltBusy) {
		if err := c.command([]byte{CmdReadFlagStatus}, status[:]); err != nil {
			return false, err
		}
		return status[0]&flagStatusReady == 0, nil
	}

	if err := c.command([]byte{CmdReadStatus}, status[:]); err != nil {
		return false, err
	}
	return status[0]&statusWIP != 0, nil
}

func (c *Chip) checkRange(addr uint32, n int) error {
	if !c.started {
		return ErrNotStarted
	}
	if uint64(addr)+uint64(n) > uint64(c.profile.Capacity) {
		return ErrOutOfRange
	}
	return nil
}

// Read fills buf from addr. It never returns stale data: a program or
// block erase in progress is suspended for the transfer and resumed
// after; a chip erase is waited for.
func (c *Chip) Read(addr uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRange(addr, len(buf)); err != nil {
		return err
	}

	return c.read(addr, buf)
}

func (c *Chip) read(addr uint32, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	clear(buf)

	if c.state != Idle && !c.state.Suspendable() {
		if err := c.wait(); err != nil {
			return err
		}
	}

	return c.transaction(func() error {
		suspended := Idle

		if c.state.Suspendable() {
			busy, err := c.pollBusy()
			if err != nil {
				return err
			}

			if !busy {
				c.state = Idle
			} else {
				if err := c.suspend(); err != nil {
					return err
				}
				suspended = c.state
			}
		}

		for len(buf) > 0 {
			n := len(buf)
			if left := ReadBoundary - addr%ReadBoundary; uint64(n) > uint64(left) {
				n = int(left)
			}

			if err := c.command(c.addrCommand(CmdRead, CmdRead4, addr, 0), buf[:n]); err != nil {
				return err
			}

			buf = buf[n:]
			addr += uint32(n)
		}

		if suspended != Idle {
			return c.resume(suspended)
		}
		return nil
	})
}

func (c *Chip) suspendOpcodes(s State) (suspend, resume byte) {
	if s == Programming && c.profile.Quirks.Has(QuirkDualSuspend) {
		return CmdSuspendProgram, CmdResumeProgram
	}
	return CmdSuspend, CmdResume
}

// suspend pauses the outstanding operation and polls until the chip
// reports ready for reads. If the chip never does, the operation is
// resumed and the poll error returned.
func (c *Chip) suspend() error {
	op, _ := c.suspendOpcodes(c.state)

	if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
		return err
	}
	if err := c.command([]byte{op}, nil); err != nil {
		return err
	}

	err := c.poll(func() (bool, error) {
		busy, err := c.pollBusy()
		return !busy, err
	})
	if err != nil {
		if rerr := c.resume(c.state); rerr != nil {
			c.cfg.logger.Warn("could not resume flash chip", "state", c.state.String(), "err", rerr)
		}
		return err
	}
	return nil
}

func (c *Chip) resume(s State) error {
	_, op := c.suspendOpcodes(s)

	if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
		return err
	}
	return c.command([]byte{op}, nil)
}

// Write programs data at addr, one page at a time. Each page waits for
// the previous one; the last page is left running.
func (c *Chip) Write(addr uint32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRange(addr, len(data)); err != nil {
		return err
	}

	for len(data) > 0 {
		if c.state != Idle {
			if err := c.wait(); err != nil {
				return err
			}
		}

		n := min(len(data), PageSize-int(addr%PageSize))

		err := c.transaction(func() error {
			if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
				return err
			}

			cmd := c.addrCommand(CmdPageProgram, CmdPageProgram4, addr, n)
			return c.command(append(cmd, data[:n]...), nil)
		})
		if err != nil {
			return err
		}

		c.state = Programming
		data = data[n:]
		addr += uint32(n)
	}

	return nil
}

// EraseBlock erases the block containing addr.
func (c *Chip) EraseBlock(addr uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRange(addr, 1); err != nil {
		return err
	}

	if c.state != Idle {
		if err := c.wait(); err != nil {
			return err
		}
	}

	err := c.transaction(func() error {
		if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
			return err
		}
		return c.command(c.addrCommand(CmdBlockErase, CmdBlockErase4, addr, 0), nil)
	})
	if err != nil {
		return err
	}

	c.state = Erasing
	return nil
}

// EraseAll erases the whole chip. Multi-die parts are erased one die at a
// time; Ready and Wait start each die after the previous one finishes.
func (c *Chip) EraseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}

	if c.state != Idle {
		if err := c.wait(); err != nil {
			return err
		}
	}

	c.cfg.logger.Info("erasing flash chip", "dies", c.profile.Dies)

	if c.profile.Quirks.Has(QuirkMultiDie) {
		c.dieProgress = 0
		return c.eraseNextDie()
	}

	err := c.transaction(func() error {
		if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
			return err
		}
		return c.command([]byte{CmdBulkErase}, nil)
	})
	if err != nil {
		return err
	}

	c.state = BulkErasing
	return nil
}

// eraseNextDie starts erasing the next die, or finishes the chip erase
// when every die is done.
func (c *Chip) eraseNextDie() error {
	if c.dieProgress >= c.profile.Dies {
		c.dieProgress = 0
		c.state = Idle
		c.cfg.logger.Debug("chip erase finished")
		return nil
	}

	addr := uint32(c.dieProgress) * c.profile.DieSize
	err := c.transaction(func() error {
		if err := c.command([]byte{CmdWriteEnable}, nil); err != nil {
			return err
		}

		cmd := []byte{CmdDieErase, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(cmd[1:], addr)
		return c.command(cmd, nil)
	})
	if err != nil {
		return err
	}

	c.cfg.logger.Debug("erasing die", "die", c.dieProgress, "addr", addr)
	c.dieProgress++
	c.state = DieErasing
	return nil
}

// Ready reports whether the last program or erase has finished. During a
// die-by-die chip erase it starts the next die whenever one finishes and
// keeps reporting false, so a chip with n dies answers true on the
// n+1th call that sees a die complete.
func (c *Chip) Ready() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ready()
}

func (c *Chip) ready() (bool, error) {
	if c.state == Idle {
		return true, nil
	}

	var busy bool
	err := c.transaction(func() error {
		var err error
		busy, err = c.pollBusy()
		return err
	})
	if err != nil {
		return false, err
	}
	if busy {
		return false, nil
	}

	if c.state == DieErasing {
		return false, c.eraseNextDie()
	}

	c.state = Idle
	return true, nil
}

// Sleep puts the chip in deep power-down after any outstanding operation
// finishes.
func (c *Chip) Sleep() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		if err := c.wait(); err != nil {
			return err
		}
	}

	return c.transaction(func() error {
		return c.command([]byte{CmdDeepPowerDown}, nil)
	})
}

// Wakeup leaves deep power-down.
func (c *Chip) Wakeup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.transaction(func() error {
		return c.command([]byte{CmdReleasePowerDown}, nil)
	})
	if err != nil {
		return err
	}

	c.cfg.sleep(c.cfg.wakeupDelay)
	return nil
}

// ReadAt implements io.ReaderAt. Reads past the end are shortened and
// return io.EOF.
func (c *Chip) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return 0, ErrNotStarted
	}

	size := int64(c.profile.Capacity)
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if off >= size {
		return 0, io.EOF
	}

	n := len(p)
	if int64(n) > size-off {
		n = int(size - off)
	}

	if err := c.read(uint32(off), p[:n]); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. The program of the last page may still
// be running when it returns.
func (c *Chip) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(^uint32(0)) {
		return 0, ErrOutOfRange
	}

	if err := c.Write(uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}
