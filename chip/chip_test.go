package chip

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/require"

	"github.com/keks/flashfs/internal/flashsim"
)

func newChip(t *testing.T, m flashsim.Model, opts ...Option) (*Chip, *flashsim.Chip) {
	t.Helper()

	sim := flashsim.New(m)
	c := New(sim, opts...)
	require.NoError(t, c.Begin())
	sim.ResetLog()

	return c, sim
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestBeginAddressMode(t *testing.T) {
	type testcase struct {
		model  flashsim.Model
		addr32 bool
		ops    []byte
	}

	tcs := []testcase{
		{model: flashsim.W25Q128, ops: []byte{CmdReadID}},
		{model: flashsim.W25Q256, addr32: true, ops: []byte{CmdReadID, CmdWriteEnable, CmdEnter4ByteMode}},
		{model: flashsim.S25FL512S, addr32: true, ops: []byte{CmdReadID, CmdBankRegisterWrite}},
		{model: flashsim.N25Q512A, addr32: true, ops: []byte{CmdReadID, CmdWriteEnable, CmdEnter4ByteMode}},
	}

	for _, tc := range tcs {
		t.Run(tc.model.Name, func(t *testing.T) {
			r := require.New(t)

			sim := flashsim.New(tc.model)
			c := New(sim)
			r.NoError(c.Begin())

			r.Equal(tc.model.Capacity, c.Capacity())
			r.Equal(tc.model.SectorSize, c.BlockSize())
			r.Equal(tc.addr32, c.Addr32())
			r.Equal(tc.addr32, sim.FourByteMode())
			r.Equal(tc.ops, sim.Ops)
			r.Empty(sim.Violations)
		})
	}
}

func TestWriteRead(t *testing.T) {
	type testcase struct {
		model   flashsim.Model
		addr    uint32
		n       int
		progOp  byte
		progOps int
	}

	tcs := []testcase{
		{model: flashsim.W25Q128, addr: 250, n: 20, progOp: CmdPageProgram, progOps: 2},
		{model: flashsim.W25Q128, addr: 0x1000, n: 256, progOp: CmdPageProgram, progOps: 1},
		{model: flashsim.W25Q256, addr: 0x01800010, n: 600, progOp: CmdPageProgram4, progOps: 3},
		{model: flashsim.N25Q512A, addr: 0x01FFFF00, n: 512, progOp: CmdPageProgram4, progOps: 2},
	}

	for _, tc := range tcs {
		t.Run(tc.model.Name, func(t *testing.T) {
			r := require.New(t)
			c, sim := newChip(t, tc.model)

			data := pattern(tc.n)
			r.NoError(c.Write(tc.addr, data))
			r.Equal(tc.progOps, sim.OpCount(tc.progOp))

			got := make([]byte, tc.n)
			r.NoError(c.Read(tc.addr, got))
			r.Equal(data, got)
			r.Equal(data, sim.Peek(tc.addr, tc.n))
			r.Empty(sim.Violations)
		})
	}
}

func TestReadSuspends(t *testing.T) {
	type testcase struct {
		name    string
		model   flashsim.Model
		start   func(c *Chip) error
		state   State
		poll    byte
		suspend byte
		resume  byte
	}

	erase := func(c *Chip) error { return c.EraseBlock(0x10000) }
	program := func(c *Chip) error { return c.Write(0x20000, pattern(16)) }

	tcs := []testcase{
		{"erase", flashsim.W25Q128, erase, Erasing, CmdReadStatus, CmdSuspend, CmdResume},
		{"program", flashsim.W25Q128, program, Programming, CmdReadStatus, CmdSuspend, CmdResume},
		{"spansion program", flashsim.S25FL127S, program, Programming, CmdReadStatus, CmdSuspendProgram, CmdResumeProgram},
		{"spansion erase", flashsim.S25FL127S, erase, Erasing, CmdReadStatus, CmdSuspend, CmdResume},
		{"micron erase", flashsim.N25Q512A, erase, Erasing, CmdReadFlagStatus, CmdSuspend, CmdResume},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			c, sim := newChip(t, tc.model)

			sim.BusyPolls = 10
			r.NoError(tc.start(c))
			sim.ResetLog()

			buf := make([]byte, 16)
			r.NoError(c.Read(0x20000, buf))

			r.Empty(sim.Violations)
			r.Equal(1, sim.OpCount(tc.suspend))
			r.Equal(1, sim.OpCount(tc.resume))
			r.NotZero(sim.OpCount(tc.poll))
			r.True(sim.Busy())
			r.False(sim.Suspended())

			state, _ := c.State()
			r.Equal(tc.state, state)

			r.NoError(c.Wait())
			state, _ = c.State()
			r.Equal(Idle, state)
			r.False(sim.Busy())
		})
	}
}

func TestReadAfterFinishedErase(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.W25Q128)

	r.NoError(c.EraseBlock(0))
	sim.ResetLog()

	r.NoError(c.Read(0, make([]byte, 4)))
	r.Equal([]byte{CmdReadStatus, CmdRead}, sim.Ops)

	state, _ := c.State()
	r.Equal(Idle, state)
}

func TestReadWaitsForBulkErase(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.W25Q128)

	sim.Poke(0x100, []byte{0x00})
	sim.BusyPolls = 3
	r.NoError(c.EraseAll())

	buf := make([]byte, 1)
	r.NoError(c.Read(0x100, buf))
	r.Equal([]byte{0xFF}, buf)
	r.Zero(sim.OpCount(CmdSuspend))
	r.Empty(sim.Violations)
}

func TestMultiDieErase(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.N25Q00AA)

	for die := range uint32(4) {
		sim.Poke(die*(32<<20)+0x40, []byte{0x00})
	}

	r.NoError(c.EraseAll())
	state, progress := c.State()
	r.Equal(DieErasing, state)
	r.Equal(1, progress)

	checks := 0
	for {
		checks++
		ok, err := c.Ready()
		r.NoError(err)
		if ok {
			break
		}
	}

	r.Equal(5, checks, "four dies take five completion checks")
	r.Equal(4, sim.OpCount(CmdDieErase))
	for die := range uint32(4) {
		r.Equal([]byte{0xFF}, sim.Peek(die*(32<<20)+0x40, 1))
	}
	r.Empty(sim.Violations)
}

func TestMultiDieWait(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.N25Q512A)

	sim.BusyPolls = 2
	r.NoError(c.EraseAll())
	r.NoError(c.Wait())

	state, progress := c.State()
	r.Equal(Idle, state)
	r.Zero(progress)
	r.Equal(2, sim.OpCount(CmdDieErase))
	r.Zero(sim.OpCount(CmdBulkErase))
}

func TestReadAcrossDies(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.N25Q512A)

	sim.Poke(ReadBoundary-2, []byte{1, 2, 3, 4})

	buf := make([]byte, 4)
	r.NoError(c.Read(ReadBoundary-2, buf))
	r.Equal([]byte{1, 2, 3, 4}, buf)
	r.Equal(2, sim.OpCount(CmdRead4))
	r.Empty(sim.Violations)
}

func TestWaitTimeout(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.W25Q128, WithWaitTimeout(20*time.Millisecond))

	sim.BusyPolls = 1 << 30
	r.NoError(c.EraseBlock(0))

	err := c.Wait()
	r.ErrorIs(err, ErrTimeout)
	r.Equal(errors.CodeTimeout, errors.GetCode(err))

	state, _ := c.State()
	r.Equal(Erasing, state)
}

func TestWaitContextCanceled(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.W25Q128)

	sim.BusyPolls = 1 << 30
	r.NoError(c.EraseBlock(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.ErrorIs(c.WaitContext(ctx), ErrTimeout)
}

func TestBeginWaitsForOutstanding(t *testing.T) {
	type testcase struct {
		model flashsim.Model
		start func(*Chip) error
	}

	tcs := []testcase{
		{model: flashsim.W25Q128, start: func(c *Chip) error { return c.EraseBlock(0) }},
		{model: flashsim.W25Q128, start: func(c *Chip) error { return c.Write(0, []byte{0x42}) }},
		{model: flashsim.N25Q00AA, start: (*Chip).EraseAll},
	}

	for _, tc := range tcs {
		t.Run(tc.model.Name, func(t *testing.T) {
			r := require.New(t)
			c, sim := newChip(t, tc.model)

			sim.BusyPolls = 5
			r.NoError(tc.start(c))
			r.NoError(c.Begin())

			state, progress := c.State()
			r.Equal(Idle, state)
			r.Zero(progress)
			r.False(sim.Busy())

			r.NoError(c.Write(0x100, []byte{1, 2, 3}))
			r.NoError(c.Wait())
			r.Equal([]byte{1, 2, 3}, sim.Peek(0x100, 3))
			r.Empty(sim.Violations)
		})
	}

	t.Run("every die erased", func(t *testing.T) {
		r := require.New(t)
		c, sim := newChip(t, flashsim.N25Q00AA)

		r.NoError(c.EraseAll())
		r.NoError(c.Begin())
		r.Equal(4, sim.OpCount(CmdDieErase))
	})
}

// stuckBusy reports a busy chip on every status read.
type stuckBusy struct {
	*flashsim.Chip
}

func (s stuckBusy) Tx(w, r []byte) error {
	if len(w) > 0 && w[0] == CmdReadStatus {
		clear(r)
		r[0] = statusWIP
		return nil
	}
	return s.Chip.Tx(w, r)
}

func TestReadSuspendTimeout(t *testing.T) {
	r := require.New(t)

	sim := flashsim.New(flashsim.W25Q128)
	c := New(stuckBusy{sim}, WithWaitTimeout(20*time.Millisecond))
	r.NoError(c.Begin())
	r.NoError(c.Write(0, []byte{0x42}))

	err := c.Read(0, make([]byte, 1))
	r.ErrorIs(err, ErrTimeout)
	r.Equal(errors.CodeTimeout, errors.GetCode(err))
	r.Equal(1, sim.OpCount(CmdSuspend))
	r.Equal(1, sim.OpCount(CmdResume), "the program is resumed after giving up")

	state, _ := c.State()
	r.Equal(Programming, state)
}

func TestWriteWaitsForPrevious(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.W25Q128)

	sim.BusyPolls = 2
	r.NoError(c.EraseBlock(0))
	r.NoError(c.Write(0, pattern(300)))
	r.NoError(c.Wait())

	r.Equal(pattern(300), sim.Peek(0, 300))
	r.Empty(sim.Violations)
}

func TestSleepWakeup(t *testing.T) {
	r := require.New(t)
	c, sim := newChip(t, flashsim.W25Q128, WithWakeupDelay(0))

	sim.BusyPolls = 1
	r.NoError(c.Write(0, []byte{0x42}))
	r.NoError(c.Sleep())
	r.True(sim.Asleep())
	r.False(sim.Busy())

	r.NoError(c.Wakeup())
	r.False(sim.Asleep())

	id, err := c.ReadID()
	r.NoError(err)
	r.Equal(ID{0xEF, 0x40, 0x18}, id)
	r.Empty(sim.Violations)
}

func TestNotStarted(t *testing.T) {
	r := require.New(t)

	c := New(flashsim.New(flashsim.W25Q128))
	r.ErrorIs(c.Read(0, make([]byte, 1)), ErrNotStarted)
	r.ErrorIs(c.Write(0, []byte{1}), ErrNotStarted)
	r.ErrorIs(c.EraseBlock(0), ErrNotStarted)
	r.ErrorIs(c.EraseAll(), ErrNotStarted)
}

func TestBounds(t *testing.T) {
	r := require.New(t)
	c, _ := newChip(t, flashsim.Generic1M)

	r.Equal(uint32(DefaultCapacity), c.Capacity())
	r.ErrorIs(c.Read(DefaultCapacity-1, make([]byte, 2)), ErrOutOfRange)
	r.ErrorIs(c.Write(DefaultCapacity, []byte{1}), ErrOutOfRange)

	buf := make([]byte, 4)
	n, err := c.ReadAt(buf, DefaultCapacity-2)
	r.ErrorIs(err, io.EOF)
	r.Equal(2, n)

	n, err = c.ReadAt(buf, DefaultCapacity)
	r.ErrorIs(err, io.EOF)
	r.Zero(n)
}

// brokenConn fails every transfer.
type brokenConn struct{}

var errBus = stderrors.New("bus gone")

func (brokenConn) Begin() error         { return nil }
func (brokenConn) End() error           { return nil }
func (brokenConn) Select() error        { return nil }
func (brokenConn) Deselect() error      { return nil }
func (brokenConn) Tx(_, _ []byte) error { return errBus }

func TestTransportError(t *testing.T) {
	r := require.New(t)

	err := New(brokenConn{}).Begin()
	r.ErrorIs(err, errBus)
	r.Equal(errors.CodeUnavailable, errors.GetCode(err))

	var perr errors.PlatformError
	r.True(errors.As(err, &perr))
	r.Equal("0x9F", perr.Context()["opcode"])
}

func TestBeginLogs(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	newChip(t, flashsim.W25Q128, WithLogger(logger))

	r.Contains(buf.String(), "flash chip ready")
	r.Contains(buf.String(), `capacity="16 MiB"`)
	r.Contains(buf.String(), "family=winbond")
}
