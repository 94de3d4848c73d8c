package flashsim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// frame runs one chip-select frame inside its own transaction.
func frame(c *Chip, w []byte, rlen int) []byte {
	r := make([]byte, rlen)
	c.Begin()
	c.Select()
	c.Tx(w, r)
	c.Deselect()
	c.End()
	return r
}

func TestIdentify(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	r.Equal([]byte{0xEF, 0x40, 0x18, 0x00}, frame(c, []byte{0x9F}, 4))
	r.Empty(c.Violations)
}

func TestProgramAndsBits(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0x02, 0x00, 0x01, 0x00, 0xF0, 0x0F}, 0)
	r.Zero(frame(c, []byte{0x05}, 1)[0]&statusWIP)

	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0x02, 0x00, 0x01, 0x00, 0x3C, 0x3C}, 0)
	r.Zero(frame(c, []byte{0x05}, 1)[0]&statusWIP)

	r.Equal([]byte{0x30, 0x0C, 0xFF}, frame(c, []byte{0x03, 0x00, 0x01, 0x00}, 3))
	r.Empty(c.Violations)
}

func TestProgramWithoutWriteEnable(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	frame(c, []byte{0x02, 0x00, 0x00, 0x00, 0x00}, 0)

	r.Equal([]byte{0xFF}, c.Peek(0, 1))
	r.Len(c.Violations, 1)
}

func TestBusyCountsPolls(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	c.BusyPolls = 2
	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0xD8, 0x00, 0x00, 0x00}, 0)

	r.Equal(byte(statusWIP), frame(c, []byte{0x05}, 1)[0])
	r.Equal(byte(statusWIP), frame(c, []byte{0x05}, 1)[0])
	r.Zero(frame(c, []byte{0x05}, 1)[0])
	r.False(c.Busy())
}

func TestReadWhileBusyIsFlagged(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	c.BusyPolls = 5
	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0xD8, 0x00, 0x00, 0x00}, 0)
	frame(c, []byte{0x03, 0x00, 0x00, 0x00}, 1)

	r.Len(c.Violations, 1)
}

func TestSuspendResume(t *testing.T) {
	r := require.New(t)

	c := New(N25Q512A)
	c.BusyPolls = 5
	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0xDC, 0x00, 0x00, 0x00, 0x00}, 0)

	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0x75}, 0)
	r.True(c.Suspended())
	r.Equal(byte(flagReady|flagEraseSuspended), frame(c, []byte{0x70}, 1)[0])

	frame(c, []byte{0x13, 0x00, 0x00, 0x00, 0x00}, 4)

	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0x7A}, 0)
	r.False(c.Suspended())
	r.True(c.Busy())
	r.Empty(c.Violations)
}

func TestDualSuspendOpcodes(t *testing.T) {
	r := require.New(t)

	c := New(S25FL127S)
	c.BusyPolls = 5
	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0x02, 0x00, 0x00, 0x00, 0x00}, 0)

	frame(c, []byte{0x75}, 0)
	r.False(c.Suspended())
	r.Len(c.Violations, 1)

	frame(c, []byte{0x85}, 0)
	r.True(c.Suspended())
	frame(c, []byte{0x8A}, 0)
	r.False(c.Suspended())
}

func TestDieBoundaryRead(t *testing.T) {
	r := require.New(t)

	c := New(N25Q512A)
	frame(c, []byte{0x13, 0x01, 0xFF, 0xFF, 0xFF}, 2)
	r.Len(c.Violations, 1)
}

func TestDieErase(t *testing.T) {
	r := require.New(t)

	c := New(N25Q512A)
	c.Poke(0, []byte{0})
	c.Poke(32*mib, []byte{0})

	frame(c, []byte{0x06}, 0)
	frame(c, []byte{0xC4, 0x02, 0x00, 0x00, 0x00}, 0)

	r.Equal([]byte{0}, c.Peek(0, 1))
	r.Equal([]byte{0xFF}, c.Peek(32*mib, 1))
	r.Empty(c.Violations)
}

func TestFourByteMode(t *testing.T) {
	r := require.New(t)

	c := New(S25FL512S)
	frame(c, []byte{0x17, 0x80}, 0)
	r.True(c.FourByteMode())

	c.Poke(0x02000000, []byte{0x42})
	r.Equal([]byte{0x42}, frame(c, []byte{0x03, 0x02, 0x00, 0x00, 0x00}, 1))
}

func TestDeepPowerDown(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	frame(c, []byte{0xB9}, 0)
	r.True(c.Asleep())

	frame(c, []byte{0x9F}, 3)
	r.Len(c.Violations, 1)

	frame(c, []byte{0xAB}, 0)
	r.False(c.Asleep())
}

func TestBusDiscipline(t *testing.T) {
	r := require.New(t)

	c := New(W25Q128)
	c.Select()
	r.Error(New(W25Q128).Tx([]byte{0x05}, nil))
	r.Equal([]string{"select outside transaction"}, c.Violations)
}

func TestImageRoundTrip(t *testing.T) {
	r := require.New(t)

	c := New(Generic1M)
	c.Poke(0x1234, []byte("hello"))

	var img bytes.Buffer
	r.NoError(c.WriteImage(&img))
	r.Equal(int(Generic1M.Capacity), img.Len())

	d := New(Generic1M)
	r.NoError(d.LoadImage(&img))
	r.Equal([]byte("hello"), d.Peek(0x1234, 5))
	r.Equal([]byte{0xFF}, d.Peek(0x1239, 1))
}
