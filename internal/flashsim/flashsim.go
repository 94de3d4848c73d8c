// Package flashsim simulates a serial NOR flash chip behind a spibus.Conn.
//
// Memory starts erased (0xFF) and programming can only clear bits. Busy
// time is counted in status polls instead of wall time: an operation
// that sets BusyPolls to n reports busy for n polls and completes on the
// next one. Protocol misuse the real part would silently misbehave on,
// such as reading while busy or programming without write-enable, is
// appended to Violations.
package flashsim

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/jmgilman/go/errors"
)

const pageSize = 256

// status and flag status bits
const (
	statusWIP = 1 << 0
	statusWEL = 1 << 1

	flagReady          = 1 << 7
	flagEraseSuspended = 1 << 6
	flagProgSuspended  = 1 << 2
)

type busyKind uint8

const (
	idle busyKind = iota
	programming
	erasing
	bulkErasing
)

func (k busyKind) suspendable() bool {
	return k == programming || k == erasing
}

// Chip is a simulated flash chip. It is not safe for concurrent use; the
// bus discipline of its callers serializes access.
type Chip struct {
	model Model
	pages map[uint32]*[pageSize]byte

	inTxn    bool
	selected bool
	frame    []byte
	readPos  uint32

	wel       bool
	addr4     bool
	asleep    bool
	busy      busyKind
	busyLeft  int
	suspended bool

	// BusyPolls is how many status polls report busy after a program or
	// erase starts.
	BusyPolls int

	// Ops lists the opcode of every completed chip-select frame.
	Ops []byte
	// Violations describes protocol misuse in the order it happened.
	Violations []string
}

// New returns an erased chip of the given model.
func New(m Model) *Chip {
	return &Chip{
		model: m,
		pages: make(map[uint32]*[pageSize]byte),
	}
}

// Model returns the simulated model.
func (c *Chip) Model() Model { return c.model }

// Busy reports whether an operation is in progress, suspended or not.
func (c *Chip) Busy() bool { return c.busy != idle }

// Suspended reports whether the current operation is suspended.
func (c *Chip) Suspended() bool { return c.suspended }

// Asleep reports whether the chip is in deep power-down.
func (c *Chip) Asleep() bool { return c.asleep }

// FourByteMode reports whether 3-byte opcodes take 4-byte addresses.
func (c *Chip) FourByteMode() bool { return c.addr4 }

// ResetLog clears Ops and Violations.
func (c *Chip) ResetLog() {
	c.Ops = nil
	c.Violations = nil
}

// OpCount returns how many frames used opcode op.
func (c *Chip) OpCount(op byte) int {
	n := 0
	for _, o := range c.Ops {
		if o == op {
			n++
		}
	}
	return n
}

func (c *Chip) violate(format string, args ...any) {
	c.Violations = append(c.Violations, fmt.Sprintf(format, args...))
}

// Peek returns n bytes at addr without going through the bus.
func (c *Chip) Peek(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = c.byteAt(addr + uint32(i))
	}
	return out
}

// Poke overwrites memory at addr without NOR semantics.
func (c *Chip) Poke(addr uint32, data []byte) {
	for i, b := range data {
		c.page(addr + uint32(i))[(addr+uint32(i))%pageSize] = b
	}
}

func (c *Chip) byteAt(addr uint32) byte {
	addr %= c.model.Capacity
	p, ok := c.pages[addr/pageSize]
	if !ok {
		return 0xFF
	}
	return p[addr%pageSize]
}

func (c *Chip) page(addr uint32) *[pageSize]byte {
	addr %= c.model.Capacity
	p, ok := c.pages[addr/pageSize]
	if !ok {
		p = new([pageSize]byte)
		for i := range p {
			p[i] = 0xFF
		}
		c.pages[addr/pageSize] = p
	}
	return p
}

func (c *Chip) eraseRange(start, n uint32) {
	for a := start; a < start+n; a += pageSize {
		delete(c.pages, a/pageSize)
	}
}

// LoadImage fills memory from r, up to the chip capacity.
func (c *Chip) LoadImage(r io.Reader) error {
	buf := make([]byte, pageSize)
	for addr := uint32(0); addr < c.model.Capacity; addr += pageSize {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			c.eraseRange(addr, pageSize)
			if slices.ContainsFunc(buf[:n], func(b byte) bool { return b != 0xFF }) {
				c.Poke(addr, buf[:n])
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteImage writes the full memory contents to w.
func (c *Chip) WriteImage(w io.Writer) error {
	bw := bufio.NewWriter(w)
	blank := make([]byte, pageSize)
	for i := range blank {
		blank[i] = 0xFF
	}

	for addr := uint32(0); addr < c.model.Capacity; addr += pageSize {
		data := blank
		if p, ok := c.pages[addr/pageSize]; ok {
			data = p[:]
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (c *Chip) Begin() error {
	if c.inTxn {
		c.violate("nested transaction")
	}
	c.inTxn = true
	return nil
}

func (c *Chip) End() error {
	if !c.inTxn {
		c.violate("end without transaction")
	}
	if c.selected {
		c.violate("transaction ended with chip selected")
	}
	c.inTxn = false
	return nil
}

func (c *Chip) Select() error {
	if !c.inTxn {
		c.violate("select outside transaction")
	}
	c.selected = true
	c.frame = c.frame[:0]
	c.readPos = 0
	return nil
}

func (c *Chip) Deselect() error {
	if !c.selected {
		return nil
	}
	c.selected = false
	if len(c.frame) == 0 {
		return nil
	}

	c.Ops = append(c.Ops, c.frame[0])
	c.execute(c.frame)
	return nil
}

func (c *Chip) Tx(w, r []byte) error {
	if !c.selected {
		c.violate("transfer without chip-select")
		return errors.New(errors.CodeConflict, "flashsim: transfer without chip-select")
	}

	c.frame = append(c.frame, w...)
	if len(r) > 0 {
		c.respond(r)
	}
	return nil
}

// address decodes the address following the opcode.
func (c *Chip) address(f []byte, wide bool) (uint32, []byte, bool) {
	n := 3
	if wide || c.addr4 {
		n = 4
	}
	if len(f) < 1+n {
		return 0, nil, false
	}

	var a uint32
	for _, b := range f[1 : 1+n] {
		a = a<<8 | uint32(b)
	}
	return a, f[1+n:], true
}

func (c *Chip) status() byte {
	if c.busy != idle && !c.suspended {
		if c.busyLeft > 0 {
			c.busyLeft--
		} else {
			c.complete()
		}
	}

	var s byte
	if c.busy != idle && !c.suspended {
		s |= statusWIP
	}
	if c.wel {
		s |= statusWEL
	}
	return s
}

func (c *Chip) flagStatus() byte {
	var s byte
	if c.status()&statusWIP == 0 {
		s |= flagReady
	}
	if c.suspended && c.busy == erasing {
		s |= flagEraseSuspended
	}
	if c.suspended && c.busy == programming {
		s |= flagProgSuspended
	}
	return s
}

func (c *Chip) complete() {
	c.busy = idle
	c.busyLeft = 0
	c.wel = false
}

func (c *Chip) respond(r []byte) {
	op := c.frame[0]

	if c.asleep {
		c.violate("command 0x%02X while in deep power-down", op)
		clear(r)
		return
	}

	switch op {
	case 0x9F:
		for i := range r {
			if c.readPos < 3 {
				r[i] = c.model.ID[c.readPos]
			} else {
				r[i] = 0
			}
			c.readPos++
		}

	case 0x05:
		for i := range r {
			r[i] = c.status()
		}

	case 0x70:
		if !c.model.FlagStatus {
			c.violate("flag status read on a chip without one")
		}
		for i := range r {
			r[i] = c.flagStatus()
		}

	case 0x03, 0x13:
		addr, _, ok := c.address(c.frame, op == 0x13)
		if !ok {
			c.violate("read 0x%02X with short address", op)
			clear(r)
			return
		}
		if c.busy != idle && !c.suspended {
			c.violate("read at 0x%X while busy", addr)
		}
		start := addr + c.readPos
		if c.model.Dies > 1 && len(r) > 0 {
			ds := c.model.dieSize()
			if start/ds != (start+uint32(len(r))-1)/ds {
				c.violate("read at 0x%X crosses a die boundary", start)
			}
		}
		for i := range r {
			r[i] = c.byteAt(start + uint32(i))
		}
		c.readPos += uint32(len(r))

	default:
		c.violate("unexpected read phase for command 0x%02X", op)
		clear(r)
	}
}

func (c *Chip) execute(f []byte) {
	op := f[0]

	if c.asleep && op != 0xAB {
		if !isRead(op) {
			c.violate("command 0x%02X while in deep power-down", op)
		}
		return
	}

	switch op {
	case 0x9F, 0x05, 0x70, 0x03, 0x13:
		// handled during the transfer

	case 0x06:
		c.wel = true

	case 0x04:
		c.wel = false

	case 0x02, 0x12:
		addr, data, ok := c.address(f, op == 0x12)
		if !c.startWrite(op, ok) {
			return
		}
		if int(addr%pageSize)+len(data) > pageSize {
			c.violate("program at 0x%X wraps the page", addr)
		}
		p := c.page(addr)
		for i, b := range data {
			p[(addr+uint32(i))%pageSize] &= b
		}
		c.begin(programming)

	case 0xD8, 0xDC:
		addr, _, ok := c.address(f, op == 0xDC)
		if !c.startWrite(op, ok) {
			return
		}
		ss := c.model.SectorSize
		c.eraseRange(addr%c.model.Capacity/ss*ss, ss)
		c.begin(erasing)

	case 0xC7, 0x60:
		if !c.startWrite(op, true) {
			return
		}
		c.eraseRange(0, c.model.Capacity)
		c.begin(bulkErasing)

	case 0xC4:
		if c.model.Dies <= 1 {
			c.violate("die erase on a monolithic chip")
			return
		}
		addr, _, ok := c.address(f, true)
		if !c.startWrite(op, ok) {
			return
		}
		ds := c.model.dieSize()
		c.eraseRange(addr%c.model.Capacity/ds*ds, ds)
		c.begin(bulkErasing)

	case 0x75, 0x85:
		c.suspend(op)

	case 0x7A, 0x8A:
		c.resume(op)

	case 0xB9:
		if c.busy != idle {
			c.violate("deep power-down while busy")
		}
		c.asleep = true

	case 0xAB:
		c.asleep = false

	case 0xB7:
		c.addr4 = true

	case 0xE9:
		c.addr4 = false

	case 0x17:
		if len(f) < 2 {
			c.violate("bank register write without data")
			return
		}
		c.addr4 = f[1]&0x80 != 0

	default:
		c.violate("unknown command 0x%02X", op)
	}
}

func isRead(op byte) bool {
	switch op {
	case 0x9F, 0x05, 0x70, 0x03, 0x13:
		return true
	}
	return false
}

// startWrite checks the preconditions shared by program and erase.
func (c *Chip) startWrite(op byte, addrOK bool) bool {
	switch {
	case !addrOK:
		c.violate("command 0x%02X with short address", op)
		return false
	case c.busy != idle:
		c.violate("command 0x%02X while busy", op)
		return false
	case !c.wel:
		c.violate("command 0x%02X without write-enable", op)
		return false
	}
	return true
}

func (c *Chip) begin(k busyKind) {
	c.busy = k
	c.busyLeft = c.BusyPolls
	c.wel = false
}

func (c *Chip) suspendOpcodes() (program, erase byte) {
	if c.model.DualSuspend {
		return 0x85, 0x75
	}
	return 0x75, 0x75
}

func (c *Chip) suspend(op byte) {
	if c.model.FlagStatus && !c.wel {
		c.violate("suspend without write-enable")
	}
	c.wel = false

	if !c.busy.suspendable() || c.suspended {
		c.violate("suspend 0x%02X with nothing to suspend", op)
		return
	}

	prog, erase := c.suspendOpcodes()
	if (c.busy == programming && op != prog) || (c.busy == erasing && op != erase) {
		c.violate("suspend 0x%02X does not match the running operation", op)
		return
	}
	c.suspended = true
}

func (c *Chip) resume(op byte) {
	if c.model.FlagStatus && !c.wel {
		c.violate("resume without write-enable")
	}
	c.wel = false

	if !c.suspended {
		c.violate("resume 0x%02X with nothing suspended", op)
		return
	}

	// each resume opcode sits 5 above its suspend opcode
	prog, erase := c.suspendOpcodes()
	if (c.busy == programming && op != prog+0x05) || (c.busy == erasing && op != erase+0x05) {
		c.violate("resume 0x%02X does not match the suspended operation", op)
		return
	}
	c.suspended = false
}
