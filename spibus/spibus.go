// Package spibus is the transport the chip driver issues flash commands
// through.
//
// A logical operation is bracketed by Begin and End, which give the
// caller exclusive use of the bus. Inside it, every flash command is one
// chip-select frame: Select, one or more Tx calls, Deselect. Tx is
// half-duplex: it clocks out w and then clocks in len(r) bytes, which is
// how every serial NOR command is shaped.
package spibus

// Conn is a single-owner SPI connection to one flash chip.
type Conn interface {
	// Begin acquires the bus. It blocks while another operation holds it.
	Begin() error
	// End releases the bus.
	End() error

	// Select asserts chip-select.
	Select() error
	// Deselect releases chip-select, which ends the current command.
	Deselect() error

	// Tx writes w and then reads len(r) bytes into r.
	Tx(w, r []byte) error
}

// Command runs one chip-select frame: it selects the chip, writes w,
// reads into r and deselects. Deselect is attempted even if Tx fails.
func Command(c Conn, w, r []byte) error {
	if err := c.Select(); err != nil {
		return err
	}

	txErr := c.Tx(w, r)
	if err := c.Deselect(); err != nil && txErr == nil {
		return err
	}

	return txErr
}

// frame queues the bytes written while the chip is selected, for
// transports that can only run a write phase followed by a read phase as
// one exchange.
type frame struct {
	selected bool
	pending  []byte
}

func (f *frame) start() {
	f.selected = true
	f.pending = f.pending[:0]
}

// take returns the queued bytes plus w and empties the queue.
func (f *frame) take(w []byte) []byte {
	out := append(f.pending, w...)
	f.pending = f.pending[:0]
	return out
}
