package chip

// State is what the chip was last asked to do that may still be running.
type State uint8

const (
	// Idle means no operation is outstanding.
	Idle State = iota
	// Programming is a page program, which can be suspended for reads.
	Programming
	// Erasing is a block erase, which can be suspended for reads.
	Erasing
	// BulkErasing is a whole-chip erase. Reads wait for it.
	BulkErasing
	// DieErasing is a die-by-die chip erase. Ready starts the next die
	// each time the current one finishes.
	DieErasing
)

var stateNames = [...]string{
	Idle:        "idle",
	Programming: "programming",
	Erasing:     "erasing",
	BulkErasing: "bulk-erasing",
	DieErasing:  "die-erasing",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Suspendable reports whether reads may suspend the operation.
func (s State) Suspendable() bool {
	return s == Programming || s == Erasing
}
