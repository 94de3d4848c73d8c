package chip

import (
	"fmt"
	"strings"
)

// ID is the 3-byte JEDEC identification.
type ID [3]byte

func (id ID) Manufacturer() byte { return id[0] }
func (id ID) MemoryType() byte   { return id[1] }
func (id ID) Density() byte      { return id[2] }

func (id ID) String() string {
	return fmt.Sprintf("%02X %02X %02X", id[0], id[1], id[2])
}

// Family is the manufacturer family the driver recognized.
type Family uint8

const (
	FamilyGeneric Family = iota
	FamilySpansion
	FamilyMicron
	FamilyWinbond
	FamilyMacronix
)

var familyNames = [...]string{
	FamilyGeneric:  "generic",
	FamilySpansion: "spansion",
	FamilyMicron:   "micron",
	FamilyWinbond:  "winbond",
	FamilyMacronix: "macronix",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

var manufacturers = map[byte]Family{
	0x01: FamilySpansion,
	0x20: FamilyMicron,
	0xEF: FamilyWinbond,
	0xC2: FamilyMacronix,
}

// Quirks is a set of behaviors that differ from the common command set.
type Quirks uint8

const (
	// QuirkAltBusy polls the flag status register instead of status.
	QuirkAltBusy Quirks = 1 << iota
	// QuirkDualSuspend uses separate program suspend/resume opcodes.
	QuirkDualSuspend
	// QuirkMultiDie erases the chip one die at a time.
	QuirkMultiDie
	// QuirkBigBlocks erases in 256 KiB blocks.
	QuirkBigBlocks
)

var quirkNames = []struct {
	q    Quirks
	name string
}{
	{QuirkAltBusy, "alt-busy"},
	{QuirkDualSuspend, "dual-suspend"},
	{QuirkMultiDie, "multi-die"},
	{QuirkBigBlocks, "256k-blocks"},
}

func (q Quirks) Has(f Quirks) bool { return q&f == f }

func (q Quirks) String() string {
	var names []string
	for _, qn := range quirkNames {
		if q.Has(qn.q) {
			names = append(names, qn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Profile is everything the driver derives from an ID.
type Profile struct {
	Family    Family
	Quirks    Quirks
	Capacity  uint32
	BlockSize uint32
	Addr32    bool
	Dies      int
	DieSize   uint32
}

// CapacityOf decodes the density byte. Values 16-31 are a power of two
// directly; 32-37 are the power of two plus six, the encoding larger
// parts use. Anything else gets DefaultCapacity.
func CapacityOf(density byte) uint32 {
	switch {
	case density >= 16 && density <= 31:
		return 1 << density
	case density >= 32 && density <= 37:
		return 1 << (density - 6)
	}
	return DefaultCapacity
}

// Identify derives the profile of the chip answering with id. Unknown
// manufacturers get no quirks.
func Identify(id ID) Profile {
	p := Profile{
		Family:    manufacturers[id.Manufacturer()],
		Capacity:  CapacityOf(id.Density()),
		BlockSize: BlockSize64K,
		Dies:      1,
	}
	p.DieSize = p.Capacity
	p.Addr32 = p.Capacity > Addr32Threshold

	switch p.Family {
	case FamilySpansion:
		p.Quirks |= QuirkDualSuspend
		if id.Density() >= 0x20 {
			p.Quirks |= QuirkBigBlocks
			p.BlockSize = BlockSize256K
		}

	case FamilyMicron:
		p.Quirks |= QuirkAltBusy
		switch id.Density() {
		case 0x20, 0x21:
			p.DieSize = 32 << 20
		case 0x22:
			p.DieSize = 64 << 20
		}
		if p.DieSize < p.Capacity {
			p.Quirks |= QuirkMultiDie
			p.Dies = int(p.Capacity / p.DieSize)
		}
	}

	return p
}
