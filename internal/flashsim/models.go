package flashsim

const (
	kib = 1 << 10
	mib = 1 << 20
)

// Model describes the identity and geometry of a simulated chip.
type Model struct {
	Name       string
	ID         [3]byte
	Capacity   uint32
	SectorSize uint32

	// Dies is the number of dies; 0 and 1 mean a monolithic chip.
	Dies int
	// FlagStatus enables the 0x70 flag status register and requires
	// write-enable before suspend and resume.
	FlagStatus bool
	// DualSuspend models chips with separate program suspend/resume
	// opcodes (0x85/0x8A).
	DualSuspend bool
}

func (m Model) dieSize() uint32 {
	if m.Dies <= 1 {
		return m.Capacity
	}
	return m.Capacity / uint32(m.Dies)
}

var (
	// Generic1M reports an unknown identity, so drivers fall back to
	// their 1 MiB defaults.
	Generic1M = Model{Name: "generic", ID: [3]byte{0xAA, 0x55, 0x00}, Capacity: 1 * mib, SectorSize: 64 * kib}

	W25Q128   = Model{Name: "W25Q128", ID: [3]byte{0xEF, 0x40, 0x18}, Capacity: 16 * mib, SectorSize: 64 * kib}
	W25Q256   = Model{Name: "W25Q256", ID: [3]byte{0xEF, 0x40, 0x19}, Capacity: 32 * mib, SectorSize: 64 * kib}
	S25FL127S = Model{Name: "S25FL127S", ID: [3]byte{0x01, 0x20, 0x18}, Capacity: 16 * mib, SectorSize: 64 * kib, DualSuspend: true}
	S25FL512S = Model{Name: "S25FL512S", ID: [3]byte{0x01, 0x02, 0x20}, Capacity: 64 * mib, SectorSize: 256 * kib, DualSuspend: true}
	N25Q512A  = Model{Name: "N25Q512A", ID: [3]byte{0x20, 0xBA, 0x20}, Capacity: 64 * mib, SectorSize: 64 * kib, Dies: 2, FlagStatus: true}
	N25Q00AA  = Model{Name: "N25Q00AA", ID: [3]byte{0x20, 0xBA, 0x21}, Capacity: 128 * mib, SectorSize: 64 * kib, Dies: 4, FlagStatus: true}
)

// Models lists the built-in models by name.
var Models = map[string]Model{
	Generic1M.Name: Generic1M,
	W25Q128.Name:   W25Q128,
	W25Q256.Name:   W25Q256,
	S25FL127S.Name: S25FL127S,
	S25FL512S.Name: S25FL512S,
	N25Q512A.Name:  N25Q512A,
	N25Q00AA.Name:  N25Q00AA,
}
