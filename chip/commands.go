package chip

// Command opcodes.
const (
	// CmdReadID reads manufacturer, memory type and capacity bytes.
	CmdReadID byte = 0x9F

	// CmdRead reads with a 3-byte address.
	CmdRead byte = 0x03
	// CmdRead4 reads with a 4-byte address.
	CmdRead4 byte = 0x13

	// CmdPageProgram programs up to one page with a 3-byte address.
	CmdPageProgram byte = 0x02
	// CmdPageProgram4 programs up to one page with a 4-byte address.
	CmdPageProgram4 byte = 0x12

	// CmdWriteEnable sets the write-enable latch. Program, erase and some
	// suspend commands are ignored without it.
	CmdWriteEnable byte = 0x06

	// CmdBlockErase erases one block with a 3-byte address.
	CmdBlockErase byte = 0xD8
	// CmdBlockErase4 erases one block with a 4-byte address.
	CmdBlockErase4 byte = 0xDC
	// CmdBulkErase erases the whole chip.
	CmdBulkErase byte = 0xC7
	// CmdDieErase erases one die of a multi-die Micron part. It always
	// takes a 4-byte address.
	CmdDieErase byte = 0xC4

	// CmdReadStatus reads status register 1. Bit 0 is write-in-progress.
	CmdReadStatus byte = 0x05
	// CmdReadFlagStatus reads the Micron flag status register. Bit 7 is
	// set when the chip is ready.
	CmdReadFlagStatus byte = 0x70

	CmdSuspend byte = 0x75
	CmdResume  byte = 0x7A
	// CmdSuspendProgram and CmdResumeProgram are the program variants on
	// chips with separate program and erase suspend.
	CmdSuspendProgram byte = 0x85
	CmdResumeProgram  byte = 0x8A

	// CmdDeepPowerDown enters deep power-down.
	CmdDeepPowerDown byte = 0xB9
	// CmdReleasePowerDown leaves deep power-down.
	CmdReleasePowerDown byte = 0xAB

	// CmdEnter4ByteMode switches to 4-byte addressing. It needs write
	// enable on some parts.
	CmdEnter4ByteMode byte = 0xB7
	// CmdBankRegisterWrite writes the Spansion bank register. Bit 7 selects
	// 4-byte addressing.
	CmdBankRegisterWrite byte = 0x17
)

const (
	statusWIP       = 1 << 0
	flagStatusReady = 1 << 7
	bankExtAddr     = 1 << 7
)

// Geometry constants.
const (
	// PageSize is the largest unit one program command writes.
	PageSize = 256

	// DefaultCapacity is assumed when the capacity byte is not recognized.
	DefaultCapacity = 1 << 20

	// Addr32Threshold is the largest capacity reachable with 3-byte
	// addresses.
	Addr32Threshold = 16 << 20

	// BlockSize64K and BlockSize256K are the two erase block sizes.
	BlockSize64K  = 64 << 10
	BlockSize256K = 256 << 10

	// ReadBoundary splits reads so that no transfer crosses a multiple of
	// it. Multi-die parts stop at die edges.
	ReadBoundary = 32 << 20
)
