package flashfs // import "github.com/keks/flashfs"

import (
	"io"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Chip Layer

// Device is the flash chip as seen by the directory and file layers.
// Writes and erases may return before the chip has committed them;
// Ready and Wait observe completion.
type Device interface {
	ReadWriterAt

	// Ready reports whether the last program or erase has completed.
	Ready() (bool, error)
	// Wait blocks until Ready would return true.
	Wait() error

	// Capacity is the size of the chip in bytes.
	Capacity() uint32
	// BlockSize is the erase granularity in bytes.
	BlockSize() uint32
	// EraseBlock starts erasing the block containing addr.
	EraseBlock(addr uint32) error
}

// File Layer

// File is a cursor over one directory entry's byte range.
type File interface {
	io.ReadWriteSeeker
	io.Closer

	// Position returns the current offset.
	Position() uint32
	// Size returns the recorded length, or the offset so far for
	// files that are still growing.
	Size() uint32
	// Available returns the number of bytes left before Size.
	Available() uint32
	// Address is where the file's data begins on the chip.
	Address() uint32
	// Erase erases the file's blocks. It is a no-op unless the file
	// covers whole erase blocks.
	Erase() error
}
