package dir

import (
	"io"
	"math"

	"github.com/jmgilman/go/errors"

	"github.com/keks/flashfs"
)

var _ flashfs.File = (*File)(nil)

// File is a handle on one file: its address, its length and a position.
// Several handles on the same file are independent. The zero value is a
// closed handle.
type File struct {
	lower flashfs.Device

	address uint32
	// length is 0 for a growing file
	length uint32
	offset uint32
}

func newFile(dev flashfs.Device, address, length uint32) *File {
	return &File{
		lower:   dev,
		address: address,
		length:  length,
	}
}

// Valid reports whether the handle refers to a file.
func (f *File) Valid() bool {
	return f != nil && f.lower != nil && f.address != 0
}

func (f *File) growing() bool {
	return f.length == 0
}

// Read reads from the current position. At or past the end it returns
// io.EOF; a growing file has no readable end yet and always does.
func (f *File) Read(dst []byte) (int, error) {
	if !f.Valid() {
		return 0, ErrClosed
	}

	if f.offset >= f.length {
		return 0, io.EOF
	}

	if max := f.length - f.offset; uint64(max) < uint64(len(dst)) {
		dst = dst[:max]
	}

	n, err := f.lower.ReadAt(dst, int64(f.address)+int64(f.offset))
	f.offset += uint32(n)
	if err != nil && err != io.EOF {
		return n, err
	}

	return n, nil
}

// Write programs data at the current position. A write that does not fit
// writes what fits and returns ErrOverflow, or ErrDiskFull for a growing
// file that reached the end of the chip. Flash bits only go from 1 to 0,
// so the region must be erased for the data to read back unchanged.
func (f *File) Write(data []byte) (int, error) {
	if !f.Valid() {
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	var (
		end      uint64
		errShort error
	)
	if f.growing() {
		end = uint64(f.lower.Capacity())
		errShort = ErrDiskFull
	} else {
		end = uint64(f.address) + uint64(f.length)
		errShort = ErrOverflow
	}

	pos := uint64(f.address) + uint64(f.offset)
	if pos >= end {
		return 0, errShort
	}

	var short bool
	if max := end - pos; max < uint64(len(data)) {
		data = data[:max]
		short = true
	}

	n, err := f.lower.WriteAt(data, int64(pos))
	f.offset += uint32(n)
	if err != nil {
		// only expected if the chip fails
		return n, err
	}

	if short {
		return n, errShort
	}

	return n, nil
}

// Seek moves the position. Positions past the end are allowed and read
// as end of file. Growing files cannot seek.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if !f.Valid() {
		return 0, ErrClosed
	}
	if f.growing() {
		return int64(f.offset), ErrWriting
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(f.offset) + offset
	case io.SeekEnd:
		abs = int64(f.length) + offset
	default:
		return int64(f.offset), errors.Newf(errors.CodeInvalidInput, "seek: invalid whence %d", whence)
	}

	if abs < 0 || abs > math.MaxUint32 {
		return int64(f.offset), errors.Newf(errors.CodeInvalidInput, "seek: position %d out of range", abs)
	}

	f.offset = uint32(abs)
	return abs, nil
}

// Position returns the current position.
func (f *File) Position() uint32 {
	return f.offset
}

// Size returns the length, or for a growing file how much was written
// through this handle.
func (f *File) Size() uint32 {
	if f.growing() {
		return f.offset
	}
	return f.length
}

// Available returns how many bytes are left to read.
func (f *File) Available() uint32 {
	if f.offset >= f.length {
		return 0
	}
	return f.length - f.offset
}

// Address returns the flash address of the first byte.
func (f *File) Address() uint32 {
	return f.address
}

// Erase erases the blocks of the file. It does nothing unless the file
// starts and ends on erase block boundaries, which CreateErasable
// guarantees.
func (f *File) Erase() error {
	if !f.Valid() {
		return ErrClosed
	}

	bs := f.lower.BlockSize()
	if bs == 0 || f.growing() || f.address%bs != 0 || f.length%bs != 0 {
		return nil
	}

	for a := uint64(f.address); a < uint64(f.address)+uint64(f.length); a += uint64(bs) {
		if err := f.lower.EraseBlock(uint32(a)); err != nil {
			return err
		}
	}

	return nil
}

// Flush waits for the chip to finish programming.
func (f *File) Flush() error {
	if !f.Valid() {
		return ErrClosed
	}
	return f.lower.Wait()
}

// Close invalidates the handle.
func (f *File) Close() error {
	if !f.Valid() {
		return ErrClosed
	}
	f.lower = nil
	return nil
}
