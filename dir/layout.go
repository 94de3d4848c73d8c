package dir

import (
	"encoding/binary"

	"github.com/jmgilman/go/errors"
)

// Signature marks flash formatted with this directory layout.
const Signature uint32 = 0xFA96554C

const (
	// DefaultMaxFiles and DefaultStringsSize put the first file at 32 KiB.
	DefaultMaxFiles    = 600
	DefaultStringsSize = 25560

	// MaxStringsSize is the largest strings region the header can
	// describe.
	MaxStringsSize = 0xFFFF * 4

	// PageSize is the default alignment of file data.
	PageSize = 256

	headerSize = 8
	hashSize   = 2
	recordSize = 10

	blankWord = 0xFFFFFFFF
	emptyHash = 0xFFFF

	// slots compared per hash read and name bytes per compare
	hashBatch  = 8
	nameWindow = 16
)

// Layout is the geometry recorded in the directory header.
//
// The header is followed by MaxFiles hashes, then MaxFiles records, then
// the strings region holding NUL terminated names. File data starts
// right after the strings region.
type Layout struct {
	MaxFiles    uint16
	StringsSize uint32
}

// DefaultLayout is what a blank chip gets formatted with.
var DefaultLayout = Layout{MaxFiles: DefaultMaxFiles, StringsSize: DefaultStringsSize}

func (l Layout) hashAddr(i int) int64 {
	return headerSize + hashSize*int64(i)
}

func (l Layout) recordAddr(i int) int64 {
	return headerSize + hashSize*int64(l.MaxFiles) + recordSize*int64(i)
}

// StringsStart is the address of the first name.
func (l Layout) StringsStart() uint32 {
	return headerSize + (hashSize+recordSize)*uint32(l.MaxFiles)
}

// DataStart is the address of the first file.
func (l Layout) DataStart() uint32 {
	return l.StringsStart() + l.StringsSize
}

func (l Layout) check(capacity uint32) error {
	switch {
	case l.MaxFiles == 0 || l.MaxFiles == emptyHash:
		return errors.Wrapf(ErrCorrupt, CodeFailed, "max files %d", l.MaxFiles)
	case l.StringsSize == 0 || l.StringsSize%4 != 0 || l.StringsSize > MaxStringsSize:
		return errors.Wrapf(ErrCorrupt, CodeFailed, "strings size %d", l.StringsSize)
	case uint64(l.DataStart()) > uint64(capacity):
		return errors.Wrapf(ErrCorrupt, CodeFailed, "directory ends at %d, past the chip", l.DataStart())
	}
	return nil
}

// header is the on-flash form of a Layout.
type header struct {
	Signature  uint32
	MaxFiles   uint16
	StringsDiv uint16
}

func (h header) layout() Layout {
	return Layout{MaxFiles: h.MaxFiles, StringsSize: uint32(h.StringsDiv) * 4}
}

func headerFor(l Layout) header {
	return header{
		Signature:  Signature,
		MaxFiles:   l.MaxFiles,
		StringsDiv: uint16(l.StringsSize / 4),
	}
}

// record is one directory slot.
type record struct {
	Begin  uint32
	Length uint32
	// name offset into the strings region, in 4 byte units
	NameDiv uint16
}

var byteOrder = binary.LittleEndian
