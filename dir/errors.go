package dir

import (
	"io/fs"

	"github.com/jmgilman/go/errors"
)

// Error codes for failures specific to the flash directory.
const (
	// CodeFailed covers an unusable directory: a foreign or corrupt header.
	CodeFailed errors.ErrorCode = "FLASH_DIRECTORY_FAILED"
	// CodeDiskFull means the flash, the slot table or the strings region
	// has no room left.
	CodeDiskFull errors.ErrorCode = "DISK_FULL"
	// CodeWriting means the file is still growing.
	CodeWriting errors.ErrorCode = "FILE_WRITING"
	// CodeOverflow means a write ran past the recorded file length.
	CodeOverflow errors.ErrorCode = "FILE_OVERFLOW"
	// CodeClosed means the file handle is not usable.
	CodeClosed errors.ErrorCode = "FILE_CLOSED"
)

var (
	// ErrNotFound is returned when no file has the name.
	ErrNotFound = errors.Wrap(fs.ErrNotExist, errors.CodeNotFound, "flash file not found")

	// ErrExists is returned when creating a name that is taken.
	ErrExists = errors.Wrap(fs.ErrExist, errors.CodeAlreadyExists, "flash file already exists")

	// ErrInvalidName is returned for empty names and names containing NUL.
	ErrInvalidName = errors.Wrap(fs.ErrInvalid, errors.CodeInvalidInput, "invalid flash file name")

	// ErrForeign is returned when the flash starts with something other
	// than a directory header or erased memory.
	ErrForeign = errors.New(CodeFailed, "flash holds no directory and is not blank")

	// ErrCorrupt is returned when the header is signed but unusable.
	ErrCorrupt = errors.New(CodeFailed, "flash directory header is corrupt")

	// ErrDiskFull is returned when the file does not fit on the chip.
	ErrDiskFull = errors.New(CodeDiskFull, "not enough space on flash")

	// ErrDirectoryFull is returned when every slot is taken or the name
	// does not fit in the strings region.
	ErrDirectoryFull = errors.New(CodeDiskFull, "flash directory is full")

	// ErrWriting is returned when an operation needs the length of a file
	// that is still growing.
	ErrWriting = errors.New(CodeWriting, "flash file is still growing")

	// ErrOverflow is returned when a write does not fit in the file.
	ErrOverflow = errors.New(CodeOverflow, "write past the end of the flash file")

	// ErrClosed is returned by handles that were never opened or are
	// closed.
	ErrClosed = errors.Wrap(fs.ErrClosed, CodeClosed, "flash file is not open")
)
