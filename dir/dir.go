// Package dir keeps a flat, hashed directory of files at the start of a
// flash chip and hands out append-allocated files after it.
//
// Files are laid out back to back in creation order and are never moved.
// A file is created either with a fixed length, or with length 0, which
// makes it grow with every write until the chip is full. A growing file
// must be the last one: creating another file after it fails with
// ErrWriting.
//
// Removing a file marks its name as deleted. The slot and the data stay
// allocated until the chip is erased.
package dir

import (
	"encoding/binary"
	"sync"

	"github.com/jmgilman/go/errors"

	"github.com/keks/flashfs"
)

// Dir is the directory on a flash device.
type Dir struct {
	l sync.Mutex

	dev flashfs.Device
	cfg config
}

// New returns the directory on dev. Nothing is read or written until the
// first operation; a blank chip is formatted then.
func New(dev flashfs.Device, opts ...Option) *Dir {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Dir{dev: dev, cfg: cfg}
}

// CheckLayout reads the directory header. Erased flash is formatted with
// the configured layout; anything else that does not carry the signature
// fails with ErrForeign.
func (d *Dir) CheckLayout() (Layout, error) {
	d.l.Lock()
	defer d.l.Unlock()

	return d.checkLayout()
}

func (d *Dir) checkLayout() (Layout, error) {
	var h header
	if err := d.readStruct(0, &h); err != nil {
		return Layout{}, err
	}

	switch h.Signature {
	case Signature:
		l := h.layout()
		if err := l.check(d.dev.Capacity()); err != nil {
			return Layout{}, err
		}
		return l, nil

	case blankWord:
		return d.format()

	default:
		return Layout{}, errors.WithContext(
			errors.Wrap(ErrForeign, CodeFailed, "check directory"),
			"signature", h.Signature,
		)
	}
}

func (d *Dir) format() (Layout, error) {
	l := d.cfg.format
	if err := l.check(d.dev.Capacity()); err != nil {
		return Layout{}, err
	}

	d.cfg.logger.Info("formatting blank flash", "max_files", l.MaxFiles, "strings_size", l.StringsSize)

	if err := d.writeStruct(0, headerFor(l)); err != nil {
		return Layout{}, err
	}
	if err := d.dev.Wait(); err != nil {
		return Layout{}, err
	}

	var h header
	if err := d.readStruct(0, &h); err != nil {
		return Layout{}, err
	}
	if h != headerFor(l) {
		return Layout{}, errors.Wrap(ErrForeign, CodeFailed, "header did not stick")
	}

	return l, nil
}

func (d *Dir) readStruct(off int64, v any) error {
	return binary.Read(readerFromReaderAt(d.dev, off), byteOrder, v)
}

func (d *Dir) writeStruct(off int64, v any) error {
	return binary.Write(writerToWriterAt(d.dev, off), byteOrder, v)
}
