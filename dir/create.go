package dir

import (
	"github.com/dustin/go-humanize"
	"github.com/jmgilman/go/errors"
)

// Create adds a file of length bytes and returns a handle on it.
//
// The file starts where the previous one ends. With align > 0 its start
// and length are rounded up to align; otherwise its start is rounded up
// to PageSize. A length of 0 creates a growing file that takes every
// write until the chip is full.
func (d *Dir) Create(name string, length, align uint32) (*File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	d.l.Lock()
	defer d.l.Unlock()

	l, err := d.checkLayout()
	if err != nil {
		return nil, err
	}

	switch _, _, err := d.find(l, name); {
	case err == nil:
		return nil, ErrExists
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	index, _, err := d.scan(l, nil)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, ErrDirectoryFull
	}

	rec, nameAt, err := d.allocate(l, index, name, length, align)
	if err != nil {
		return nil, err
	}

	if _, err := d.dev.WriteAt(append([]byte(name), 0), int64(nameAt)); err != nil {
		return nil, err
	}
	if err := d.writeStruct(l.recordAddr(index), rec); err != nil {
		return nil, err
	}
	if err := d.writeStruct(l.hashAddr(index), Hash(name)); err != nil {
		return nil, err
	}
	if err := d.dev.Wait(); err != nil {
		return nil, err
	}

	size := "growing"
	if rec.Length > 0 {
		size = humanize.IBytes(uint64(rec.Length))
	}
	d.cfg.logger.Debug("created flash file", "name", name, "slot", index, "addr", rec.Begin, "size", size)

	return newFile(d.dev, rec.Begin, rec.Length), nil
}

// CreateErasable is Create aligned to the erase block size, so that the
// file can be erased with File.Erase without touching its neighbors.
func (d *Dir) CreateErasable(name string, length uint32) (*File, error) {
	return d.Create(name, length, d.dev.BlockSize())
}

// allocate places a new file after the one in slot index-1 and its name
// after that file's name.
func (d *Dir) allocate(l Layout, index int, name string, length, align uint32) (record, uint32, error) {
	addr := uint64(l.DataStart())
	nameAt := l.StringsStart()

	if index > 0 {
		prev, err := d.readRecord(l, index-1)
		if err != nil {
			return record{}, 0, err
		}
		if prev.Length == 0 {
			return record{}, 0, ErrWriting
		}

		end, err := d.nameEnd(l, prev)
		if err != nil {
			return record{}, 0, err
		}

		addr = uint64(prev.Begin) + uint64(prev.Length)
		nameAt = uint32(roundUp(uint64(end)+1, 4))
	}

	size := uint64(length)
	if align > 0 {
		addr = roundUp(addr, uint64(align))
		size = roundUp(size, uint64(align))
	} else {
		addr = roundUp(addr, PageSize)
	}

	capacity := uint64(d.dev.Capacity())
	if addr >= capacity || addr+size > capacity {
		return record{}, 0, errors.WithContext(
			errors.Wrap(ErrDiskFull, CodeDiskFull, "allocate"),
			"free", humanize.IBytes(capacity-min(addr, capacity)),
		)
	}

	if uint64(nameAt)+uint64(len(name))+1 > uint64(l.DataStart()) {
		return record{}, 0, ErrDirectoryFull
	}

	return record{
		Begin:   uint32(addr),
		Length:  uint32(size),
		NameDiv: uint16((nameAt - l.StringsStart()) / 4),
	}, nameAt, nil
}

// Tail returns the address after the newest file, deleted or not. New
// files are placed at or after it. While the newest file is growing it
// is the chip capacity.
func (d *Dir) Tail() (uint32, error) {
	d.l.Lock()
	defer d.l.Unlock()

	l, err := d.checkLayout()
	if err != nil {
		return 0, err
	}

	index, _, err := d.scan(l, nil)
	if err != nil {
		return 0, err
	}
	if index < 0 {
		index = int(l.MaxFiles)
	}
	if index == 0 {
		return l.DataStart(), nil
	}

	prev, err := d.readRecord(l, index-1)
	if err != nil {
		return 0, err
	}
	if prev.Length == 0 {
		return d.dev.Capacity(), nil
	}
	return prev.Begin + prev.Length, nil
}
