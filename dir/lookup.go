package dir

import (
	"bytes"
	"strings"

	"github.com/jmgilman/go/errors"
)

func checkName(name string) error {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return errors.WithContext(errors.Wrap(ErrInvalidName, errors.CodeInvalidInput, "check name"), "name", name)
	}
	return nil
}

func (d *Dir) readRecord(l Layout, i int) (record, error) {
	var rec record
	err := d.readStruct(l.recordAddr(i), &rec)
	return rec, err
}

func nameAddr(l Layout, rec record) uint32 {
	return l.StringsStart() + uint32(rec.NameDiv)*4
}

// scan walks the occupied slots in order, calling fn with each index and
// hash until fn returns true. It returns the index fn stopped at, or
// else the first empty slot, or -1 when every slot is occupied.
func (d *Dir) scan(l Layout, fn func(i int, hash uint16) (bool, error)) (int, bool, error) {
	var batch [hashBatch]uint16

	for index := 0; index < int(l.MaxFiles); index += hashBatch {
		n := min(hashBatch, int(l.MaxFiles)-index)
		if err := d.readStruct(l.hashAddr(index), batch[:n]); err != nil {
			return -1, false, err
		}

		for i, h := range batch[:n] {
			if h == emptyHash {
				return index + i, false, nil
			}
			if fn == nil {
				continue
			}

			stop, err := fn(index+i, h)
			if err != nil {
				return -1, false, err
			}
			if stop {
				return index + i, true, nil
			}
		}
	}

	return -1, false, nil
}

// find returns the slot holding name.
func (d *Dir) find(l Layout, name string) (int, record, error) {
	var (
		want = Hash(name)
		rec  record
	)

	i, found, err := d.scan(l, func(i int, h uint16) (bool, error) {
		if h != want {
			return false, nil
		}

		var err error
		rec, err = d.readRecord(l, i)
		if err != nil {
			return false, err
		}
		return d.nameIs(l, rec, name)
	})
	if err != nil {
		return -1, record{}, err
	}
	if !found {
		return -1, record{}, ErrNotFound
	}

	return i, rec, nil
}

// nameIs compares the stored name of rec with name, nameWindow bytes at
// a time.
func (d *Dir) nameIs(l Layout, rec record, name string) (bool, error) {
	var (
		buf  [nameWindow]byte
		want = []byte(name + "\x00")
		addr = nameAddr(l, rec)
		end  = l.DataStart()
	)

	for len(want) > 0 {
		if addr >= end {
			return false, nil
		}

		n := min(len(want), len(buf), int(end-addr))
		if _, err := d.dev.ReadAt(buf[:n], int64(addr)); err != nil {
			return false, err
		}
		if !bytes.Equal(buf[:n], want[:n]) {
			return false, nil
		}

		want = want[n:]
		addr += uint32(n)
	}

	return true, nil
}

// readName returns the stored name of rec. Deleted names come back empty.
func (d *Dir) readName(l Layout, rec record) (string, error) {
	var (
		buf  [nameWindow]byte
		name []byte
		addr = nameAddr(l, rec)
		end  = l.DataStart()
	)

	for addr < end {
		n := min(len(buf), int(end-addr))
		if _, err := d.dev.ReadAt(buf[:n], int64(addr)); err != nil {
			return "", err
		}

		if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
			return string(append(name, buf[:i]...)), nil
		}

		name = append(name, buf[:n]...)
		addr += uint32(n)
	}

	return string(name), nil
}

// nameEnd returns the address of the NUL ending the name of rec. The
// first byte is skipped so deleted names measure like live ones.
func (d *Dir) nameEnd(l Layout, rec record) (uint32, error) {
	var (
		buf  [nameWindow]byte
		addr = nameAddr(l, rec) + 1
		end  = l.DataStart()
	)

	for addr < end {
		n := min(len(buf), int(end-addr))
		if _, err := d.dev.ReadAt(buf[:n], int64(addr)); err != nil {
			return 0, err
		}

		if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
			return addr + uint32(i), nil
		}
		addr += uint32(n)
	}

	return 0, errors.Wrap(ErrCorrupt, CodeFailed, "unterminated name")
}

// Open returns a handle on the named file.
func (d *Dir) Open(name string) (*File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	d.l.Lock()
	defer d.l.Unlock()

	l, err := d.checkLayout()
	if err != nil {
		return nil, err
	}

	_, rec, err := d.find(l, name)
	if err != nil {
		return nil, err
	}

	return newFile(d.dev, rec.Begin, rec.Length), nil
}

// Exists reports whether a file has the name.
func (d *Dir) Exists(name string) (bool, error) {
	_, err := d.Open(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidName):
		return false, nil
	default:
		return false, err
	}
}
