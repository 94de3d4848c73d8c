package dir

import "io"

// Entry describes one file in the directory.
type Entry struct {
	Name    string
	Address uint32
	// Size is the recorded length, 0 for a growing file.
	Size uint32
	// Index is the directory slot.
	Index int
}

// Cursor walks the directory in creation order. The zero value starts at
// the first file.
type Cursor struct {
	index int
}

// Rewind moves the cursor back to the first file.
func (c *Cursor) Rewind() {
	c.index = 0
}

// Next returns the file at the cursor and advances it. Deleted files are
// skipped. At the end it returns io.EOF and leaves the cursor in place,
// so files created later are picked up by the next call.
func (d *Dir) Next(c *Cursor) (Entry, error) {
	d.l.Lock()
	defer d.l.Unlock()

	l, err := d.checkLayout()
	if err != nil {
		return Entry{}, err
	}

	for c.index < int(l.MaxFiles) {
		var h uint16
		if err := d.readStruct(l.hashAddr(c.index), &h); err != nil {
			return Entry{}, err
		}
		if h == emptyHash {
			return Entry{}, io.EOF
		}

		rec, err := d.readRecord(l, c.index)
		if err != nil {
			return Entry{}, err
		}
		name, err := d.readName(l, rec)
		if err != nil {
			return Entry{}, err
		}

		c.index++
		if name == "" {
			continue
		}

		return Entry{
			Name:    name,
			Address: rec.Begin,
			Size:    rec.Length,
			Index:   c.index - 1,
		}, nil
	}

	return Entry{}, io.EOF
}

// NextInto is Next for callers with a fixed name buffer. The name is
// copied into buf, truncated to len(buf)-1 bytes and NUL terminated. It
// returns the name length in buf and the file size.
func (d *Dir) NextInto(c *Cursor, buf []byte) (int, uint32, error) {
	e, err := d.Next(c)
	if err != nil {
		return 0, 0, err
	}
	if len(buf) == 0 {
		return 0, e.Size, nil
	}

	n := copy(buf[:len(buf)-1], e.Name)
	buf[n] = 0
	return n, e.Size, nil
}

// List returns every file in creation order.
func (d *Dir) List() ([]Entry, error) {
	var (
		c       Cursor
		entries []Entry
	)

	for {
		e, err := d.Next(&c)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}
