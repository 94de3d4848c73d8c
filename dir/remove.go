package dir

// Remove deletes the named file by zeroing the first byte of its name.
// Its slot and data are not reused.
func (d *Dir) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	d.l.Lock()
	defer d.l.Unlock()

	l, err := d.checkLayout()
	if err != nil {
		return err
	}

	i, rec, err := d.find(l, name)
	if err != nil {
		return err
	}

	return d.tombstone(l, i, rec)
}

// RemoveFile deletes the file f refers to and closes f.
func (d *Dir) RemoveFile(f *File) error {
	if !f.Valid() {
		return ErrClosed
	}

	d.l.Lock()
	defer d.l.Unlock()

	l, err := d.checkLayout()
	if err != nil {
		return err
	}

	var rec record
	i, found, err := d.scan(l, func(i int, _ uint16) (bool, error) {
		var err error
		if rec, err = d.readRecord(l, i); err != nil || rec.Begin != f.address {
			return false, err
		}

		var first [1]byte
		if _, err := d.dev.ReadAt(first[:], int64(nameAddr(l, rec))); err != nil {
			return false, err
		}
		return first[0] != 0, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	if err := d.tombstone(l, i, rec); err != nil {
		return err
	}
	return f.Close()
}

func (d *Dir) tombstone(l Layout, i int, rec record) error {
	if _, err := d.dev.WriteAt([]byte{0}, int64(nameAddr(l, rec))); err != nil {
		return err
	}
	if err := d.dev.Wait(); err != nil {
		return err
	}

	d.cfg.logger.Debug("removed flash file", "slot", i, "addr", rec.Begin)
	return nil
}
