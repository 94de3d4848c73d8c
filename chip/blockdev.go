package chip

import (
	"github.com/jmgilman/go/errors"
	"tinygo.org/x/tinyfs"
)

var _ tinyfs.BlockDevice = (*BlockDevice)(nil)

// BlockDevice exposes a Chip as a tinyfs.BlockDevice, so block file
// systems such as littlefs can be mounted on it. Writes and erases wait
// for the chip before returning.
type BlockDevice struct {
	chip *Chip
}

// BlockDevice returns the block device view of c. Begin must have run.
func (c *Chip) BlockDevice() *BlockDevice {
	return &BlockDevice{chip: c}
}

func (d *BlockDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.chip.ReadAt(p, off)
}

func (d *BlockDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.chip.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, d.chip.Wait()
}

func (d *BlockDevice) Size() int64 {
	return int64(d.chip.Capacity())
}

func (d *BlockDevice) WriteBlockSize() int64 {
	return PageSize
}

func (d *BlockDevice) EraseBlockSize() int64 {
	return int64(d.chip.BlockSize())
}

// EraseBlocks erases length blocks starting at block index start.
func (d *BlockDevice) EraseBlocks(start, length int64) error {
	bs := d.EraseBlockSize()
	if bs == 0 {
		return ErrNotStarted
	}
	if start < 0 || length < 0 || (start+length)*bs > d.Size() {
		return errors.Wrapf(ErrOutOfRange, errors.CodeInvalidInput, "erase blocks %d+%d", start, length)
	}

	for i := start; i < start+length; i++ {
		if err := d.chip.EraseBlock(uint32(i * bs)); err != nil {
			return err
		}
	}
	return d.chip.Wait()
}
