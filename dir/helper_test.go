package dir

import (
	"fmt"
	"io"
)

// testDevice is a flash device in memory. Writes clear bits the way NOR
// flash does.
type testDevice struct {
	buf       []byte
	blockSize uint32

	waits  int
	erases []uint32
}

func newTestDevice(capacity, blockSize uint32) *testDevice {
	buf := make([]byte, capacity)
	for i := range buf {
		buf[i] = 0xFF
	}
	return &testDevice{buf: buf, blockSize: blockSize}
}

func (dev *testDevice) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(dev.buf)) {
		return 0, io.EOF
	}

	max := len(dev.buf) - int(off)
	var err error
	if max < len(buf) {
		buf = buf[:max]
		err = io.EOF
	}

	copy(buf, dev.buf[int(off):])

	return len(buf), err
}

func (dev *testDevice) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(data)) > int64(len(dev.buf)) {
		return 0, fmt.Errorf("write of %d bytes at %d is out of range", len(data), off)
	}

	for i, b := range data {
		dev.buf[int(off)+i] &= b
	}

	return len(data), nil
}

func (dev *testDevice) Ready() (bool, error) { return true, nil }
func (dev *testDevice) Capacity() uint32     { return uint32(len(dev.buf)) }
func (dev *testDevice) BlockSize() uint32    { return dev.blockSize }

func (dev *testDevice) Wait() error {
	dev.waits++
	return nil
}

func (dev *testDevice) EraseBlock(addr uint32) error {
	start := addr / dev.blockSize * dev.blockSize
	for i := start; i < start+dev.blockSize; i++ {
		dev.buf[i] = 0xFF
	}
	dev.erases = append(dev.erases, start)
	return nil
}
