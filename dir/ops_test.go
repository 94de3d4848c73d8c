package dir

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type op interface {
	Do(*testing.T, *Dir)
}

func checkErr(t *testing.T, expErr, err error) {
	if expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, expErr)
	}
}

type layoutOp struct {
	exp    Layout
	expErr error
}

func (op layoutOp) Do(t *testing.T, d *Dir) {
	l, err := d.CheckLayout()
	checkErr(t, op.expErr, err)
	require.Equal(t, op.exp, l)
}

type rawReadOp struct {
	addr int64
	exp  []byte
}

func (op rawReadOp) Do(t *testing.T, d *Dir) {
	buf := make([]byte, len(op.exp))
	_, err := d.dev.ReadAt(buf, op.addr)
	require.NoError(t, err)
	require.Equal(t, op.exp, buf)
}

type rawWriteOp struct {
	addr int64
	data []byte
}

func (op rawWriteOp) Do(t *testing.T, d *Dir) {
	_, err := d.dev.WriteAt(op.data, op.addr)
	require.NoError(t, err)
	require.NoError(t, d.dev.Wait())
}

type createOp struct {
	name   string
	length uint32
	align  uint32
	// use CreateErasable
	erasable bool

	f *File

	expAddr uint32
	expSize uint32
	expErr  error
}

func (op createOp) Do(t *testing.T, d *Dir) {
	var (
		f   *File
		err error
	)
	if op.erasable {
		f, err = d.CreateErasable(op.name, op.length)
	} else {
		f, err = d.Create(op.name, op.length, op.align)
	}
	t.Logf("create %q: %v", op.name, err)

	checkErr(t, op.expErr, err)
	if op.expErr != nil {
		require.Nil(t, f)
		return
	}

	require.Equal(t, op.expAddr, f.Address(), "file address")
	require.Equal(t, op.expSize, f.Size(), "file size")
	require.Zero(t, f.Position())

	if op.f != nil {
		*op.f = *f
	}
}

type openOp struct {
	name string

	f *File

	expAddr uint32
	expSize uint32
	expErr  error
}

func (op openOp) Do(t *testing.T, d *Dir) {
	f, err := d.Open(op.name)
	checkErr(t, op.expErr, err)
	if op.expErr != nil {
		return
	}

	require.Equal(t, op.expAddr, f.Address(), "file address")
	require.Equal(t, op.expSize, f.Size(), "file size")

	if op.f != nil {
		*op.f = *f
	}
}

type existsOp struct {
	name string
	exp  bool
}

func (op existsOp) Do(t *testing.T, d *Dir) {
	ok, err := d.Exists(op.name)
	require.NoError(t, err)
	require.Equal(t, op.exp, ok)
}

type writeOp struct {
	f    *File
	data []byte

	expN   int
	expErr error
}

func (op writeOp) Do(t *testing.T, d *Dir) {
	n, err := op.f.Write(op.data)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	checkErr(t, op.expErr, err)
	require.Equal(t, op.expN, n)
}

type readOp struct {
	f       *File
	readlen int

	exp    []byte
	expErr error
}

func (op readOp) Do(t *testing.T, d *Dir) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	buf := make([]byte, op.readlen)
	n, err := op.f.Read(buf)
	t.Logf("readOp, n: %d, err: %v", n, err)

	checkErr(t, op.expErr, err)
	r.Equal(len(op.exp), n)
	r.True(bytes.Equal(buf[:n], op.exp), "read %q, expected %q", buf[:n], op.exp)
}

type seekOp struct {
	f      *File
	offset int64
	whence int

	expPos int64
	expErr error
}

func (op seekOp) Do(t *testing.T, d *Dir) {
	pos, err := op.f.Seek(op.offset, op.whence)
	checkErr(t, op.expErr, err)
	require.Equal(t, op.expPos, pos)
}

type sizeOp struct {
	f *File

	expSize      uint32
	expAvailable uint32
}

func (op sizeOp) Do(t *testing.T, d *Dir) {
	require.Equal(t, op.expSize, op.f.Size(), "size")
	require.Equal(t, op.expAvailable, op.f.Available(), "available")
}

type eraseOp struct {
	f *File
}

func (op eraseOp) Do(t *testing.T, d *Dir) {
	require.NoError(t, op.f.Erase())
	require.NoError(t, op.f.Flush())
}

type removeOp struct {
	name string
	// remove by handle instead of by name
	f *File

	expErr error
}

func (op removeOp) Do(t *testing.T, d *Dir) {
	if op.f != nil {
		checkErr(t, op.expErr, d.RemoveFile(op.f))
		return
	}
	checkErr(t, op.expErr, d.Remove(op.name))
}

type listOp struct {
	exp []string
}

func (op listOp) Do(t *testing.T, d *Dir) {
	entries, err := d.List()
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	require.Equal(t, op.exp, names)
}

// reopenOp runs ops against a fresh Dir on the same device.
type reopenOp struct {
	ops []op
}

func (op reopenOp) Do(t *testing.T, d *Dir) {
	fresh := New(d.dev)
	for _, o := range op.ops {
		o.Do(t, fresh)
	}
}
