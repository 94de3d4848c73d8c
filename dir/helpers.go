package dir

import "io"

type funcWriter func([]byte) (int, error)

func (w funcWriter) Write(data []byte) (int, error) {
	return w(data)
}

func writerToWriterAt(wa io.WriterAt, off int64) io.Writer {
	return funcWriter(func(data []byte) (int, error) {
		n, err := wa.WriteAt(data, off)
		off += int64(n)
		return n, err
	})
}

func readerFromReaderAt(ra io.ReaderAt, off int64) io.Reader {
	return funcReader(func(data []byte) (int, error) {
		n, err := ra.ReadAt(data, off)
		off += int64(n)
		return n, err
	})
}

type funcReader func([]byte) (int, error)

func (r funcReader) Read(buf []byte) (int, error) {
	return r(buf)
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
