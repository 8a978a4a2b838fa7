package avro

import (
	"bufio"
	"bytes"
	"io"
)

type (
	bytesReaderAdapter       struct{ *bytes.Reader }
	bytesBufferWriterAdapter struct{ *bytes.Buffer }
	bytesBufferReaderAdapter struct{ *bytes.Buffer }
	bufioWriterAdapter       struct{ *bufio.Writer }
	bufioReaderAdapter       struct{ *bufio.Reader }
)

func (r *bytesReaderAdapter) Close() error       { return nil }
func (r *bufioReaderAdapter) Close() error       { return nil }
func (w *bufioWriterAdapter) Close() error       { return nil }
func (r *bytesBufferReaderAdapter) Close() error { return nil }
func (w *bytesBufferWriterAdapter) Close() error { return nil }
func (w *bytesBufferWriterAdapter) Flush() error { return nil }
func (w *bytesBufferWriterAdapter) Size() int    { return w.Available() }
func (r *bytesBufferReaderAdapter) Size() int    { return r.Len() }
func (r *bytesReaderAdapter) Size() int          { return int(r.Reader.Size()) }

// Available reports the unread length so decoders can reject oversized prefixes.
func (r *bytesBufferReaderAdapter) Available() int { return r.Len() }
func (r *bytesReaderAdapter) Available() int       { return r.Len() }

// Size returns the size of the underlying buffer.
func (b *bufioReaderAdapter) Size() int {
	return b.Reader.Size()
}

// unbufferedReaderAdapter reads byte by byte so that decoding a single datum
// from an arbitrary stream never consumes bytes past its end.
type unbufferedReaderAdapter struct {
	r   io.Reader
	one [1]byte
}

func (u *unbufferedReaderAdapter) Read(p []byte) (int, error) { return u.r.Read(p) }
func (u *unbufferedReaderAdapter) Close() error               { return nil }
func (u *unbufferedReaderAdapter) Size() int                  { return 0 }

func (u *unbufferedReaderAdapter) ReadByte() (byte, error) {
	if _, err := io.ReadFull(u.r, u.one[:]); err != nil {
		return 0, err
	}
	return u.one[0], nil
}

func (u *unbufferedReaderAdapter) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, u.r)
}
