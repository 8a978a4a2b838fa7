package avro

import (
	"bufio"
	"io"
)

// PeekableReader serves pushed-back bytes before reading from R. It can also
// record what it hands out, which lets a caller re-scan a region it has
// already consumed and return the unused tail with Unread.
type PeekableReader struct {
	R io.Reader // The underlying reader.
	B []byte    // Peeked or pushed-back data, served before R.

	off       int64
	rec       []byte
	recording bool
}

var _ ReaderPro = (*PeekableReader)(nil)

// PeekReader returns a PeekableReader. If the given reader is already a
// PeekableReader, it is returned directly. Other readers are buffered unless
// they already implement io.ByteReader.
func PeekReader(r io.Reader) *PeekableReader {
	switch rr := r.(type) {
	case *PeekableReader:
		return rr
	case io.ByteReader:
		return &PeekableReader{R: r}
	}
	return &PeekableReader{R: bufio.NewReaderSize(r, BUFFER_SIZE)}
}

// Peek returns the next n bytes without advancing the reader.
func (r *PeekableReader) Peek(n int) ([]byte, error) {
	if len(r.B) >= n {
		return r.B[:n], nil
	}

	i := len(r.B)
	r.B = append(r.B, make([]byte, n-i)...)

	var err error
	for i < n {
		read, er := r.R.Read(r.B[i:])
		i += read
		if er != nil {
			err = er
			break
		}
	}
	if i != n {
		r.B = r.B[:i]
	}
	return r.B, err
}

// Unread pushes p back so the next reads return it first. p is copied.
func (r *PeekableReader) Unread(p []byte) {
	if len(p) == 0 {
		return
	}
	b := make([]byte, 0, len(p)+len(r.B))
	b = append(b, p...)
	r.B = append(b, r.B...)
	r.off -= int64(len(p))
}

// Record starts recording consumed bytes, discarding any earlier recording.
func (r *PeekableReader) Record() {
	r.rec = r.rec[:0]
	r.recording = true
}

// StopRecording ends recording and returns the bytes consumed since Record.
// The slice is valid until the next call to Record.
func (r *PeekableReader) StopRecording() []byte {
	r.recording = false
	return r.rec
}

// Offset reports how many bytes have been consumed, net of Unread.
func (r *PeekableReader) Offset() int64 { return r.off }

// Size returns the number of bytes currently held back.
func (r *PeekableReader) Size() int { return len(r.B) }

// Close closes the underlying reader if it implements io.Closer.
func (r *PeekableReader) Close() error {
	if c, ok := r.R.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func (r *PeekableReader) consumed(p []byte) {
	r.off += int64(len(p))
	if r.recording {
		r.rec = append(r.rec, p...)
	}
}

// Read reads data into p. It first reads from the peeked buffer and then
// from the underlying reader if necessary.
func (r *PeekableReader) Read(p []byte) (n int, err error) {
	n = copy(p, r.B)
	if len(p) <= len(r.B) {
		r.B = r.B[n:]
		r.consumed(p[:n])
		return n, nil
	}
	r.B = nil
	read, err := r.R.Read(p[n:])
	n += read
	r.consumed(p[:n])
	return n, err
}

// ReadByte implements io.ByteReader.
func (r *PeekableReader) ReadByte() (byte, error) {
	var b byte
	if len(r.B) > 0 {
		b = r.B[0]
		r.B = r.B[1:]
	} else if br, ok := r.R.(io.ByteReader); ok {
		var err error
		if b, err = br.ReadByte(); err != nil {
			return 0, err
		}
	} else {
		var one [1]byte
		if _, err := io.ReadFull(r.R, one[:]); err != nil {
			return 0, err
		}
		b = one[0]
	}
	r.off++
	if r.recording {
		r.rec = append(r.rec, b)
	}
	return b, nil
}

// WriteTo writes data to w. It first writes the peeked buffer and then
// copies from the underlying reader. Bytes copied this way are not recorded.
func (r *PeekableReader) WriteTo(w io.Writer) (n int64, err error) {
	if len(r.B) > 0 {
		written, err := w.Write(r.B)
		n = int64(written)
		r.off += n
		r.B = r.B[written:]
		if err != nil {
			return n, err
		}
		if len(r.B) > 0 {
			return n, io.ErrShortWrite
		}
	}

	m, err := io.Copy(w, r.R)
	r.off += m
	return n + m, err
}
