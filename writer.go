package avro

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

type writer interface {
	io.Writer
	io.ReaderFrom
	io.Closer
}

type WriterPro interface {
	writer
	io.ByteWriter
	io.StringWriter
	Size() int
	Flush() error
}

// Writer provides a buffered writer for the binary encoding.
// It wraps bufio.Writer for efficiency and tracks the first error that occurs.
// After an error, all subsequent write operations become no-ops.
type Writer struct {
	w       WriterPro
	count   int64 // total bytes written
	err     error // first error encountered. Subsequent writes become no-ops.
	depth   int
	scratch [MaxVarintLen]byte
}

var _ WriterPro = (*Writer)(nil)

// NewWriterSize creates a new Writer with a specified buffer size.
// It returns an error to prevent double-buffering, a common source of bugs.
func NewWriterSize(w io.Writer, size int) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}

	switch bw := w.(type) {
	// Reuse the underlying buffer if it's already a compatible Writer.
	case *Writer:
		if bw.w.Size() >= size {
			return &Writer{w: bw.w, depth: bw.depth + 1}, nil
		}

	// prevent unpredictable double-buffering.
	case *bufio.Writer:
		if bw.Size() >= size {
			return &Writer{w: &bufioWriterAdapter{bw}, depth: 1}, nil
		}
		return nil, ErrAlreadyBuffered

	// underlying is a buf so we don't need buffering
	case *bytes.Buffer:
		return &Writer{w: &bytesBufferWriterAdapter{bw}}, nil
	}

	// default use bufio
	return &Writer{w: &bufioWriterAdapter{bufio.NewWriterSize(w, size)}}, nil
}

// NewWriter creates a new Writer with a default buffer size.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterSize(w, 0)
}

// Close closes the underlying writer if it implements io.Closer.
func (w *Writer) Close() error {
	return w.w.Close()
}

// Write implements the io.Writer interface.
func (w *Writer) Write(buf []byte) (int, error) {
	if buf == nil || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(buf)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

// WriteString implements the io.StringWriter interface. It writes raw bytes
// with no length prefix; use WriteStr for the encoded form.
func (w *Writer) WriteString(str string) (int, error) {
	if str == "" || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.WriteString(str)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

// ReadFrom implements io.ReaderFrom for efficient copying.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	if r == nil || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.ReadFrom(r)
	w.count += n
	w.setError(err)
	return n, w.err
}

func (w *Writer) Size() int    { return w.w.Size() }
func (w *Writer) Count() int64 { return w.count }
func (w *Writer) Err() error   { return w.err }

// setError records the first non-nil error.
// This preserves the root cause of a failure chain instead of a later,
// less relevant error.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Result flushes the buffer and returns the final count and error state.
func (w *Writer) Result() (int64, error) {
	w.Flush()
	return w.count, w.err
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	// To prevent nested writers from flushing the buffer prematurely.
	// Only the outermost writer should be responsible for the final flush.
	if w.depth > 0 || w.err != nil {
		return w.err
	}
	err := w.w.Flush()
	w.setError(err)
	return err
}

// --- Primitive Write Operations ---

func (w *Writer) WriteBool(v bool) {
	if w.err != nil {
		return
	}
	var err error
	if v {
		err = w.w.WriteByte(1)
	} else {
		err = w.w.WriteByte(0)
	}
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
}

func (w *Writer) WriteByte(v byte) error {
	if w.err != nil {
		return w.err
	}
	err := w.w.WriteByte(v)
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
	return err
}

// WriteLong writes a zig-zag base-128 varint.
func (w *Writer) WriteLong(v int64) {
	if w.err != nil {
		return
	}
	buf := AppendVarint(w.scratch[:0], v)
	_, _ = w.Write(buf)
}

// WriteInt writes an int; the encoding is the same as for long.
func (w *Writer) WriteInt(v int32) {
	w.WriteLong(int64(v))
}

func (w *Writer) WriteFloat(v float32) {
	if w.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(w.scratch[:4], math.Float32bits(v))
	_, _ = w.Write(w.scratch[:4])
}

func (w *Writer) WriteDouble(v float64) {
	if w.err != nil {
		return
	}
	binary.LittleEndian.PutUint64(w.scratch[:8], math.Float64bits(v))
	_, _ = w.Write(w.scratch[:8])
}

// WriteBytes writes a long length prefix followed by the bytes.
func (w *Writer) WriteBytes(buf []byte) {
	if w.err != nil {
		return
	}
	w.WriteLong(int64(len(buf)))
	if len(buf) > 0 {
		_, _ = w.Write(buf)
	}
}

// WriteStr writes a long length prefix followed by the UTF-8 bytes of s.
func (w *Writer) WriteStr(s string) {
	if w.err != nil {
		return
	}
	w.WriteLong(int64(len(s)))
	_, _ = w.WriteString(s)
}

// WriteFixed writes buf verbatim, with no length prefix.
func (w *Writer) WriteFixed(buf []byte) {
	if w.err != nil || len(buf) == 0 {
		return
	}
	_, _ = w.Write(buf)
}
