package avro

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

type reader interface {
	io.Reader
	io.WriterTo
	io.Closer
}

type ReaderPro interface {
	reader
	io.ByteReader
	Size() int
}

// availabler is implemented by in-memory sources that know how many bytes remain.
type availabler interface {
	Available() int
}

// MaxBytesLen bounds a single bytes/string/fixed allocation when the source
// cannot report how much data remains.
const MaxBytesLen = 1 << 30

// Reader provides a buffered reader for the binary encoding.
// It wraps bufio.Reader and tracks the first error. Subsequent reads become no-ops.
type Reader struct {
	r       ReaderPro
	count   int64 // total bytes read
	err     error // first error encountered.
	scratch [8]byte
}

var _ ReaderPro = (*Reader)(nil)

// NewReaderSize creates a new Reader with a specified buffer size.
func NewReaderSize(r io.Reader, size int) (*Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}

	switch reader := r.(type) {
	// Reuse the underlying buffer if it's already a compatible Reader.
	case *Reader:
		if reader.r.Size() >= size {
			return &Reader{r: reader.r}, nil
		}

	// prevent unpredictable double-buffering.
	case *bufio.Reader:
		if reader.Size() >= size {
			return &Reader{r: &bufioReaderAdapter{Reader: reader}}, nil
		}
		return nil, ErrAlreadyBuffered

	// underlying is a buf so we don't need buffering
	case *BytesReader:
		return &Reader{r: reader}, nil
	case *bytes.Reader:
		return &Reader{r: &bytesReaderAdapter{reader}}, nil
	case *bytes.Buffer:
		return &Reader{r: &bytesBufferReaderAdapter{Buffer: reader}}, nil
	}

	if size == 0 {
		size = BUFFER_SIZE
	}
	if size < 16 {
		return nil, ErrSizeTooSmall
	}

	// default use bufio
	return &Reader{r: &bufioReaderAdapter{Reader: bufio.NewReaderSize(r, size)}}, nil
}

// NewReader creates a new Reader with a default buffer size.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, 0)
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	return r.r.Close()
}

// Read implements the io.Reader interface.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.r.Read(p)
	r.count += int64(n)
	r.setError(err)
	return n, r.err
}

// WriteTo implements io.WriterTo for efficient copying.
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if w == nil {
		r.setError(ErrWriteToNil)
		return 0, r.err
	}

	n, err := r.r.WriteTo(w)
	r.count += n
	r.setError(err)
	return n, r.err
}

func (r *Reader) Size() int    { return r.r.Size() }
func (r *Reader) Count() int64 { return r.count }
func (r *Reader) Err() error   { return r.err }
func (r *Reader) IsEOF() bool  { return r.err == io.EOF }

// setError records the first non-nil error.
func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// Result returns the total bytes read and the final error state.
func (r *Reader) Result() (int64, error) {
	return r.count, r.err
}

// Fail latches err as if it had been returned by the source.
func (r *Reader) Fail(err error) {
	r.setError(err)
}

// Available reports how many bytes remain for in-memory sources, or -1.
func (r *Reader) Available() int {
	if a, ok := r.r.(availabler); ok {
		return a.Available()
	}
	return -1
}

// readFull is an internal helper to read an exact number of bytes.
func (r *Reader) readFull(buf []byte) bool {
	if r.err != nil {
		return false
	}
	n, err := io.ReadFull(r.r, buf)
	r.count += int64(n)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			// A partial read is different from a clean end-of-stream.
			r.err = fmt.Errorf("%w: %v", ErrTruncatedData, io.ErrUnexpectedEOF)
		} else {
			r.err = err
		}
		return false
	}
	return true
}

// checkLen validates a decoded length prefix before anything is allocated.
func (r *Reader) checkLen(n int64) bool {
	if r.err != nil {
		return false
	}
	if n < 0 {
		r.err = fmt.Errorf("%w: %d", ErrInvalidLength, n)
		return false
	}
	if avail := r.Available(); avail >= 0 && n > int64(avail) {
		r.err = fmt.Errorf("%w: need %d bytes, %d remain", ErrTruncatedData, n, avail)
		return false
	}
	if n > MaxBytesLen {
		r.err = fmt.Errorf("%w: %d exceeds %d", ErrInvalidLength, n, MaxBytesLen)
		return false
	}
	return true
}

// --- Primitive Read Operations ---

func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	b, err := r.r.ReadByte()
	if err == nil {
		r.count++
	} else {
		r.err = err
	}
	return b, err
}

func (r *Reader) ReadBool() bool {
	b, err := r.ReadByte()
	if err != nil {
		return false
	}
	return b != 0
}

// ReadLong reads a zig-zag base-128 varint.
func (r *Reader) ReadLong() int64 {
	if r.err != nil {
		return 0
	}
	var u uint64
	for shift := uint(0); ; shift += 7 {
		if shift >= 7*MaxVarintLen {
			r.err = ErrVarintOverflow
			return 0
		}
		b, err := r.r.ReadByte()
		if err != nil {
			if err == io.EOF && shift > 0 {
				err = fmt.Errorf("%w: %v", ErrTruncatedData, io.ErrUnexpectedEOF)
			}
			r.err = err
			return 0
		}
		r.count++
		u |= uint64(b&0x7f) << shift
		if b < 0x80 {
			break
		}
	}
	return UnZigZag[int64](u)
}

// ReadInt reads a varint and checks that it fits in 32 bits.
func (r *Reader) ReadInt() int32 {
	v := r.ReadLong()
	if r.err != nil {
		return 0
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		r.err = fmt.Errorf("%w: %d is out of int range", ErrVarintOverflow, v)
		return 0
	}
	return int32(v)
}

func (r *Reader) ReadFloat() float32 {
	if !r.readFull(r.scratch[:4]) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.scratch[:4]))
}

func (r *Reader) ReadDouble() float64 {
	if !r.readFull(r.scratch[:8]) {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.scratch[:8]))
}

// ReadBytes reads a long length prefix and that many bytes into a new slice.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadLong()
	if r.err != nil {
		return nil
	}
	return r.ReadFixed(n)
}

// ReadStr reads a length-prefixed string.
func (r *Reader) ReadStr() string {
	return string(r.ReadBytes())
}

// ReadFixed reads exactly n bytes into a new slice.
func (r *Reader) ReadFixed(n int64) []byte {
	if !r.checkLen(n) {
		return nil
	}
	buf := make([]byte, n)
	if !r.readFull(buf) {
		return nil
	}
	return buf
}

// Skip advances past n bytes without keeping them.
func (r *Reader) Skip(n int64) {
	if !r.checkLen(n) {
		return
	}
	skipped, err := Discard(r.r, n)
	r.count += skipped
	switch {
	case err == nil:
	case err == io.EOF && skipped == 0:
		r.err = io.EOF
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		r.err = fmt.Errorf("%w: %v", ErrTruncatedData, io.ErrUnexpectedEOF)
	default:
		r.err = err
	}
}

// SkipBytes advances past a length-prefixed bytes or string value.
func (r *Reader) SkipBytes() {
	n := r.ReadLong()
	if r.err != nil {
		return
	}
	r.Skip(n)
}

// truncated converts a latched io.EOF into ErrTruncatedData. Reads leave a bare
// io.EOF only when the source ends before the first byte of a value; callers
// that know a value was due use this to report the truncation.
func (r *Reader) truncated() {
	if r.err == io.EOF {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedData, io.ErrUnexpectedEOF)
	}
}
