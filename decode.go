package avro

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

// Decode reads one datum encoded under s from source. Sources that are not
// already buffered are read byte by byte so nothing past the datum is consumed.
// A source that is already exhausted yields io.EOF; running out of bytes
// inside the datum yields ErrTruncatedData.
func Decode(source io.Reader, s *Schema) (Value, error) {
	r, err := newDatumReader(source)
	if err != nil {
		return nil, err
	}
	start := r.Count()
	v := readValue(r, s)
	if err := datumErr(r, start); err != nil {
		return nil, err
	}
	return v, nil
}

// Unmarshal decodes data as exactly one datum under s.
func Unmarshal(s *Schema, data []byte) (Value, error) {
	br := NewBytesReader(data)
	r := &Reader{r: br}
	v := readValue(r, s)
	r.truncated()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if br.Available() > 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, br.Available())
	}
	return v, nil
}

// Skip advances source past one datum encoded under s without building it.
func Skip(source io.Reader, s *Schema) error {
	r, err := newDatumReader(source)
	if err != nil {
		return err
	}
	start := r.Count()
	skipValue(r, s)
	return datumErr(r, start)
}

func newDatumReader(source io.Reader) (*Reader, error) {
	switch source.(type) {
	case nil:
		return nil, ErrNilIO
	case *Reader, *bufio.Reader, *BytesReader, *bytes.Reader, *bytes.Buffer:
		return NewReader(source)
	}
	return &Reader{r: &unbufferedReaderAdapter{r: source}}, nil
}

// datumErr reports the reader's latched error, turning an io.EOF hit after
// the datum started into ErrTruncatedData.
func datumErr(r *Reader, start int64) error {
	err := r.Err()
	if err == io.EOF && r.Count() > start {
		r.truncated()
		err = r.Err()
	}
	return err
}

// readValue decodes one datum. Errors are latched in r; the returned Value is
// meaningless once r.Err() is non-nil.
func readValue(r *Reader, s *Schema) Value {
	s = s.resolve()
	switch s.kind {
	case KindNull:
		return Null{}
	case KindBoolean:
		return Bool(r.ReadBool())
	case KindInt:
		return Long(r.ReadInt())
	case KindLong:
		return Long(r.ReadLong())
	case KindFloat:
		return Double(r.ReadFloat())
	case KindDouble:
		return Double(r.ReadDouble())
	case KindBytes:
		return Bytes(r.ReadBytes())
	case KindString:
		return String(readString(r))
	case KindFixed:
		return Bytes(r.ReadFixed(int64(s.size)))
	case KindEnum:
		i := r.ReadLong()
		if r.Err() != nil {
			return nil
		}
		if i < 0 || i >= int64(len(s.symbols)) {
			r.Fail(fmt.Errorf("%w: enum %s index %d", ErrInvalidData, s.name.Full(), i))
			return nil
		}
		return String(s.symbols[i])
	case KindArray:
		seq := Seq{}
		readBlocks(r, minSize(s.items), func() {
			seq = append(seq, readValue(r, s.items))
		})
		return seq
	case KindMap:
		m := Map{}
		readBlocks(r, 1+minSize(s.values), func() {
			k := readString(r)
			m[k] = readValue(r, s.values)
		})
		return m
	case KindRecord:
		seq := make(Seq, len(s.fields))
		for i, f := range s.fields {
			seq[i] = readValue(r, f.typ)
			if r.Err() != nil {
				return nil
			}
		}
		return seq
	case KindUnion:
		b := readBranch(r, len(s.branches))
		if b < 0 {
			return nil
		}
		return Tagged{Branch: b, Value: readValue(r, s.branches[b])}
	}
	r.Fail(fmt.Errorf("avro: unknown schema kind %d", s.kind))
	return nil
}

func readBranch(r *Reader, n int) int {
	b := r.ReadLong()
	if r.Err() != nil {
		return -1
	}
	if b < 0 || b >= int64(n) {
		r.Fail(fmt.Errorf("%w: union branch %d out of range [0,%d)", ErrInvalidData, b, n))
		return -1
	}
	return int(b)
}

// readString reads a string datum or map key and fails r when it is not
// valid UTF-8.
func readString(r *Reader) string {
	b := r.ReadBytes()
	if r.Err() == nil && !utf8.Valid(b) {
		r.Fail(fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidData))
		return ""
	}
	return string(b)
}

// MaxZeroSizeItems bounds the element count of an array or block whose items
// encode to no bytes at all, such as nulls or empty records.
const MaxZeroSizeItems = 1 << 16

// minSize returns the fewest bytes one datum of s encodes to.
func minSize(s *Schema) int64 { return minSizeAt(s, 0) }

func minSizeAt(s *Schema, depth int) int64 {
	s = s.resolve()
	switch s.kind {
	case KindNull:
		return 0
	case KindFloat:
		return 4
	case KindDouble:
		return 8
	case KindFixed:
		return int64(s.size)
	case KindRecord:
		// Only a chain of records can revisit a type; stopping at zero keeps
		// the result a lower bound.
		if depth > 32 {
			return 0
		}
		var n int64
		for _, f := range s.fields {
			n += minSizeAt(f.typ, depth+1)
		}
		return n
	default:
		return 1
	}
}

// checkBlockCount fails r when a block of n items, each at least itemSize
// bytes, cannot fit in what remains of the source or when the running total
// of zero-size items is too large.
func checkBlockCount(r *Reader, n, total, itemSize int64) bool {
	if n < 0 || total > MaxBytesLen {
		r.Fail(fmt.Errorf("%w: block count %d", ErrInvalidLength, total))
		return false
	}
	if itemSize == 0 {
		if total > MaxZeroSizeItems {
			r.Fail(fmt.Errorf("%w: %d zero-size items exceed %d", ErrInvalidLength, total, MaxZeroSizeItems))
			return false
		}
		return true
	}
	if avail := r.Available(); avail >= 0 && n > int64(avail)/itemSize {
		r.Fail(fmt.Errorf("%w: block of %d items needs at least %d bytes, %d remain", ErrInvalidLength, n, n*itemSize, avail))
		return false
	}
	return true
}

// readBlocks walks the block structure shared by arrays and maps, calling
// item once per element until the terminating zero count. itemSize is the
// fewest bytes an element can take.
func readBlocks(r *Reader, itemSize int64, item func()) {
	var total int64
	for r.Err() == nil {
		n := r.ReadLong()
		if r.Err() != nil || n == 0 {
			return
		}
		if n < 0 {
			n = -n
			r.ReadLong() // block size in bytes
		}
		total += n
		if !checkBlockCount(r, n, total, itemSize) {
			return
		}
		for ; n > 0 && r.Err() == nil; n-- {
			item()
		}
	}
}

// skipValue advances past one datum.
func skipValue(r *Reader, s *Schema) {
	s = s.resolve()
	switch s.kind {
	case KindNull:
	case KindBoolean:
		r.Skip(1)
	case KindInt, KindLong, KindEnum:
		r.ReadLong()
	case KindFloat:
		r.Skip(4)
	case KindDouble:
		r.Skip(8)
	case KindBytes, KindString:
		r.SkipBytes()
	case KindFixed:
		r.Skip(int64(s.size))
	case KindArray:
		skipBlocks(r, minSize(s.items), func() { skipValue(r, s.items) })
	case KindMap:
		skipBlocks(r, 1+minSize(s.values), func() {
			r.SkipBytes()
			skipValue(r, s.values)
		})
	case KindRecord:
		for _, f := range s.fields {
			skipValue(r, f.typ)
		}
	case KindUnion:
		if b := readBranch(r, len(s.branches)); b >= 0 {
			skipValue(r, s.branches[b])
		}
	}
}

// skipBlocks jumps over sized blocks in one step and walks unsized ones.
func skipBlocks(r *Reader, itemSize int64, item func()) {
	var total int64
	for r.Err() == nil {
		n := r.ReadLong()
		if r.Err() != nil || n == 0 {
			return
		}
		if n < 0 {
			r.Skip(r.ReadLong())
			continue
		}
		total += n
		if !checkBlockCount(r, n, total, itemSize) {
			return
		}
		for ; n > 0 && r.Err() == nil; n-- {
			item()
		}
	}
}
