package avro

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// --- Mocks and Helpers ---

// mockFlushingWriter helps verify that a writer's Flush method is called.
type mockFlushingWriter struct {
	bytes.Buffer
	flushed bool
}

func (m *mockFlushingWriter) Flush() error {
	m.flushed = true
	return nil
}

var errBoom = errors.New("boom")

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errBoom }

// oneByteReader hides every interface but io.Reader and returns one byte per call.
type oneByteReader struct{ r io.Reader }

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

// --- Writer Test Suite ---

type WriterTestSuite struct {
	suite.Suite
	buf    *bytes.Buffer
	writer *Writer
}

// SetupTest runs before each test in the suite, ensuring a clean state.
func (s *WriterTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.writer, _ = NewWriter(s.buf)
}

func (s *WriterTestSuite) TestConstructors() {
	s.T().Run("ErrorOnNilWriter", func(t *testing.T) {
		_, err := NewWriter(nil)
		assert.ErrorIs(t, err, ErrNilIO)
	})
}

func (s *WriterTestSuite) TestVarints() {
	cases := []struct {
		n    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x01}},
		{1, []byte{0x02}},
		{-2, []byte{0x03}},
		{2, []byte{0x04}},
		{-64, []byte{0x7f}},
		{64, []byte{0x80, 0x01}},
		{8192, []byte{0x80, 0x80, 0x01}},
	}
	for _, c := range cases {
		s.buf.Reset()
		w, _ := NewWriter(s.buf)
		w.WriteLong(c.n)
		_, err := w.Result()
		s.Require().NoError(err)
		s.Assert().Equal(c.want, s.buf.Bytes(), "encoding of %d", c.n)
		s.Assert().Equal(len(c.want), VarintLen(c.n))
	}
}

func (s *WriterTestSuite) TestBasicWrites() {
	s.writer.WriteBool(true)
	s.writer.WriteBool(false)
	s.writer.WriteInt(-3)
	s.writer.WriteFloat(1)
	s.writer.WriteDouble(1)
	s.writer.WriteStr("foo")
	s.writer.WriteBytes(nil)
	s.writer.WriteFixed([]byte{0xAA, 0xBB})

	n, err := s.writer.Result()
	s.Require().NoError(err)
	s.Assert().EqualValues(2+1+4+8+4+1+2, n)
	s.Assert().EqualValues(s.buf.Len(), s.writer.Count())

	expected := []byte{
		0x01, 0x00, // WriteBool
		0x05,                   // WriteInt(-3)
		0x00, 0x00, 0x80, 0x3f, // WriteFloat (Little Endian)
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f, // WriteDouble (Little Endian)
		0x06, 'f', 'o', 'o', // WriteStr
		0x00,       // WriteBytes(nil)
		0xAA, 0xBB, // WriteFixed
	}
	s.Assert().Equal(expected, s.buf.Bytes())
}

func (s *WriterTestSuite) TestErrorHandling() {
	s.T().Run("FlushError", func(t *testing.T) {
		writer, err := NewWriterSize(failingWriter{}, 16)
		require.NoError(t, err)

		writer.WriteLong(1) // buffered, no error yet

		_, err = writer.Result()
		require.Error(t, err, "Error should be present after flush")
		assert.ErrorIs(t, err, errBoom)
	})

	s.T().Run("WriteAfterErrorIsNoOp", func(t *testing.T) {
		writer, _ := NewWriterSize(failingWriter{}, 16)
		writer.WriteLong(1)
		writer.Flush()

		firstErr := writer.Err()
		require.ErrorIs(t, firstErr, errBoom)
		count := writer.Count()

		writer.WriteStr("ignored")
		writer.Flush()

		assert.Equal(t, firstErr, writer.Err(), "The latched error should not change")
		assert.Equal(t, count, writer.Count())
	})
}

func (s *WriterTestSuite) TestFlush() {
	mock := &mockFlushingWriter{}
	writer, _ := NewWriterSize(mock, 128)
	writer.WriteBool(true)

	// Before flush, data is in the buffer, but not in the underlying writer.
	s.Assert().True(writer.w.(*bufioWriterAdapter).Buffered() > 0)
	s.Assert().Zero(mock.Len())

	writer.Flush()

	s.Assert().False(mock.flushed, "bufio.Writer.Flush writes through but does not call Flush on its target")
	s.Assert().Zero(writer.w.(*bufioWriterAdapter).Buffered())
	s.Assert().Equal(1, mock.Buffer.Len())
}

func (s *WriterTestSuite) TestNestedWriterDoesNotFlush() {
	mock := &mockFlushingWriter{}
	outer, _ := NewWriterSize(mock, 128)
	inner, err := NewWriter(outer)
	s.Require().NoError(err)

	inner.WriteLong(5)
	inner.Flush()
	s.Assert().Zero(mock.Len(), "only the outermost writer flushes")

	outer.Flush()
	s.Assert().Equal([]byte{0x0a}, mock.Bytes())
}

// TestWriter runs the WriterTestSuite.
func TestWriter(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}

// --- Reader Test Suite ---

type ReaderTestSuite struct {
	suite.Suite
}

func (s *ReaderTestSuite) TestConstructors() {
	s.T().Run("ErrorOnNilReader", func(t *testing.T) {
		_, err := NewReader(nil)
		assert.ErrorIs(t, err, ErrNilIO)
	})

	s.T().Run("RejectsSmallBufferedReader", func(t *testing.T) {
		_, err := NewReaderSize(strings.NewReader("x"), 8)
		assert.ErrorIs(t, err, ErrSizeTooSmall)
	})
}

func (s *ReaderTestSuite) TestSuccessfulReads() {
	data := []byte{
		0x01,       // bool
		0x02,       // long 1
		0x7f,       // long -64
		0x80, 0x01, // long 64
		0x00, 0x00, 0x80, 0x3f, // float 1
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f, // double 1
		0x06, 'f', 'o', 'o', // string
		0xAA, 0xBB, // fixed(2)
	}
	r, _ := NewReader(bytes.NewReader(data))

	b := r.ReadBool()
	l1 := r.ReadLong()
	l2 := r.ReadLong()
	l3 := r.ReadInt()
	f := r.ReadFloat()
	d := r.ReadDouble()
	str := r.ReadStr()
	fixed := r.ReadFixed(2)

	s.Require().NoError(r.Err())
	s.Assert().True(b)
	s.Assert().EqualValues(1, l1)
	s.Assert().EqualValues(-64, l2)
	s.Assert().EqualValues(64, l3)
	s.Assert().Equal(float32(1), f)
	s.Assert().Equal(float64(1), d)
	s.Assert().Equal("foo", str)
	s.Assert().Equal([]byte{0xAA, 0xBB}, fixed)
	s.Assert().EqualValues(len(data), r.Count())

	// The next read should result in a clean EOF.
	r.Read(make([]byte, 1))
	s.Assert().ErrorIs(r.Err(), io.EOF)
	s.Assert().True(r.IsEOF())
}

func (s *ReaderTestSuite) TestVarintRoundTrip() {
	values := []int64{0, 1, -1, 63, -64, 64, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	for _, v := range values {
		w.WriteLong(v)
	}
	_, err := w.Result()
	s.Require().NoError(err)

	r, _ := NewReader(&buf)
	for _, v := range values {
		s.Assert().Equal(v, r.ReadLong())
	}
	s.Require().NoError(r.Err())
}

func (s *ReaderTestSuite) TestErrorHandling() {
	s.T().Run("ReadPastEOF", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03}))
		r.ReadDouble()

		require.Error(t, r.Err())
		assert.ErrorIs(t, r.Err(), ErrTruncatedData)
		assert.False(t, r.IsEOF(), "a partial read is not a clean EOF")
	})

	s.T().Run("TruncatedVarint", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{0x80}))
		r.ReadLong()
		assert.ErrorIs(t, r.Err(), ErrTruncatedData)
	})

	s.T().Run("VarintOverflow", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader(bytes.Repeat([]byte{0xff}, 11)))
		r.ReadLong()
		assert.ErrorIs(t, r.Err(), ErrVarintOverflow)
	})

	s.T().Run("IntOutOfRange", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader(AppendVarint(nil, int64(1)<<40)))
		r.ReadInt()
		assert.ErrorIs(t, r.Err(), ErrVarintOverflow)
	})

	s.T().Run("NegativeLength", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{0x01}))
		assert.Nil(t, r.ReadBytes())
		assert.ErrorIs(t, r.Err(), ErrInvalidLength)
	})

	s.T().Run("LengthBeyondRemainingBytes", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{0x14, 0x01, 0x02}))
		assert.Nil(t, r.ReadBytes())
		assert.ErrorIs(t, r.Err(), ErrTruncatedData)
	})

	s.T().Run("ReadAfterErrorIsNoOp", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03}))
		r.ReadDouble()
		firstErr := r.Err()
		require.Error(t, firstErr)

		assert.False(t, r.ReadBool())
		assert.Equal(t, firstErr, r.Err(), "The latched error should not change")
	})

	s.T().Run("Fail", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{0x02}))
		r.Fail(errBoom)
		assert.Zero(t, r.ReadLong())
		assert.ErrorIs(t, r.Err(), errBoom)
	})
}

func (s *ReaderTestSuite) TestSkip() {
	r, _ := NewReader(bytes.NewReader([]byte{0x06, 'a', 'b', 'c', 1, 2, 3, 4, 5}))
	r.SkipBytes()
	r.Skip(3)
	b, err := r.ReadByte()
	s.Require().NoError(err)
	s.Assert().Equal(byte(4), b)
	s.Assert().EqualValues(8, r.Count())

	r.Skip(5)
	s.Assert().ErrorIs(r.Err(), ErrTruncatedData)
}

func (s *ReaderTestSuite) TestReadFixedZero() {
	r, _ := NewReader(bytes.NewReader(nil))
	b := r.ReadFixed(0)
	s.Require().NoError(r.Err())
	s.Assert().NotNil(b)
	s.Assert().Empty(b)
}

func (s *ReaderTestSuite) TestInterfaceMethods() {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	s.T().Run("WriteTo", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader(data))
		var buf bytes.Buffer
		n, err := r.WriteTo(&buf)
		require.NoError(t, err)
		assert.EqualValues(t, len(data), n)
		assert.Equal(t, data, buf.Bytes())
	})

	s.T().Run("WriteToNilWriter", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader(data))
		_, err := r.WriteTo(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWriteToNil)
	})

	s.T().Run("BufferedSource", func(t *testing.T) {
		r, err := NewReader(&oneByteReader{bytes.NewReader(data)})
		require.NoError(t, err)
		assert.Equal(t, data[:3], r.ReadFixed(3))
		assert.Equal(t, -1, r.Available())
	})
}

// TestReader runs the ReaderTestSuite.
func TestReader(t *testing.T) {
	suite.Run(t, new(ReaderTestSuite))
}

// --- Standalone Helper Tests ---

func TestZigZag(t *testing.T) {
	assert.Equal(t, uint64(0), ZigZag(int32(0)))
	assert.Equal(t, uint64(1), ZigZag(int32(-1)))
	assert.Equal(t, uint64(2), ZigZag(int8(1)))
	assert.Equal(t, uint64(math.MaxUint64), ZigZag(int64(math.MinInt64)))
	for _, v := range []int64{0, -1, 1, math.MaxInt64, math.MinInt64} {
		assert.Equal(t, v, UnZigZag[int64](ZigZag(v)))
	}
	assert.Equal(t, MaxVarintLen, VarintLen(int64(math.MinInt64)))
}

func TestBytesReader(t *testing.T) {
	r := NewBytesReader([]byte{1, 2, 3})
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(1), b)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, r.Available())

	pos, err := r.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pos)

	_, err = r.Seek(0, 42)
	assert.ErrorIs(t, err, ErrInvalidWhence)

	r.Reset([]byte{9})
	assert.Equal(t, 1, r.Available())
}
