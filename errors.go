package avro

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilIO indicates that NewReader/NewWriter was called with a nil io.Reader/io.Writer.
	ErrNilIO = errors.New("avro: NewReader/NewWriter called with a nil io.Reader/io.Writer")

	// ErrSizeTooSmall indicates a size conflict with bufio
	ErrSizeTooSmall = errors.New("avro: NewReaderSize with a size smaller than 16 conflict with bufio")

	// ErrAlreadyBuffered indicates that NewReader/NewWriter was called with an already-buffered
	// reader/writer, which would lead to unpredictable behavior and performance issues.
	ErrAlreadyBuffered = errors.New("avro: reader or writer is already buffered")

	// ErrWriteToNil indicates a WriteTo operation was attempted on a nil io.Writer.
	ErrWriteToNil = errors.New("avro: WriteTo called with a nil io.Writer")

	// ErrInvalidWhence indicates that an invalid 'whence' parameter was provided to a Seek operation.
	ErrInvalidWhence = errors.New("avro: unsupported whence")

	// ErrInvalidSeek indicates a seek was attempted to invalid position.
	ErrInvalidSeek = errors.New("avro: seek to a invalid position")

	// ErrInvalidRead indicates that an io.Reader returned an invalid (negative or outbound) count from Read.
	ErrInvalidRead = errors.New("avro: reader returned invalid count from Read")

	// ErrDiscardNegative indicates a Discard operation was attempted with a negative byte count.
	ErrDiscardNegative = errors.New("avro: cannot discard negative number of bytes")

	// ErrTrailingData is returned by UnmarshalBinary when bytes remain after the datum.
	ErrTrailingData = errors.New("avro: trailing data found after decoding")

	// ErrTruncatedData indicates that a read operation could not complete because the
	// underlying data source (e.g., buffer, stream) ended before all expected bytes were read.
	ErrTruncatedData = errors.New("avro: truncated data")

	// ErrVarintOverflow is returned when a variable-length integer does not terminate within 10 bytes.
	ErrVarintOverflow = errors.New("avro: varint overflows a 64-bit integer")

	// ErrInvalidData is returned when encoded bytes cannot belong to the schema,
	// e.g. an enum or union index out of range.
	ErrInvalidData = errors.New("avro: invalid encoded data")

	// ErrInvalidLength is returned for negative or oversized length prefixes.
	ErrInvalidLength = errors.New("avro: invalid length prefix")

	// ErrEndOfStream is returned by FileReader.Next once every block has been consumed.
	ErrEndOfStream = errors.New("avro: end of stream")

	// ErrClosed is returned by operations on a closed FileWriter, BlockWriter or FileReader.
	ErrClosed = errors.New("avro: use of closed file")

	// ErrReservedMetadata is returned when user metadata collides with a key the container owns.
	ErrReservedMetadata = errors.New("avro: reserved metadata key")

	// ErrAppendSchema marks a SchemaIncompatibleError raised when the schema given to
	// OpenAppendWriter differs from the one stored in the file header.
	ErrAppendSchema = errors.New("avro: append schema differs from file schema")

	// ErrChecksum marks a BlockCorruptionError caused by a block checksum mismatch.
	ErrChecksum = errors.New("avro: block checksum mismatch")

	// ErrSyncMarker marks a BlockCorruptionError caused by a missing sync marker.
	ErrSyncMarker = errors.New("avro: sync marker not found")
)

// SchemaParseError reports malformed or ambiguous schema text.
type SchemaParseError struct {
	Path string // location inside the schema, e.g. "Person.fields.name"
	Msg  string
	Err  error
}

func parseErrf(path string, err error, format string, args ...any) error {
	return &SchemaParseError{Path: path, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *SchemaParseError) Unwrap() error { return e.Err }

func (e *SchemaParseError) Error() string {
	var buf strings.Builder
	buf.WriteString("avro: schema parse")
	if e.Path != "" {
		buf.WriteString(" at ")
		buf.WriteString(e.Path)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// SchemaMismatchError reports a Value whose shape does not satisfy a schema.
type SchemaMismatchError struct {
	Path   string
	Schema Kind
	Value  Value
	Msg    string
}

func mismatchErrf(path string, s *Schema, v Value, format string, args ...any) error {
	return &SchemaMismatchError{Path: path, Schema: s.Kind(), Value: v, Msg: fmt.Sprintf(format, args...)}
}

func (e *SchemaMismatchError) Error() string {
	p := e.Path
	if p == "" {
		p = "$"
	}
	if e.Value == nil {
		return fmt.Sprintf("avro: schema mismatch at %s (%s): %s", p, e.Schema, e.Msg)
	}
	return fmt.Sprintf("avro: schema mismatch at %s (%s, got %s): %s", p, e.Schema, e.Value.Kind(), e.Msg)
}

// SchemaIncompatibleError reports that data written with one schema cannot be
// read with another.
type SchemaIncompatibleError struct {
	Path   string
	Writer string
	Reader string
	Msg    string
	Err    error
}

func incompatibleErrf(path string, w, r *Schema, format string, args ...any) error {
	e := &SchemaIncompatibleError{Path: path, Msg: fmt.Sprintf(format, args...)}
	if w != nil {
		e.Writer = w.TypeName()
	}
	if r != nil {
		e.Reader = r.TypeName()
	}
	return e
}

func (e *SchemaIncompatibleError) Unwrap() error { return e.Err }

func (e *SchemaIncompatibleError) Error() string {
	var buf strings.Builder
	buf.WriteString("avro: incompatible schemas")
	if e.Path != "" {
		buf.WriteString(" at ")
		buf.WriteString(e.Path)
	}
	if e.Writer != "" || e.Reader != "" {
		fmt.Fprintf(&buf, " (writer %s, reader %s)", e.Writer, e.Reader)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// InvalidFormatError reports a container header that cannot be understood.
type InvalidFormatError struct {
	Msg string
	Err error
}

func (e *InvalidFormatError) Unwrap() error { return e.Err }

func (e *InvalidFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("avro: invalid container format: %s: %v", e.Msg, e.Err)
	}
	return "avro: invalid container format: " + e.Msg
}

// BlockCorruptionError reports a damaged block. In tolerant mode SkippedBytes
// and SkippedObjects tell how much was discarded to resynchronize.
type BlockCorruptionError struct {
	Offset         int64 // file offset of the damaged block
	Block          int   // zero-based index of the block in the file
	SkippedBytes   int64
	SkippedObjects int64
	Err            error
}

func (e *BlockCorruptionError) Unwrap() error { return e.Err }

func (e *BlockCorruptionError) Error() string {
	msg := fmt.Sprintf("avro: corrupted block %d at offset %d", e.Block, e.Offset)
	if e.SkippedBytes > 0 {
		msg += fmt.Sprintf(" (skipped %d bytes, %d objects)", e.SkippedBytes, e.SkippedObjects)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// UnknownCodecError reports a compression codec name with no registered implementation.
type UnknownCodecError struct {
	Name string
}

func (e *UnknownCodecError) Error() string {
	return fmt.Sprintf("avro: unknown codec %q", e.Name)
}
