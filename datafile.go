package avro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
)

// WriterOptions configures OpenWriter and OpenAppendWriter. The zero value
// and nil both mean defaults.
type WriterOptions struct {
	// Codec names the block compression codec of a new file. Defaults to "null".
	// Append mode always uses the codec stored in the file.
	Codec string
	// Codecs resolves codec names. Defaults to DefaultCodecs().
	Codecs *CodecRegistry
	// SyncInterval is the encoded size at which a block is flushed
	// automatically. Defaults to DefaultSyncInterval.
	SyncInterval int
	// Metadata is stored in the header of a new file.
	Metadata map[string][]byte
	// NoChecksum omits the per-block xxhash64 trailer of a new file. The
	// trailer is counted in each block's byte length, so only files written
	// with NoChecksum have the plain block layout (count, size, payload, sync
	// marker) that other readers of the format expect.
	NoChecksum bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *WriterOptions) withDefaults() WriterOptions {
	var c WriterOptions
	if o != nil {
		c = *o
	}
	if c.Codecs == nil {
		c.Codecs = DefaultCodecs()
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// FileWriter appends datums of one schema to a container file. It is not safe
// for concurrent use, and only one FileWriter may hold a sink at a time.
type FileWriter struct {
	schema *Schema
	sink   io.Writer
	blocks *BlockWriter
	opts   WriterOptions

	buf    bytes.Buffer
	count  int64
	closed bool
}

// OpenWriter writes a new header for s to sink and returns a writer for its
// blocks.
func OpenWriter(sink io.Writer, s *Schema, opts *WriterOptions) (*FileWriter, error) {
	if sink == nil {
		return nil, ErrNilIO
	}
	o := opts.withDefaults()
	if _, err := o.Codecs.Lookup(o.Codec); err != nil {
		return nil, err
	}
	h, err := NewHeader(s, o.Codec, o.Metadata, !o.NoChecksum)
	if err != nil {
		return nil, err
	}
	bw, err := NewBlockWriter(sink, h, o.Codecs, o.Logger)
	if err != nil {
		return nil, err
	}
	if _, err := h.WriteTo(sink); err != nil {
		return nil, err
	}
	return &FileWriter{schema: s, sink: sink, blocks: bw, opts: o}, nil
}

// OpenAppendWriter reopens an existing file for appending. The header is read
// from the start of stream and new blocks go after the last byte, ended by
// the file's own sync marker. If s is non-nil its canonical form must equal
// the stored schema, otherwise the error is a *SchemaIncompatibleError
// wrapping ErrAppendSchema. A nil s adopts the stored schema.
func OpenAppendWriter(stream io.ReadWriteSeeker, s *Schema, opts *WriterOptions) (*FileWriter, error) {
	if stream == nil {
		return nil, ErrNilIO
	}
	o := opts.withDefaults()
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	h, err := readHeader(&Reader{r: PeekReader(stream)})
	if err != nil {
		return nil, err
	}
	stored, err := ParseSchema(h.SchemaText())
	if err != nil {
		return nil, &InvalidFormatError{Msg: "stored schema", Err: err}
	}
	if s == nil {
		s = stored
	} else if s.Canonical() != stored.Canonical() {
		e := incompatibleErrf("", stored, s, "schema differs from the one stored in the file").(*SchemaIncompatibleError)
		e.Err = ErrAppendSchema
		return nil, e
	}
	bw, err := NewBlockWriter(stream, h, o.Codecs, o.Logger)
	if err != nil {
		return nil, err
	}
	end, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	o.Logger.LogAttrs(context.Background(), slog.LevelDebug, "avro: opened for append",
		slog.String("schema", s.TypeName()),
		slog.String("codec", h.Codec()),
		slog.Int64("offset", end),
	)
	return &FileWriter{schema: s, sink: stream, blocks: bw, opts: o}, nil
}

func (w *FileWriter) Schema() *Schema { return w.schema }
func (w *FileWriter) Header() *Header { return w.blocks.Header() }

// Append buffers one datum. v is either a Value or a plain Go value accepted
// by FromNative. A value that does not fit the schema fails with a
// *SchemaMismatchError and leaves the pending block untouched. The block is
// flushed once its encoding reaches the sync interval or it holds
// MaxZeroSizeItems datums.
func (w *FileWriter) Append(v any) error {
	if w.closed {
		return ErrClosed
	}
	val, ok := v.(Value)
	if !ok {
		var err error
		if val, err = FromNative(w.schema, v); err != nil {
			return err
		}
	}
	if err := appendEncoded(&w.buf, w.schema, val); err != nil {
		return err
	}
	w.count++
	if w.buf.Len() >= w.opts.SyncInterval || w.count >= MaxZeroSizeItems {
		return w.Flush()
	}
	return nil
}

// Flush writes the pending datums as one block. It does nothing when no datum
// is pending.
func (w *FileWriter) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if w.count == 0 {
		return nil
	}
	if err := w.blocks.WriteBlock(w.count, w.buf.Bytes()); err != nil {
		return err
	}
	w.buf.Reset()
	w.count = 0
	return nil
}

// Sync flushes and then syncs the sink when it has a Sync method, as *os.File does.
func (w *FileWriter) Sync() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if s, ok := w.sink.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Close flushes the pending block and closes the sink if it is an io.Closer.
func (w *FileWriter) Close() error {
	if w.closed {
		return ErrClosed
	}
	err := w.Flush()
	w.closed = true
	if c, ok := w.sink.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// ReaderOptions configures OpenReader. nil means defaults.
type ReaderOptions struct {
	// Schema is the reader schema. Nil decodes with the writer schema.
	Schema *Schema
	// Resolver caches plans. Defaults to a private resolver per reader.
	Resolver *Resolver
	// Codecs resolves the stored codec name. Defaults to DefaultCodecs().
	Codecs *CodecRegistry
	// Tolerant skips corrupted blocks instead of failing.
	Tolerant bool
	// OnCorruption is called for each block skipped in tolerant mode.
	OnCorruption func(*BlockCorruptionError)
	// MaxBlockSize bounds a block's payload. Defaults to DefaultMaxBlockSize.
	MaxBlockSize int64
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// FileReader is a forward-only sequence of the datums of a container file.
type FileReader struct {
	source   io.Reader
	blocks   *BlockReader
	writer   *Schema
	reader   *Schema
	resolver *Resolver
	plan     *ResolutionPlan

	pending []Value
	data    BytesReader
	err     error
	closed  bool
}

// OpenReader reads the header of source. It fails with an *InvalidFormatError
// when the magic or header is bad and with an *UnknownCodecError when the
// stored codec is not registered. Schema resolution is deferred to the first
// call to Next.
func OpenReader(source io.Reader, opts *ReaderOptions) (*FileReader, error) {
	var o ReaderOptions
	if opts != nil {
		o = *opts
	}
	br, err := NewBlockReader(source, &BlockReaderOptions{
		Codecs:       o.Codecs,
		Tolerant:     o.Tolerant,
		OnCorruption: o.OnCorruption,
		MaxBlockSize: o.MaxBlockSize,
		Logger:       o.Logger,
	})
	if err != nil {
		return nil, err
	}
	ws, err := ParseSchema(br.Header().SchemaText())
	if err != nil {
		return nil, &InvalidFormatError{Msg: "stored schema", Err: err}
	}
	if o.Resolver == nil && o.Schema != nil {
		o.Resolver = NewResolver(&ResolverOptions{Logger: o.Logger})
	}
	return &FileReader{
		source:   source,
		blocks:   br,
		writer:   ws,
		reader:   o.Schema,
		resolver: o.Resolver,
	}, nil
}

// WriterSchema returns the schema stored in the header.
func (r *FileReader) WriterSchema() *Schema { return r.writer }

// Schema returns the schema values are shaped by.
func (r *FileReader) Schema() *Schema {
	if r.reader != nil {
		return r.reader
	}
	return r.writer
}

func (r *FileReader) Header() *Header { return r.blocks.Header() }

// Metadata returns a header entry.
func (r *FileReader) Metadata(key string) ([]byte, bool) {
	v, ok := r.blocks.Header().Meta[key]
	return v, ok
}

// Skipped reports the bytes and objects discarded in tolerant mode.
func (r *FileReader) Skipped() (skippedBytes, skippedObjects int64) {
	return r.blocks.Skipped()
}

// Next returns the next datum. It returns ErrEndOfStream after the last one,
// a *SchemaIncompatibleError when the reader schema cannot read the file, and
// a *BlockCorruptionError for a damaged block in strict mode. Errors are
// sticky.
func (r *FileReader) Next() (Value, error) {
	if r.closed {
		return nil, ErrClosed
	}
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}
		r.err = r.load()
	}
	v := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	return v, nil
}

// All iterates over the remaining datums. Iteration stops after the first error.
func (r *FileReader) All() iter.Seq2[Value, error] {
	return func(yield func(Value, error) bool) {
		for {
			v, err := r.Next()
			if err == ErrEndOfStream {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the source if it is an io.Closer.
func (r *FileReader) Close() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	r.pending = nil
	if c, ok := r.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// load decodes the next good block into pending.
func (r *FileReader) load() error {
	if r.reader != nil && r.plan == nil {
		plan, err := r.resolver.Resolve(r.writer, r.reader)
		if err != nil {
			return err
		}
		r.plan = plan
	}
	for {
		b, err := r.blocks.NextBlock()
		if err == io.EOF {
			return ErrEndOfStream
		}
		if err != nil {
			return err
		}
		values, err := r.decodeBlock(b)
		if err == nil {
			r.pending = values
			return nil
		}
		var incompatible *SchemaIncompatibleError
		if errors.As(err, &incompatible) {
			return err
		}
		if err := r.blocks.Reject(b, err); err != nil {
			return err
		}
	}
}

// decodeBlock decodes all datums of b. A block whose payload does not hold
// exactly b.Count datums is corrupt.
func (r *FileReader) decodeBlock(b *Block) ([]Value, error) {
	r.data.Reset(b.Data)
	rd := &Reader{r: &r.data}
	if !checkBlockCount(rd, b.Count, b.Count, minSize(r.writer)) {
		return nil, rd.Err()
	}
	values := make([]Value, 0, min(b.Count, 1024))
	for i := int64(0); i < b.Count; i++ {
		var v Value
		if r.plan != nil {
			v = r.plan.root.read(rd)
		} else {
			v = readValue(rd, r.writer)
		}
		if err := rd.Err(); err != nil {
			rd.truncated()
			return nil, fmt.Errorf("object %d of %d: %w", i, b.Count, rd.Err())
		}
		values = append(values, v)
	}
	if n := r.data.Available(); n > 0 {
		return nil, fmt.Errorf("%w: %d bytes after %d objects", ErrTrailingData, n, b.Count)
	}
	return values, nil
}
