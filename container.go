package avro

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/ksuid"
)

// Magic opens every container file.
var Magic = [4]byte{'O', 'b', 'j', 1}

// SyncSize is the length of the sync marker that ends every block.
const SyncSize = 16

// Reserved metadata keys.
const (
	MetaSchema   = "schema"
	MetaCodec    = "codec"
	MetaChecksum = "checksum"
)

// ChecksumXXH64 is the only block checksum algorithm. Each payload carries
// the little-endian xxhash64 of its compressed bytes in its last 8 bytes.
const ChecksumXXH64 = "xxh64"

const (
	DefaultSyncInterval = 64000
	DefaultMaxBlockSize = 64 << 20
)

// Header is the self-describing preamble of a container file.
type Header struct {
	Meta map[string][]byte
	Sync [SyncSize]byte
}

// NewHeader builds the header of a new file: the canonical writer schema, the
// codec name, the checksum flag, a fresh sync marker and the user metadata,
// which may not use a reserved key.
func NewHeader(s *Schema, codec string, meta map[string][]byte, checksum bool) (*Header, error) {
	h := &Header{Meta: make(map[string][]byte, len(meta)+3)}
	for k, v := range meta {
		if k == MetaSchema || k == MetaCodec || k == MetaChecksum {
			return nil, fmt.Errorf("%w: %q", ErrReservedMetadata, k)
		}
		h.Meta[k] = v
	}
	if codec == "" {
		codec = CodecNull
	}
	h.Meta[MetaSchema] = []byte(s.Canonical())
	h.Meta[MetaCodec] = []byte(codec)
	if checksum {
		h.Meta[MetaChecksum] = []byte(ChecksumXXH64)
	}
	id, err := ksuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("avro: generate sync marker: %w", err)
	}
	copy(h.Sync[:], id.Payload())
	return h, nil
}

// SchemaText returns the stored writer schema.
func (h *Header) SchemaText() string { return string(h.Meta[MetaSchema]) }

// Codec returns the stored codec name, "null" when absent.
func (h *Header) Codec() string {
	if c := h.Meta[MetaCodec]; len(c) > 0 {
		return string(c)
	}
	return CodecNull
}

// Checksum reports whether blocks carry an xxhash64 trailer.
func (h *Header) Checksum() bool {
	return string(h.Meta[MetaChecksum]) == ChecksumXXH64
}

// WriteTo writes magic, metadata and sync marker. Metadata keys are written
// in sorted order.
func (h *Header) WriteTo(sink io.Writer) (int64, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	w := &Writer{w: &bytesBufferWriterAdapter{buf}}
	w.WriteFixed(Magic[:])
	keys := make([]string, 0, len(h.Meta))
	for k := range h.Meta {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if len(keys) > 0 {
		w.WriteLong(int64(len(keys)))
		for _, k := range keys {
			w.WriteStr(k)
			w.WriteBytes(h.Meta[k])
		}
	}
	w.WriteLong(0)
	w.WriteFixed(h.Sync[:])
	if err := w.Err(); err != nil {
		return 0, err
	}
	n, err := sink.Write(buf.Bytes())
	return int64(n), err
}

// readHeader parses a header. Any failure is an *InvalidFormatError.
func readHeader(r *Reader) (*Header, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, &InvalidFormatError{Msg: "missing magic", Err: err}
	}
	if m != Magic {
		return nil, &InvalidFormatError{Msg: fmt.Sprintf("bad magic %q", m[:])}
	}
	h := &Header{Meta: make(map[string][]byte)}
	readBlocks(r, 2, func() {
		k := r.ReadStr()
		h.Meta[k] = r.ReadBytes()
	})
	sync := r.ReadFixed(SyncSize)
	if r.Err() != nil {
		r.truncated()
		return nil, &InvalidFormatError{Msg: "malformed header", Err: r.Err()}
	}
	copy(h.Sync[:], sync)
	return h, nil
}

// BlockWriter writes blocks after a header. Each block is assembled in memory
// and handed to the sink in a single Write, so a failed block never leaves a
// previously written one incomplete.
type BlockWriter struct {
	sink     io.Writer
	header   *Header
	codec    Codec
	checksum bool
	logger   *slog.Logger

	out    bytes.Buffer
	blocks int
	err    error
}

// NewBlockWriter prepares to write blocks for h. It does not write the header.
func NewBlockWriter(sink io.Writer, h *Header, codecs *CodecRegistry, logger *slog.Logger) (*BlockWriter, error) {
	if sink == nil {
		return nil, ErrNilIO
	}
	if codecs == nil {
		codecs = DefaultCodecs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	codec, err := codecs.Lookup(h.Codec())
	if err != nil {
		return nil, err
	}
	return &BlockWriter{
		sink:     sink,
		header:   h,
		codec:    codec,
		checksum: h.Checksum(),
		logger:   logger,
	}, nil
}

func (bw *BlockWriter) Header() *Header { return bw.header }

// Blocks reports how many blocks this writer has written.
func (bw *BlockWriter) Blocks() int { return bw.blocks }

// WriteBlock compresses data, the encoding of count datums, and writes it as
// one block. An empty block is not written. After a sink error every later
// call fails with that error.
func (bw *BlockWriter) WriteBlock(count int64, data []byte) error {
	if bw.err != nil {
		return bw.err
	}
	if count == 0 {
		return nil
	}
	payload, err := bw.codec.Compress(data)
	if err != nil {
		return fmt.Errorf("avro: %s compress: %w", bw.codec.Name(), err)
	}

	bw.out.Reset()
	w := &Writer{w: &bytesBufferWriterAdapter{&bw.out}}
	size := int64(len(payload))
	if bw.checksum {
		size += 8
	}
	w.WriteLong(count)
	w.WriteLong(size)
	w.WriteFixed(payload)
	if bw.checksum {
		var sum [8]byte
		binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(payload))
		w.WriteFixed(sum[:])
	}
	w.WriteFixed(bw.header.Sync[:])
	if err := w.Err(); err != nil {
		return err
	}

	if _, err := bw.sink.Write(bw.out.Bytes()); err != nil {
		bw.err = err
		return err
	}
	bw.blocks++
	bw.logger.LogAttrs(context.Background(), slog.LevelDebug, "avro: block written",
		slog.Int64("objects", count),
		slog.Int("raw_bytes", len(data)),
		slog.Int64("payload_bytes", size),
		slog.String("codec", bw.codec.Name()),
	)
	return nil
}
