package avro

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/cespare/xxhash/v2"
)

// Block is one decompressed block of a container file.
type Block struct {
	Index  int   // zero-based position among the blocks of the file
	Offset int64 // file offset of the block's count
	Count  int64 // number of datums in Data
	Data   []byte

	size int64 // bytes on disk, sync marker included
}

// BlockReaderOptions configures a BlockReader.
type BlockReaderOptions struct {
	Codecs *CodecRegistry
	// Tolerant makes corrupted blocks skippable: the reader scans forward to
	// the next sync marker instead of failing.
	Tolerant bool
	// OnCorruption is called for every block skipped in tolerant mode.
	OnCorruption func(*BlockCorruptionError)
	// MaxBlockSize bounds the declared payload length. Defaults to DefaultMaxBlockSize.
	MaxBlockSize int64
	Logger       *slog.Logger
}

// BlockReader scans the blocks of a container file in order.
type BlockReader struct {
	src      *PeekableReader
	header   *Header
	codec    Codec
	checksum bool
	opts     BlockReaderOptions

	index          int
	skippedBytes   int64
	skippedObjects int64
	err            error
}

// NewBlockReader reads the header from source. It fails with an
// *InvalidFormatError for a bad header and an *UnknownCodecError when the
// header names a codec the registry does not have.
func NewBlockReader(source io.Reader, opts *BlockReaderOptions) (*BlockReader, error) {
	if source == nil {
		return nil, ErrNilIO
	}
	var o BlockReaderOptions
	if opts != nil {
		o = *opts
	}
	if o.Codecs == nil {
		o.Codecs = DefaultCodecs()
	}
	if o.MaxBlockSize <= 0 {
		o.MaxBlockSize = DefaultMaxBlockSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	src := PeekReader(source)
	h, err := readHeader(&Reader{r: src})
	if err != nil {
		return nil, err
	}
	if c, ok := h.Meta[MetaChecksum]; ok && string(c) != ChecksumXXH64 {
		return nil, &InvalidFormatError{Msg: fmt.Sprintf("unknown checksum %q", c)}
	}
	codec, err := o.Codecs.Lookup(h.Codec())
	if err != nil {
		return nil, err
	}
	return &BlockReader{
		src:      src,
		header:   h,
		codec:    codec,
		checksum: h.Checksum(),
		opts:     o,
	}, nil
}

func (br *BlockReader) Header() *Header { return br.header }

// Skipped reports the bytes and objects discarded in tolerant mode.
func (br *BlockReader) Skipped() (skippedBytes, skippedObjects int64) {
	return br.skippedBytes, br.skippedObjects
}

// NextBlock returns the next block, or io.EOF after the last one. In strict
// mode a damaged block returns a *BlockCorruptionError, which is then
// returned by every later call. In tolerant mode damaged regions are skipped.
func (br *BlockReader) NextBlock() (*Block, error) {
	for br.err == nil {
		start := br.src.Offset()
		br.src.Record()
		b, count, err := br.readBlock(start)
		raw := br.src.StopRecording()
		if err == nil {
			br.index++
			return b, nil
		}
		if err == io.EOF && len(raw) == 0 {
			br.err = io.EOF
			break
		}
		if err == io.EOF {
			err = fmt.Errorf("%w: %v", ErrTruncatedData, io.ErrUnexpectedEOF)
		}
		cerr := &BlockCorruptionError{Offset: start, Block: br.index, Err: err}
		br.index++
		if !br.opts.Tolerant {
			br.err = cerr
			break
		}
		skipped, found := br.resync(raw)
		cerr.SkippedBytes = skipped
		cerr.SkippedObjects = count
		br.report(cerr)
		if !found {
			br.err = io.EOF
		}
	}
	return nil, br.err
}

// Reject reports that a block returned by NextBlock failed to decode. In
// tolerant mode the block is counted as skipped and Reject returns nil;
// otherwise the returned *BlockCorruptionError also ends the scan.
func (br *BlockReader) Reject(b *Block, cause error) error {
	cerr := &BlockCorruptionError{Offset: b.Offset, Block: b.Index, Err: cause}
	if !br.opts.Tolerant {
		br.err = cerr
		return cerr
	}
	cerr.SkippedBytes = b.size
	cerr.SkippedObjects = b.Count
	br.report(cerr)
	return nil
}

// readBlock reads one block. count is the declared object count when it
// could be read, so a skip can report how many objects were lost.
func (br *BlockReader) readBlock(start int64) (b *Block, count int64, err error) {
	r := &Reader{r: br.src}
	count = r.ReadLong()
	if err := r.Err(); err != nil {
		return nil, 0, err
	}
	size := r.ReadLong()
	if err := r.Err(); err != nil {
		r.truncated()
		return nil, 0, r.Err()
	}
	if count <= 0 || count > MaxBytesLen {
		return nil, 0, fmt.Errorf("%w: block object count %d", ErrInvalidLength, count)
	}
	if size < 0 || size > br.opts.MaxBlockSize {
		return nil, count, fmt.Errorf("%w: block size %d outside [0,%d]", ErrInvalidLength, size, br.opts.MaxBlockSize)
	}
	payload := r.ReadFixed(size)
	sync := r.ReadFixed(SyncSize)
	if err := r.Err(); err != nil {
		return nil, count, err
	}
	if !bytes.Equal(sync, br.header.Sync[:]) {
		return nil, count, ErrSyncMarker
	}
	if br.checksum {
		if len(payload) < 8 {
			return nil, count, fmt.Errorf("%w: payload of %d bytes has no checksum", ErrChecksum, len(payload))
		}
		body, sum := payload[:len(payload)-8], binary.LittleEndian.Uint64(payload[len(payload)-8:])
		if xxhash.Sum64(body) != sum {
			return nil, count, ErrChecksum
		}
		payload = body
	}
	data, err := br.codec.Decompress(payload)
	if err != nil {
		return nil, count, fmt.Errorf("avro: %s decompress: %w", br.codec.Name(), err)
	}
	return &Block{
		Index:  br.index,
		Offset: start,
		Count:  count,
		Data:   data,
		size:   br.src.Offset() - start,
	}, count, nil
}

// resync positions the stream just past the next sync marker. It searches the
// bytes of the damaged block first and returns what follows the marker to the
// stream; failing that it scans the stream. It reports how many bytes were
// discarded and whether a marker was found.
func (br *BlockReader) resync(raw []byte) (int64, bool) {
	marker := br.header.Sync[:]
	if i := bytes.Index(raw, marker); i >= 0 {
		end := i + SyncSize
		br.src.Unread(raw[end:])
		return int64(end), true
	}

	skipped := int64(len(raw))
	window := make([]byte, 0, 2*SyncSize)
	if len(raw) >= SyncSize {
		window = append(window, raw[len(raw)-SyncSize+1:]...)
	} else {
		window = append(window, raw...)
	}
	for {
		c, err := br.src.ReadByte()
		if err != nil {
			return skipped, false
		}
		skipped++
		if len(window) == cap(window) {
			window = append(window[:0], window[len(window)-SyncSize+1:]...)
		}
		window = append(window, c)
		if len(window) >= SyncSize && bytes.Equal(window[len(window)-SyncSize:], marker) {
			return skipped, true
		}
	}
}

func (br *BlockReader) report(cerr *BlockCorruptionError) {
	br.skippedBytes += cerr.SkippedBytes
	br.skippedObjects += cerr.SkippedObjects
	br.opts.Logger.LogAttrs(context.Background(), slog.LevelWarn, "avro: skipped corrupted block",
		slog.Int("block", cerr.Block),
		slog.Int64("offset", cerr.Offset),
		slog.Int64("skipped_bytes", cerr.SkippedBytes),
		slog.Int64("skipped_objects", cerr.SkippedObjects),
		slog.Any("err", cerr.Err),
	)
	if br.opts.OnCorruption != nil {
		br.opts.OnCorruption(cerr)
	}
}
