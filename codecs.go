package avro

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

type nullCodec struct{}

func (nullCodec) Name() string                          { return CodecNull }
func (nullCodec) Compress(src []byte) ([]byte, error)   { return src, nil }
func (nullCodec) Decompress(src []byte) ([]byte, error) { return src, nil }

// deflateCodec writes raw RFC 1951 streams with no zlib or gzip framing.
type deflateCodec struct {
	level   int
	writers sync.Pool
}

func newDeflateCodec() *deflateCodec {
	return &deflateCodec{level: flate.DefaultCompression}
}

func (c *deflateCodec) Name() string { return CodecDeflate }

func (c *deflateCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, _ := c.writers.Get().(*flate.Writer)
	if fw == nil {
		var err error
		if fw, err = flate.NewWriter(&buf, c.level); err != nil {
			return nil, err
		}
	} else {
		fw.Reset(&buf)
	}
	defer c.writers.Put(fw)
	if _, err := fw.Write(src); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *deflateCodec) Decompress(src []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(src))
	defer fr.Close()
	out, err := io.ReadAll(io.LimitReader(fr, MaxBytesLen+1))
	if err != nil {
		return nil, fmt.Errorf("avro: deflate: %w", err)
	}
	if len(out) > MaxBytesLen {
		return nil, fmt.Errorf("%w: deflate payload exceeds %d bytes", ErrInvalidLength, MaxBytesLen)
	}
	return out, nil
}

// snappyCodec stores the snappy block followed by the big-endian CRC32 (IEEE)
// of the uncompressed bytes.
type snappyCodec struct{}

func (snappyCodec) Name() string { return CodecSnappy }

func (snappyCodec) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, snappy.MaxEncodedLen(len(src))+4)
	n := len(snappy.Encode(dst, src))
	binary.BigEndian.PutUint32(dst[n:], crc32.ChecksumIEEE(src))
	return dst[:n+4], nil
}

func (snappyCodec) Decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("%w: snappy payload of %d bytes", ErrTruncatedData, len(src))
	}
	body, sum := src[:len(src)-4], binary.BigEndian.Uint32(src[len(src)-4:])
	out, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("avro: snappy: %w", err)
	}
	if crc32.ChecksumIEEE(out) != sum {
		return nil, fmt.Errorf("%w: snappy crc32", ErrChecksum)
	}
	return out, nil
}

// zstdCodec shares one encoder and one decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	encoder func() (*zstd.Encoder, error)
	decoder func() (*zstd.Decoder, error)
}

func newZstdCodec() *zstdCodec {
	return &zstdCodec{
		encoder: sync.OnceValues(func() (*zstd.Encoder, error) {
			return zstd.NewWriter(nil)
		}),
		decoder: sync.OnceValues(func() (*zstd.Decoder, error) {
			return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBytesLen))
		}),
	}
}

func (c *zstdCodec) Name() string { return CodecZstandard }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	enc, err := c.encoder()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	dec, err := c.decoder()
	if err != nil {
		return nil, err
	}
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("avro: zstandard: %w", err)
	}
	return out, nil
}
