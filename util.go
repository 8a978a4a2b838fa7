package avro

import (
	"io"

	"golang.org/x/exp/constraints"
)

const BUFFER_SIZE = 4096

// MaxVarintLen is the longest encoding of a 64-bit zig-zag varint.
const MaxVarintLen = 10

// Discard reads and drops exactly n bytes from r.
func Discard(r io.Reader, n int64) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	if n < 0 {
		return 0, ErrDiscardNegative
	}
	if n <= BUFFER_SIZE {
		var discard [BUFFER_SIZE]byte
		skip, err := io.ReadFull(r, discard[:n])
		return int64(skip), err
	}
	return io.CopyN(io.Discard, r, n)
}

// ZigZag folds the sign bit into the lowest bit so small magnitudes encode short.
func ZigZag[T constraints.Signed](n T) uint64 {
	v := int64(n)
	return uint64(v<<1) ^ uint64(v>>63)
}

// UnZigZag reverses ZigZag.
func UnZigZag[T constraints.Signed](u uint64) T {
	return T(int64(u>>1) ^ -int64(u&1))
}

// AppendVarint appends the zig-zag base-128 encoding of n to dst.
func AppendVarint[T constraints.Signed](dst []byte, n T) []byte {
	u := ZigZag(n)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarintLen returns the number of bytes AppendVarint would write for n.
func VarintLen[T constraints.Signed](n T) int {
	u := ZigZag(n)
	l := 1
	for u >= 0x80 {
		u >>= 7
		l++
	}
	return l
}
