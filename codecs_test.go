package avro

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":      {},
		"short":      []byte("abc"),
		"repetitive": bytes.Repeat([]byte("avro block "), 1000),
	}
	for _, name := range []string{CodecNull, CodecDeflate, CodecSnappy, CodecZstandard} {
		c, err := DefaultCodecs().Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())

		for pname, p := range payloads {
			packed, err := c.Compress(p)
			require.NoError(t, err, "%s/%s", name, pname)
			if name != CodecNull && pname == "repetitive" {
				assert.Less(t, len(packed), len(p), "%s should shrink %s", name, pname)
			}
			out, err := c.Decompress(packed)
			require.NoError(t, err, "%s/%s", name, pname)
			assert.True(t, bytes.Equal(p, out), "%s/%s", name, pname)
		}
	}
}

func TestCodecsConcurrent(t *testing.T) {
	p := bytes.Repeat([]byte("0123456789"), 500)
	for _, name := range []string{CodecDeflate, CodecZstandard} {
		c, err := DefaultCodecs().Lookup(name)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				packed, err := c.Compress(p)
				if err == nil {
					var out []byte
					out, err = c.Decompress(packed)
					if err == nil && !bytes.Equal(out, p) {
						err = ErrChecksum
					}
				}
				if err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestSnappyChecksum(t *testing.T) {
	c, err := DefaultCodecs().Lookup(CodecSnappy)
	require.NoError(t, err)

	packed, err := c.Compress([]byte("hello snappy"))
	require.NoError(t, err)
	packed[len(packed)-1] ^= 0xff
	_, err = c.Decompress(packed)
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = c.Decompress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestCorruptCompressedInput(t *testing.T) {
	for _, name := range []string{CodecDeflate, CodecZstandard} {
		c, err := DefaultCodecs().Lookup(name)
		require.NoError(t, err)
		_, err = c.Decompress([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb})
		assert.Error(t, err, name)
	}
}

type upperCodec struct{}

func (upperCodec) Name() string                          { return "upper" }
func (upperCodec) Compress(src []byte) ([]byte, error)   { return bytes.ToUpper(src), nil }
func (upperCodec) Decompress(src []byte) ([]byte, error) { return bytes.ToLower(src), nil }

func TestCodecRegistry(t *testing.T) {
	reg := NewCodecRegistry()
	assert.ElementsMatch(t, []string{CodecNull, CodecDeflate, CodecSnappy, CodecZstandard}, reg.Names())

	c, err := reg.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, CodecNull, c.Name())

	_, err = reg.Lookup("lz4")
	var unknown *UnknownCodecError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "lz4", unknown.Name)
	assert.Equal(t, `avro: unknown codec "lz4"`, err.Error())

	reg.Register(upperCodec{})
	c, err = reg.Lookup("upper")
	require.NoError(t, err)
	assert.Equal(t, "upper", c.Name())

	// Registries are independent.
	_, err = DefaultCodecs().Lookup("upper")
	assert.Error(t, err)
}
