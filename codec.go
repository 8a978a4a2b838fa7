package avro

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Codec compresses block payloads of a container file. A codec is looked up
// by the name stored in the file header, so the same name must always denote
// the same format.
type Codec interface {
	// Name is the value written under the "codec" metadata key.
	Name() string
	// Compress returns the compressed form of src. It must not retain src.
	Compress(src []byte) ([]byte, error)
	// Decompress reverses Compress. It must not retain src.
	Decompress(src []byte) ([]byte, error)
}

// Built-in codec names.
const (
	CodecNull      = "null"
	CodecDeflate   = "deflate"
	CodecSnappy    = "snappy"
	CodecZstandard = "zstandard"
)

// CodecRegistry maps codec names to implementations. It is safe for
// concurrent use.
type CodecRegistry struct {
	codecs *xsync.Map[string, Codec]
}

// NewCodecRegistry returns a registry holding the built-in codecs.
func NewCodecRegistry() *CodecRegistry {
	reg := &CodecRegistry{codecs: xsync.NewMap[string, Codec]()}
	for _, c := range []Codec{nullCodec{}, newDeflateCodec(), snappyCodec{}, newZstdCodec()} {
		reg.Register(c)
	}
	return reg
}

// Register adds c under c.Name(), replacing any codec of the same name.
func (reg *CodecRegistry) Register(c Codec) {
	reg.codecs.Store(c.Name(), c)
}

// Lookup returns the codec registered under name. The empty name means "null".
func (reg *CodecRegistry) Lookup(name string) (Codec, error) {
	if name == "" {
		name = CodecNull
	}
	c, ok := reg.codecs.Load(name)
	if !ok {
		return nil, &UnknownCodecError{Name: name}
	}
	return c, nil
}

// Names returns the registered codec names in no particular order.
func (reg *CodecRegistry) Names() []string {
	names := make([]string, 0, reg.codecs.Size())
	reg.codecs.Range(func(name string, _ Codec) bool {
		names = append(names, name)
		return true
	})
	return names
}

var defaultCodecs = NewCodecRegistry()

// DefaultCodecs returns the registry used when options name none.
func DefaultCodecs() *CodecRegistry { return defaultCodecs }
