package avro

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Canonical returns the canonical form of s: full names, only the attributes
// that affect the encoding (name, type, fields, symbols, items, values, size)
// in that order, no whitespace, and each named type spelled out at its first
// occurrence only. Documentation, aliases, defaults and logical types are
// dropped, so two schemas are equal iff their canonical forms are.
//
// A type in the null namespace nested inside a namespaced one keeps an empty
// "namespace" attribute where it is defined and is referenced as ".Name", so
// the text parses back to the same full names.
func (s *Schema) Canonical() string {
	c := canonicalWriter{seen: make(map[string]bool)}
	c.write(s)
	return c.buf.String()
}

// Fingerprint is the xxhash64 of the canonical form.
func (s *Schema) Fingerprint() uint64 {
	return xxhash.Sum64String(s.Canonical())
}

// Rabin is the CRC-64-AVRO fingerprint of the canonical form, the 64-bit
// fingerprint other implementations of this format family publish.
func (s *Schema) Rabin() uint64 {
	fp := rabinEmpty
	for _, b := range []byte(s.Canonical()) {
		fp = (fp >> 8) ^ rabinTable[byte(fp)^b]
	}
	return fp
}

// SchemaEqual reports whether a and b have identical canonical forms.
func SchemaEqual(a, b *Schema) bool {
	return a.Canonical() == b.Canonical()
}

// resolutionForm extends the canonical form with everything that changes how
// data is read into s: aliases, field defaults and enum defaults.
func (s *Schema) resolutionForm() string {
	c := canonicalWriter{seen: make(map[string]bool), extended: true}
	c.write(s)
	return c.buf.String()
}

const rabinEmpty uint64 = 0xc15d213aa4d7a795

var rabinTable = func() (t [256]uint64) {
	for i := range t {
		fp := uint64(i)
		for range 8 {
			fp = (fp >> 1) ^ (rabinEmpty & -(fp & 1))
		}
		t[i] = fp
	}
	return t
}()

type canonicalWriter struct {
	buf      strings.Builder
	seen     map[string]bool
	extended bool
	ns       string // namespace a reparse would inherit at this point
}

func (c *canonicalWriter) quote(s string) {
	b, _ := json.Marshal(s)
	c.buf.Write(b)
}

func (c *canonicalWriter) write(s *Schema) {
	s = s.resolve()
	switch s.kind {
	case KindRecord, KindEnum, KindFixed:
		full := s.name.Full()
		escape := s.name.Namespace == "" && c.ns != ""
		if c.seen[full] {
			if escape {
				full = "." + full
			}
			c.quote(full)
			return
		}
		c.seen[full] = true
		c.buf.WriteString(`{"name":`)
		c.quote(full)
		if escape {
			c.buf.WriteString(`,"namespace":""`)
		}
		outer := c.ns
		c.ns = s.name.Namespace
		defer func() { c.ns = outer }()
		c.buf.WriteString(`,"type":`)
		c.quote(s.kind.String())
		if c.extended && len(s.aliases) > 0 {
			c.buf.WriteString(`,"aliases":[`)
			for i, a := range s.aliases {
				if i > 0 {
					c.buf.WriteByte(',')
				}
				c.quote(a.Full())
			}
			c.buf.WriteByte(']')
		}
		switch s.kind {
		case KindRecord:
			c.buf.WriteString(`,"fields":[`)
			for i, f := range s.fields {
				if i > 0 {
					c.buf.WriteByte(',')
				}
				c.field(f)
			}
			c.buf.WriteByte(']')
		case KindEnum:
			c.buf.WriteString(`,"symbols":[`)
			for i, sym := range s.symbols {
				if i > 0 {
					c.buf.WriteByte(',')
				}
				c.quote(sym)
			}
			c.buf.WriteByte(']')
			if c.extended && s.hasEnumDefault {
				c.buf.WriteString(`,"default":`)
				c.quote(s.enumDefault)
			}
		case KindFixed:
			c.buf.WriteString(`,"size":`)
			c.buf.WriteString(strconv.Itoa(s.size))
		}
		c.buf.WriteByte('}')
	case KindArray:
		c.buf.WriteString(`{"type":"array","items":`)
		c.write(s.items)
		c.buf.WriteByte('}')
	case KindMap:
		c.buf.WriteString(`{"type":"map","values":`)
		c.write(s.values)
		c.buf.WriteByte('}')
	case KindUnion:
		c.buf.WriteByte('[')
		for i, b := range s.branches {
			if i > 0 {
				c.buf.WriteByte(',')
			}
			c.write(b)
		}
		c.buf.WriteByte(']')
	default:
		c.quote(s.kind.String())
	}
}

func (c *canonicalWriter) field(f *Field) {
	c.buf.WriteString(`{"name":`)
	c.quote(f.name)
	c.buf.WriteString(`,"type":`)
	c.write(f.typ)
	if c.extended {
		if len(f.aliases) > 0 {
			c.buf.WriteString(`,"aliases":[`)
			for i, a := range f.aliases {
				if i > 0 {
					c.buf.WriteByte(',')
				}
				c.quote(a)
			}
			c.buf.WriteByte(']')
		}
		if f.hasDefault {
			c.buf.WriteString(`,"default":`)
			c.value(f.def)
		}
	}
	c.buf.WriteByte('}')
}

// value writes a deterministic JSON rendering of v.
func (c *canonicalWriter) value(v Value) {
	switch v := v.(type) {
	case Null:
		c.buf.WriteString("null")
	case Bool:
		c.buf.WriteString(strconv.FormatBool(bool(v)))
	case Long:
		c.buf.WriteString(strconv.FormatInt(int64(v), 10))
	case Double:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			c.quote(strconv.FormatFloat(f, 'g', -1, 64))
			return
		}
		c.buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case Bytes:
		runes := make([]rune, len(v))
		for i, b := range v {
			runes[i] = rune(b)
		}
		c.quote(string(runes))
	case String:
		c.quote(string(v))
	case Seq:
		c.buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				c.buf.WriteByte(',')
			}
			c.value(item)
		}
		c.buf.WriteByte(']')
	case Map:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		c.buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				c.buf.WriteByte(',')
			}
			c.quote(k)
			c.buf.WriteByte(':')
			c.value(v[k])
		}
		c.buf.WriteByte('}')
	case Tagged:
		c.buf.WriteString(`{"branch":`)
		c.buf.WriteString(strconv.Itoa(v.Branch))
		c.buf.WriteString(`,"value":`)
		c.value(v.Value)
		c.buf.WriteByte('}')
	}
}
