package avro

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueLong
	ValueDouble
	ValueBytes
	ValueString
	ValueSeq
	ValueMap
	ValueTagged
)

var valueKindNames = [...]string{"null", "bool", "long", "double", "bytes", "string", "seq", "map", "tagged"}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "invalid"
}

// Value is a decoded or to-be-encoded datum. It is a closed sum type: the only
// implementations are the types below.
//
//	null            Null
//	boolean         Bool
//	int, long       Long
//	float, double   Double
//	bytes, fixed    Bytes
//	string, enum    String (an enum holds its symbol)
//	array, record   Seq (a record holds its fields in declared order)
//	map             Map
//	union           Tagged
type Value interface {
	Kind() ValueKind
	isValue()
}

type (
	Null   struct{}
	Bool   bool
	Long   int64
	Double float64
	Bytes  []byte
	String string
	Seq    []Value
	Map    map[string]Value

	// Tagged is a union value: the zero-based branch index and the branch value.
	Tagged struct {
		Branch int
		Value  Value
	}
)

func (Null) Kind() ValueKind   { return ValueNull }
func (Bool) Kind() ValueKind   { return ValueBool }
func (Long) Kind() ValueKind   { return ValueLong }
func (Double) Kind() ValueKind { return ValueDouble }
func (Bytes) Kind() ValueKind  { return ValueBytes }
func (String) Kind() ValueKind { return ValueString }
func (Seq) Kind() ValueKind    { return ValueSeq }
func (Map) Kind() ValueKind    { return ValueMap }
func (Tagged) Kind() ValueKind { return ValueTagged }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Long) isValue()   {}
func (Double) isValue() {}
func (Bytes) isValue()  {}
func (String) isValue() {}
func (Seq) isValue()    {}
func (Map) isValue()    {}
func (Tagged) isValue() {}

// Record builds the Seq for a record value from its fields in declared order.
func Record(fields ...Value) Seq { return Seq(fields) }

// Union builds a Tagged value.
func Union(branch int, v Value) Tagged { return Tagged{Branch: branch, Value: v} }

// Validate checks that v has the shape s requires without encoding anything.
func Validate(s *Schema, v Value) error {
	return validate(s, v, "")
}

func validate(s *Schema, v Value, path string) error {
	s = s.resolve()
	if v == nil {
		return mismatchErrf(path, s, nil, "missing value")
	}
	switch s.kind {
	case KindNull:
		if _, ok := v.(Null); !ok {
			return mismatchErrf(path, s, v, "expected null")
		}
	case KindBoolean:
		if _, ok := v.(Bool); !ok {
			return mismatchErrf(path, s, v, "expected bool")
		}
	case KindInt:
		n, ok := v.(Long)
		if !ok {
			return mismatchErrf(path, s, v, "expected long")
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return mismatchErrf(path, s, v, "%d does not fit in int", n)
		}
	case KindLong:
		if _, ok := v.(Long); !ok {
			return mismatchErrf(path, s, v, "expected long")
		}
	case KindFloat:
		f, ok := v.(Double)
		if !ok {
			return mismatchErrf(path, s, v, "expected double")
		}
		if x := float64(f); float64(float32(x)) != x && !math.IsNaN(x) {
			return mismatchErrf(path, s, v, "%v is not representable as float", x)
		}
	case KindDouble:
		if _, ok := v.(Double); !ok {
			return mismatchErrf(path, s, v, "expected double")
		}
	case KindBytes:
		if _, ok := v.(Bytes); !ok {
			return mismatchErrf(path, s, v, "expected bytes")
		}
	case KindString:
		str, ok := v.(String)
		if !ok {
			return mismatchErrf(path, s, v, "expected string")
		}
		if !utf8.ValidString(string(str)) {
			return mismatchErrf(path, s, v, "string is not valid UTF-8")
		}
	case KindFixed:
		b, ok := v.(Bytes)
		if !ok {
			return mismatchErrf(path, s, v, "expected bytes")
		}
		if len(b) != s.size {
			return mismatchErrf(path, s, v, "fixed %s needs %d bytes, got %d", s.name.Full(), s.size, len(b))
		}
	case KindEnum:
		sym, ok := v.(String)
		if !ok {
			return mismatchErrf(path, s, v, "expected enum symbol")
		}
		if s.SymbolIndex(string(sym)) < 0 {
			return mismatchErrf(path, s, v, "%q is not a symbol of %s", sym, s.name.Full())
		}
	case KindArray:
		seq, ok := v.(Seq)
		if !ok {
			return mismatchErrf(path, s, v, "expected seq")
		}
		for i, item := range seq {
			if err := validate(s.items, item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	case KindMap:
		m, ok := v.(Map)
		if !ok {
			return mismatchErrf(path, s, v, "expected map")
		}
		for k, item := range m {
			if err := validate(s.values, item, joinPath(path, k)); err != nil {
				return err
			}
		}
	case KindRecord:
		seq, ok := v.(Seq)
		if !ok {
			return mismatchErrf(path, s, v, "expected record fields")
		}
		if len(seq) != len(s.fields) {
			return mismatchErrf(path, s, v, "record %s has %d fields, got %d", s.name.Full(), len(s.fields), len(seq))
		}
		for i, f := range s.fields {
			if err := validate(f.typ, seq[i], joinPath(path, f.name)); err != nil {
				return err
			}
		}
	case KindUnion:
		t, ok := v.(Tagged)
		if !ok {
			return mismatchErrf(path, s, v, "expected tagged union value")
		}
		if t.Branch < 0 || t.Branch >= len(s.branches) {
			return mismatchErrf(path, s, v, "branch %d out of range [0,%d)", t.Branch, len(s.branches))
		}
		return validate(s.branches[t.Branch], t.Value, path+"<"+strconv.Itoa(t.Branch)+">")
	default:
		return fmt.Errorf("avro: unknown schema kind %d", s.kind)
	}
	return nil
}
