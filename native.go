package avro

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// FromNative converts an ordinary Go value into a Value shaped by s:
// records from map[string]any (absent fields take their defaults), arrays
// from any slice, maps from any map with string keys, numbers from any Go
// integer or float type. A union picks the first branch the value converts
// to. Values that already implement Value are validated and returned.
func FromNative(s *Schema, v any) (Value, error) {
	return fromNative(s, v, "")
}

func fromNative(s *Schema, v any, path string) (Value, error) {
	s = s.resolve()
	if val, ok := v.(Value); ok {
		if err := validate(s, val, path); err != nil {
			return nil, err
		}
		return val, nil
	}
	fail := func(format string, args ...any) (Value, error) {
		return nil, &SchemaMismatchError{Path: path, Schema: s.kind, Msg: fmt.Sprintf(format, args...)}
	}

	switch s.kind {
	case KindNull:
		if v != nil {
			return fail("expected nil, got %T", v)
		}
		return Null{}, nil
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return fail("expected bool, got %T", v)
		}
		return Bool(b), nil
	case KindInt, KindLong:
		n, ok := nativeInt(v)
		if !ok {
			return fail("expected an integer, got %T", v)
		}
		if s.kind == KindInt && (n < math.MinInt32 || n > math.MaxInt32) {
			return fail("%d does not fit in int", n)
		}
		return Long(n), nil
	case KindFloat, KindDouble:
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		default:
			n, ok := nativeInt(v)
			if !ok {
				return fail("expected a number, got %T", v)
			}
			f = float64(n)
		}
		if s.kind == KindFloat {
			f = float64(float32(f))
		}
		return Double(f), nil
	case KindBytes, KindFixed:
		var b []byte
		switch x := v.(type) {
		case []byte:
			b = x
		case string:
			b = []byte(x)
		default:
			return fail("expected []byte, got %T", v)
		}
		if s.kind == KindFixed && len(b) != s.size {
			return fail("fixed %s needs %d bytes, got %d", s.name.Full(), s.size, len(b))
		}
		return Bytes(b), nil
	case KindString, KindEnum:
		var str string
		switch x := v.(type) {
		case string:
			str = x
		case []byte:
			str = string(x)
		case fmt.Stringer:
			str = x.String()
		default:
			return fail("expected string, got %T", v)
		}
		if s.kind == KindEnum && s.SymbolIndex(str) < 0 {
			return fail("%q is not a symbol of %s", str, s.name.Full())
		}
		return String(str), nil
	case KindArray:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fail("expected a slice, got %T", v)
		}
		seq := make(Seq, rv.Len())
		for i := range seq {
			item, err := fromNative(s.items, rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			seq[i] = item
		}
		return seq, nil
	case KindMap:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return fail("expected a map with string keys, got %T", v)
		}
		out := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			item, err := fromNative(s.values, iter.Value().Interface(), joinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = item
		}
		return out, nil
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return fail("expected map[string]any, got %T", v)
		}
		seq := make(Seq, len(s.fields))
		for i, f := range s.fields {
			fv, present := m[f.name]
			switch {
			case present:
				item, err := fromNative(f.typ, fv, joinPath(path, f.name))
				if err != nil {
					return nil, err
				}
				seq[i] = item
			case f.hasDefault:
				seq[i] = f.def
			default:
				return fail("field %q is missing and has no default", f.name)
			}
		}
		for k := range m {
			if _, known := s.fieldIdx[k]; !known {
				return fail("record %s has no field %q", s.name.Full(), k)
			}
		}
		return seq, nil
	case KindUnion:
		var firstErr error
		for i, b := range s.branches {
			item, err := fromNative(b, v, path+"<"+strconv.Itoa(i)+">")
			if err == nil {
				return Tagged{Branch: i, Value: item}, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return fail("no union branch accepts %T: %v", v, firstErr)
	}
	return fail("unsupported schema kind %s", s.kind)
}

func nativeInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// ToNative converts v back into ordinary Go values using s for record field
// names: records become map[string]any, unions unwrap to their branch value,
// ints and longs become int64, floats and doubles float64.
func ToNative(s *Schema, v Value) (any, error) {
	s = s.resolve()
	switch s.kind {
	case KindRecord:
		seq, ok := v.(Seq)
		if !ok || len(seq) != len(s.fields) {
			return nil, mismatchErrf("", s, v, "expected record fields")
		}
		out := make(map[string]any, len(seq))
		for i, f := range s.fields {
			item, err := ToNative(f.typ, seq[i])
			if err != nil {
				return nil, err
			}
			out[f.name] = item
		}
		return out, nil
	case KindArray:
		seq, ok := v.(Seq)
		if !ok {
			return nil, mismatchErrf("", s, v, "expected seq")
		}
		out := make([]any, len(seq))
		for i, item := range seq {
			n, err := ToNative(s.items, item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case KindMap:
		m, ok := v.(Map)
		if !ok {
			return nil, mismatchErrf("", s, v, "expected map")
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			n, err := ToNative(s.values, item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case KindUnion:
		t, ok := v.(Tagged)
		if !ok || t.Branch < 0 || t.Branch >= len(s.branches) {
			return nil, mismatchErrf("", s, v, "expected tagged union value")
		}
		return ToNative(s.branches[t.Branch], t.Value)
	}

	switch x := v.(type) {
	case Null:
		return nil, nil
	case Bool:
		return bool(x), nil
	case Long:
		return int64(x), nil
	case Double:
		return float64(x), nil
	case Bytes:
		return []byte(x), nil
	case String:
		return string(x), nil
	}
	return nil, mismatchErrf("", s, v, "unexpected value")
}
