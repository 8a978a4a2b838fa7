package avro

import (
	"bytes"
	"io"
	"slices"
)

// Encode writes the binary encoding of v under s to sink. v is checked
// against s first, so a SchemaMismatchError leaves sink untouched.
func Encode(sink io.Writer, s *Schema, v Value) error {
	if err := Validate(s, v); err != nil {
		return err
	}
	w, err := NewWriter(sink)
	if err != nil {
		return err
	}
	writeValue(w, s, v)
	_, err = w.Result()
	return err
}

// Marshal returns the binary encoding of v under s.
func Marshal(s *Schema, v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// appendEncoded validates v and appends its encoding to buf. On failure buf is
// restored to its previous length.
func appendEncoded(buf *bytes.Buffer, s *Schema, v Value) error {
	if err := Validate(s, v); err != nil {
		return err
	}
	mark := buf.Len()
	w := &Writer{w: &bytesBufferWriterAdapter{buf}}
	writeValue(w, s, v)
	if err := w.Err(); err != nil {
		buf.Truncate(mark)
		return err
	}
	return nil
}

// writeValue encodes a value that has already passed validate.
func writeValue(w *Writer, s *Schema, v Value) {
	s = s.resolve()
	switch s.kind {
	case KindNull:
	case KindBoolean:
		w.WriteBool(bool(v.(Bool)))
	case KindInt, KindLong:
		w.WriteLong(int64(v.(Long)))
	case KindFloat:
		w.WriteFloat(float32(v.(Double)))
	case KindDouble:
		w.WriteDouble(float64(v.(Double)))
	case KindBytes:
		w.WriteBytes(v.(Bytes))
	case KindString:
		w.WriteStr(string(v.(String)))
	case KindFixed:
		w.WriteFixed(v.(Bytes))
	case KindEnum:
		w.WriteLong(int64(s.SymbolIndex(string(v.(String)))))
	case KindArray:
		seq := v.(Seq)
		if len(seq) > 0 {
			w.WriteLong(int64(len(seq)))
			for _, item := range seq {
				writeValue(w, s.items, item)
			}
		}
		w.WriteLong(0)
	case KindMap:
		m := v.(Map)
		if len(m) > 0 {
			w.WriteLong(int64(len(m)))
			// Sorted keys make the encoding of a map deterministic.
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				w.WriteStr(k)
				writeValue(w, s.values, m[k])
			}
		}
		w.WriteLong(0)
	case KindRecord:
		seq := v.(Seq)
		for i, f := range s.fields {
			writeValue(w, f.typ, seq[i])
		}
	case KindUnion:
		t := v.(Tagged)
		w.WriteLong(int64(t.Branch))
		writeValue(w, s.branches[t.Branch], t.Value)
	}
}
