package avro

import (
	"encoding"
	"io"
)

// Datum pairs a value with its schema so it can be used wherever the standard
// binary and stream interfaces are expected.
type Datum struct {
	Schema *Schema
	Value  Value
}

var (
	_ encoding.BinaryMarshaler   = Datum{}
	_ encoding.BinaryUnmarshaler = (*Datum)(nil)
	_ io.WriterTo                = Datum{}
	_ io.ReaderFrom              = (*Datum)(nil)
)

// MarshalBinary implements the standard `encoding.BinaryMarshaler` interface.
func (d Datum) MarshalBinary() ([]byte, error) {
	return Marshal(d.Schema, d.Value)
}

// UnmarshalBinary decodes exactly one datum under d.Schema. Bytes left over
// after it are an error wrapping ErrTrailingData.
func (d *Datum) UnmarshalBinary(data []byte) error {
	v, err := Unmarshal(d.Schema, data)
	if err != nil {
		return err
	}
	d.Value = v
	return nil
}

// WriteTo writes the encoding with a single Write call.
func (d Datum) WriteTo(w io.Writer) (int64, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := appendEncoded(buf, d.Schema, d.Value); err != nil {
		return 0, err
	}
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), err
	}
	if n < buf.Len() {
		return int64(n), io.ErrShortWrite
	}
	return int64(n), nil
}

// ReadFrom decodes one datum from r. Unlike UnmarshalBinary it stops at the
// end of the datum, so several datums may be read from one stream in turn.
func (d *Datum) ReadFrom(r io.Reader) (int64, error) {
	rd, err := newDatumReader(r)
	if err != nil {
		return 0, err
	}
	v := readValue(rd, d.Schema)
	if err := datumErr(rd, 0); err != nil {
		return rd.Count(), err
	}
	d.Value = v
	return rd.Count(), nil
}
