// Package avro implements schema-driven binary serialization and a
// self-describing, appendable container file.
//
// A Schema is parsed from JSON text with ParseSchema. Values are the closed
// sum type Value; Encode and Decode convert between values and the compact
// binary encoding, which carries no field tags, so data can only be read back
// with the schema it was written with, or through a ResolutionPlan from that
// schema to a compatible reader schema.
//
//	s := avro.MustParseSchema(`{"type":"record","name":"Person","fields":[
//		{"name":"name","type":"string"},
//		{"name":"employee_id","type":"string"}]}`)
//
//	w, _ := avro.OpenWriter(f, s, nil)
//	_ = w.Append(map[string]any{"name": "John Doe", "employee_id": "345"})
//	_ = w.Close()
//
//	r, _ := avro.OpenReader(f2, nil)
//	for v, err := range r.All() {
//		...
//	}
//
// Container files begin with a header holding the writer schema, the codec
// name and a random 16-byte sync marker. Datums follow in blocks, each ended
// by the sync marker, so a reader can resynchronize after a damaged block.
package avro
