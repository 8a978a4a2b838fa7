package avro

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SchemaTestSuite struct {
	suite.Suite
}

func TestSchemaTestSuite(t *testing.T) {
	suite.Run(t, new(SchemaTestSuite))
}

func (s *SchemaTestSuite) TestPrimitives() {
	cases := map[string]Kind{
		`"null"`:                  KindNull,
		`"boolean"`:               KindBoolean,
		`"int"`:                   KindInt,
		`"long"`:                  KindLong,
		`"float"`:                 KindFloat,
		`"double"`:                KindDouble,
		`"bytes"`:                 KindBytes,
		`"string"`:                KindString,
		`{"type":"long"}`:         KindLong,
		`{"type":{"type":"int"}}`: KindInt,
	}
	for text, kind := range cases {
		sc, err := ParseSchema(text)
		s.Require().NoError(err, text)
		s.Equal(kind, sc.Kind(), text)
		s.True(sc.Kind().IsPrimitive())
		s.Equal(`"`+kind.String()+`"`, sc.Canonical(), text)
	}
}

func (s *SchemaTestSuite) TestRecord() {
	sc, err := ParseSchema(personSchema)
	s.Require().NoError(err)

	s.Equal(KindRecord, sc.Kind())
	s.Equal("org.example.Person", sc.TypeName())
	s.Equal(Name{Local: "Person", Namespace: "org.example"}, sc.Name())
	s.Require().Len(sc.Fields(), 2)
	s.Equal("employee_id", sc.Fields()[1].Name())
	s.Equal(1, sc.Fields()[1].Index())
	s.Equal("ascending", sc.Fields()[1].Order())

	f, ok := sc.Field("name")
	s.Require().True(ok)
	s.Equal(KindString, f.Type().Kind())
	_, ok = sc.Field("missing")
	s.False(ok)

	s.Equal(`{"name":"org.example.Person","type":"record","fields":[{"name":"name","type":"string"},{"name":"employee_id","type":"string"}]}`, sc.Canonical())
}

func (s *SchemaTestSuite) TestComplexKinds() {
	sc, err := ParseSchema(`{"type":"record","name":"R","fields":[
		{"name":"e","type":{"type":"enum","name":"Color","symbols":["RED","GREEN"],"default":"RED"}},
		{"name":"a","type":{"type":"array","items":"int"}},
		{"name":"m","type":{"type":"map","values":"Color"}},
		{"name":"f","type":{"type":"fixed","name":"MD5","size":16}},
		{"name":"u","type":["null","string"]}]}`)
	s.Require().NoError(err)

	fields := sc.Fields()
	s.Equal([]string{"RED", "GREEN"}, fields[0].Type().Symbols())
	s.Equal(1, fields[0].Type().SymbolIndex("GREEN"))
	s.Equal(-1, fields[0].Type().SymbolIndex("BLUE"))
	def, ok := fields[0].Type().EnumDefault()
	s.True(ok)
	s.Equal("RED", def)

	s.Equal(KindInt, fields[1].Type().Items().Kind())
	s.Equal("Color", fields[2].Type().Values().TypeName())
	s.Equal(KindEnum, fields[2].Type().Values().Kind())
	s.Equal(16, fields[3].Type().Size())

	branches := fields[4].Type().Branches()
	s.Require().Len(branches, 2)
	s.Equal(KindNull, branches[0].Kind())
	s.Equal(KindString, branches[1].Kind())
}

func (s *SchemaTestSuite) TestNamespaces() {
	sc, err := ParseSchema(`{"type":"record","name":"Outer","namespace":"a.b","fields":[
		{"name":"inner","type":{"type":"record","name":"Inner","fields":[]}},
		{"name":"again","type":"Inner"},
		{"name":"full","type":"a.b.Inner"},
		{"name":"other","type":{"type":"fixed","name":"c.Hash","size":4}},
		{"name":"moved","type":{"type":"enum","name":"Flag","namespace":"x","symbols":["ON"]}}]}`)
	s.Require().NoError(err)

	fields := sc.Fields()
	s.Equal("a.b.Inner", fields[0].Type().TypeName())
	s.Equal("a.b.Inner", fields[1].Type().TypeName())
	s.Equal("a.b.Inner", fields[2].Type().TypeName())
	s.Equal("c.Hash", fields[3].Type().TypeName())
	s.Equal("x.Flag", fields[4].Type().TypeName())

	// Later uses are written by name only.
	s.Contains(sc.Canonical(), `{"name":"again","type":"a.b.Inner"}`)
}

func (s *SchemaTestSuite) TestRecursive() {
	sc, err := ParseSchema(`{"type":"record","name":"LinkedList","fields":[
		{"name":"value","type":"long"},
		{"name":"next","type":["null","LinkedList"]}]}`)
	s.Require().NoError(err)

	next := sc.Fields()[1].Type().Branches()[1]
	s.Equal(KindRecord, next.Kind())
	s.Equal("LinkedList", next.TypeName())
	s.Len(next.Fields(), 2)
	s.Equal(`{"name":"LinkedList","type":"record","fields":[{"name":"value","type":"long"},{"name":"next","type":["null","LinkedList"]}]}`, sc.Canonical())
}

func (s *SchemaTestSuite) TestCanonicalIsIdempotent() {
	texts := []string{
		personSchema,
		`{"type":"record","name":"N","doc":"ignored","aliases":["Old"],"fields":[
			{"name":"x","type":"int","default":3,"doc":"d"},
			{"name":"y","type":{"type":"array","items":{"type":"map","values":"bytes"}}}]}`,
		`["null",{"type":"enum","name":"E","symbols":["A","B"]},{"type":"fixed","name":"F2","size":2},{"type":"array","items":"F2"}]`,
	}
	for _, text := range texts {
		first, err := ParseSchema(text)
		s.Require().NoError(err, text)
		again, err := ParseSchema(first.Canonical())
		s.Require().NoError(err, text)
		s.Equal(first.Canonical(), again.Canonical())
		s.True(SchemaEqual(first, again))
		s.Equal(first.Fingerprint(), again.Fingerprint())
	}
}

// nullNamespaceSchema nests a null-namespace record inside a namespaced one.
const nullNamespaceSchema = `{"type":"record","name":"ns.A","fields":[
	{"name":"b","type":{"type":"record","name":"B","namespace":"","fields":[{"name":"x","type":"int"}]}},
	{"name":"c","type":"B"},
	{"name":"d","type":{"type":"record","name":"Inner","fields":[{"name":"e","type":"B"}]}}]}`

func (s *SchemaTestSuite) TestCanonicalNullNamespace() {
	first, err := ParseSchema(nullNamespaceSchema)
	s.Require().NoError(err)
	s.Equal(`{"name":"ns.A","type":"record","fields":[`+
		`{"name":"b","type":{"name":"B","namespace":"","type":"record","fields":[{"name":"x","type":"int"}]}},`+
		`{"name":"c","type":".B"},`+
		`{"name":"d","type":{"name":"ns.Inner","type":"record","fields":[{"name":"e","type":".B"}]}}]}`,
		first.Canonical())

	again, err := ParseSchema(first.Canonical())
	s.Require().NoError(err)
	s.Equal(first.Canonical(), again.Canonical())
	fields := again.Fields()
	s.Equal("B", fields[0].Type().TypeName())
	s.Equal("B", fields[1].Type().TypeName())
	s.Equal("ns.Inner", fields[2].Type().TypeName())
	s.Equal("B", fields[2].Type().Fields()[0].Type().TypeName())

	// B and ns.B side by side: a bare reference inside ns picks ns.B.
	both, err := ParseSchema(`{"type":"record","name":"ns.A","fields":[
		{"name":"b","type":{"type":"record","name":"B","namespace":"","fields":[]}},
		{"name":"nb","type":{"type":"record","name":"B","fields":[]}},
		{"name":"c","type":"B"},
		{"name":"d","type":".B"}]}`)
	s.Require().NoError(err)
	s.Equal("ns.B", both.Fields()[2].Type().TypeName())
	s.Equal("B", both.Fields()[3].Type().TypeName())
	again, err = ParseSchema(both.Canonical())
	s.Require().NoError(err)
	s.Equal(both.Canonical(), again.Canonical())
	s.Equal("ns.B", again.Fields()[2].Type().TypeName())
	s.Equal("B", again.Fields()[3].Type().TypeName())

	_, err = ParseSchema(`{"type":"record","name":"ns.A","fields":[{"name":"m","type":".Missing"}]}`)
	var perr *SchemaParseError
	s.ErrorAs(err, &perr)
}

func (s *SchemaTestSuite) TestCanonicalDropsDocumentation() {
	a := mustParse(s.T(), `{"type":"enum","name":"E","doc":"one","aliases":["X"],"symbols":["A"]}`)
	b := mustParse(s.T(), `{"type":"enum","name":"E","symbols":["A"],"doc":"two"}`)
	s.True(SchemaEqual(a, b))
	s.Equal(a.Fingerprint(), b.Fingerprint())
	s.Equal("one", a.Doc())
	s.Equal([]Name{{Local: "X"}}, a.Aliases())

	c := mustParse(s.T(), `{"type":"enum","name":"E","symbols":["A","B"]}`)
	s.False(SchemaEqual(a, c))
	s.NotEqual(a.Fingerprint(), c.Fingerprint())
}

func (s *SchemaTestSuite) TestRabin() {
	s.Equal(uint64(0x63dd24e7cc258f8a), mustParse(s.T(), `"null"`).Rabin())
	s.Equal(uint64(0x7275d51a3f395c8f), mustParse(s.T(), `"int"`).Rabin())
	s.Equal(uint64(0x8f014872634503c7), mustParse(s.T(), `{"type":"string"}`).Rabin())
}

func (s *SchemaTestSuite) TestPropsAndLogicalType() {
	sc := mustParse(s.T(), `{"type":"long","logicalType":"timestamp-millis","owner":"ops"}`)
	s.Equal("timestamp-millis", sc.LogicalType())
	v, ok := sc.Prop("owner")
	s.True(ok)
	s.Equal("ops", v)
	s.Equal(`"long"`, sc.Canonical())

	// Shared primitive instances stay unannotated.
	s.Empty(mustParse(s.T(), `"long"`).LogicalType())
}

func (s *SchemaTestSuite) TestDefaults() {
	sc := mustParse(s.T(), `{"type":"record","name":"D","fields":[
		{"name":"i","type":"int","default":7},
		{"name":"d","type":"double","default":1.5},
		{"name":"b","type":"bytes","default":"ÿ\u0001"},
		{"name":"u","type":["null","string"],"default":null},
		{"name":"a","type":{"type":"array","items":"long"},"default":[1,2]},
		{"name":"n","type":"string"}]}`)

	fields := sc.Fields()
	s.Equal(Long(7), fields[0].Default())
	s.Equal(Double(1.5), fields[1].Default())
	s.Equal(Bytes{0xff, 0x01}, fields[2].Default())
	s.Equal(Tagged{Branch: 0, Value: Null{}}, fields[3].Default())
	s.Equal(Seq{Long(1), Long(2)}, fields[4].Default())
	s.True(fields[4].HasDefault())
	s.False(fields[5].HasDefault())
	s.Nil(fields[5].Default())
}

func (s *SchemaTestSuite) TestNamesSession() {
	names := NewNames()
	_, err := ParseSchemaWith(names, `{"type":"fixed","name":"com.acme.Id","size":8}`)
	s.Require().NoError(err)
	s.Equal(1, names.Len())

	rec, err := ParseSchemaWith(names, `{"type":"record","name":"com.acme.User","fields":[{"name":"id","type":"Id"}]}`)
	s.Require().NoError(err)
	s.Equal(8, rec.Fields()[0].Type().Size())

	// A failed parse registers nothing.
	_, err = ParseSchemaWith(names, `{"type":"record","name":"Broken","fields":[
		{"name":"ok","type":{"type":"enum","name":"Good","symbols":["A"]}},
		{"name":"bad","type":"Nope"}]}`)
	s.Require().Error(err)
	s.Equal(2, names.Len())
	_, ok := names.Lookup("Good")
	s.False(ok)
	def, ok := names.Lookup("com.acme.User")
	s.True(ok)
	s.Equal(KindRecord, def.Kind())
}

func (s *SchemaTestSuite) TestParseErrors() {
	cases := map[string]string{
		"invalid json":        `{"type":`,
		"trailing":            `"int" "long"`,
		"null schema":         `null`,
		"unknown type":        `"Nope"`,
		"missing type":        `{"name":"X"}`,
		"empty union":         `[]`,
		"nested union":        `["null",["int"]]`,
		"ambiguous union":     `["string","string"]`,
		"ambiguous arrays":    `[{"type":"array","items":"int"},{"type":"array","items":"long"}]`,
		"missing name":        `{"type":"record","fields":[]}`,
		"bad name":            `{"type":"record","name":"1x","fields":[]}`,
		"bad namespace":       `{"type":"record","name":"X","namespace":"a..b","fields":[]}`,
		"primitive name":      `{"type":"fixed","name":"int","size":1}`,
		"redefined":           `["null",{"type":"fixed","name":"F","size":1},{"type":"enum","name":"F","symbols":["A"]}]`,
		"fields not array":    `{"type":"record","name":"X","fields":{}}`,
		"duplicate field":     `{"type":"record","name":"X","fields":[{"name":"a","type":"int"},{"name":"a","type":"long"}]}`,
		"field without type":  `{"type":"record","name":"X","fields":[{"name":"a"}]}`,
		"bad order":           `{"type":"record","name":"X","fields":[{"name":"a","type":"int","order":"up"}]}`,
		"bad default":         `{"type":"record","name":"X","fields":[{"name":"a","type":"int","default":"x"}]}`,
		"int default range":   `{"type":"record","name":"X","fields":[{"name":"a","type":"int","default":3000000000}]}`,
		"fixed default size":  `{"type":"record","name":"X","fields":[{"name":"a","type":{"type":"fixed","name":"F","size":2},"default":"a"}]}`,
		"duplicate symbol":    `{"type":"enum","name":"E","symbols":["A","A"]}`,
		"bad symbol":          `{"type":"enum","name":"E","symbols":["a-b"]}`,
		"enum default":        `{"type":"enum","name":"E","symbols":["A"],"default":"B"}`,
		"fixed without size":  `{"type":"fixed","name":"F"}`,
		"negative fixed size": `{"type":"fixed","name":"F","size":-1}`,
		"array without items": `{"type":"array"}`,
		"map without values":  `{"type":"map"}`,
	}
	for name, text := range cases {
		_, err := ParseSchema(text)
		var perr *SchemaParseError
		if s.Error(err, name) {
			s.True(errors.As(err, &perr), "%s: %v", name, err)
		}
	}
}

func (s *SchemaTestSuite) TestParseErrorPath() {
	_, err := ParseSchema(`{"type":"record","name":"P","namespace":"ns","fields":[{"name":"age","type":"Years"}]}`)
	var perr *SchemaParseError
	s.Require().ErrorAs(err, &perr)
	s.Equal("ns.P.age", perr.Path)
	s.Contains(err.Error(), "Years")
}

func TestMustParseSchemaPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseSchema(`"nope"`) })
	assert.NotPanics(t, func() { MustParseSchema(`"int"`) })
}

func TestNewPrimitive(t *testing.T) {
	s := NewPrimitive(KindDouble)
	require.Equal(t, KindDouble, s.Kind())
	assert.Equal(t, `"double"`, s.String())
	assert.Panics(t, func() { NewPrimitive(KindRecord) })
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "fixed", KindFixed.String())
	assert.Equal(t, "invalid", Kind(200).String())
	assert.True(t, KindEnum.IsNamed())
	assert.False(t, KindArray.IsNamed())
	assert.Equal(t, "tagged", ValueTagged.String())
}
