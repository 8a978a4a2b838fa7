package avro

import (
	"strings"
)

// Kind identifies the shape of a schema node.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBytes
	KindString
	KindRecord
	KindEnum
	KindArray
	KindMap
	KindUnion
	KindFixed
)

var kindNames = [...]string{
	KindNull:    "null",
	KindBoolean: "boolean",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
	KindBytes:   "bytes",
	KindString:  "string",
	KindRecord:  "record",
	KindEnum:    "enum",
	KindArray:   "array",
	KindMap:     "map",
	KindUnion:   "union",
	KindFixed:   "fixed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// IsPrimitive reports whether k has no children and no name.
func (k Kind) IsPrimitive() bool { return k <= KindString }

// IsNamed reports whether schemas of kind k carry a full name.
func (k Kind) IsNamed() bool { return k == KindRecord || k == KindEnum || k == KindFixed }

var primitiveKinds = map[string]Kind{
	"null":    KindNull,
	"boolean": KindBoolean,
	"int":     KindInt,
	"long":    KindLong,
	"float":   KindFloat,
	"double":  KindDouble,
	"bytes":   KindBytes,
	"string":  KindString,
}

// Name is a namespace-qualified type name.
type Name struct {
	Namespace string
	Local     string
}

// Full returns "namespace.local", or just the local part in the null namespace.
func (n Name) Full() string {
	if n.Namespace == "" {
		return n.Local
	}
	return n.Namespace + "." + n.Local
}

func (n Name) String() string { return n.Full() }

// newName splits a possibly dotted name; an undotted name takes namespace ns.
func newName(name, ns string) Name {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return Name{Namespace: name[:i], Local: name[i+1:]}
	}
	return Name{Namespace: ns, Local: name}
}

// Field is one member of a record schema.
type Field struct {
	name       string
	typ        *Schema
	def        Value
	hasDefault bool
	aliases    []string
	doc        string
	order      string
	index      int
}

func (f *Field) Name() string      { return f.name }
func (f *Field) Type() *Schema     { return f.typ.resolve() }
func (f *Field) Aliases() []string { return f.aliases }
func (f *Field) Doc() string       { return f.doc }
func (f *Field) Order() string     { return f.order }
func (f *Field) Index() int        { return f.index }
func (f *Field) HasDefault() bool  { return f.hasDefault }
func (f *Field) Default() Value    { return f.def }

func (f *Field) matches(name string) bool {
	if f.name == name {
		return true
	}
	for _, a := range f.aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Schema is an immutable schema node. References to named types are leaves
// holding a handle into the Names registry of the parse session, so recursive
// types never form pointer cycles.
type Schema struct {
	kind    Kind
	name    Name
	aliases []Name
	doc     string
	logical string
	props   map[string]any

	fields   []*Field
	fieldIdx map[string]int

	symbols        []string
	symbolIdx      map[string]int
	enumDefault    string
	hasEnumDefault bool

	items    *Schema // array
	values   *Schema // map
	branches []*Schema
	size     int

	names *Names
	ref   int // 1-based handle into names.defs; zero for definitions
}

// resolve follows a named-type reference to its definition.
func (s *Schema) resolve() *Schema {
	if s.ref != 0 {
		return s.names.defs[s.ref-1]
	}
	return s
}

// IsReference reports whether s is a by-name use of a named type defined elsewhere.
func (s *Schema) IsReference() bool { return s.ref != 0 }

func (s *Schema) Kind() Kind { return s.resolve().kind }

// Name returns the full name of a named schema and the zero Name otherwise.
func (s *Schema) Name() Name { return s.resolve().name }

// TypeName is the full name for named kinds and the kind name for the rest.
func (s *Schema) TypeName() string {
	r := s.resolve()
	if r.kind.IsNamed() {
		return r.name.Full()
	}
	return r.kind.String()
}

func (s *Schema) Aliases() []Name     { return s.resolve().aliases }
func (s *Schema) Doc() string         { return s.resolve().doc }
func (s *Schema) LogicalType() string { return s.resolve().logical }

// Prop returns an attribute the parser did not interpret.
func (s *Schema) Prop(key string) (any, bool) {
	v, ok := s.resolve().props[key]
	return v, ok
}

func (s *Schema) Fields() []*Field { return s.resolve().fields }

// Field looks a record field up by name.
func (s *Schema) Field(name string) (*Field, bool) {
	r := s.resolve()
	i, ok := r.fieldIdx[name]
	if !ok {
		return nil, false
	}
	return r.fields[i], true
}

func (s *Schema) Symbols() []string { return s.resolve().symbols }

// SymbolIndex returns the position of sym in an enum, or -1.
func (s *Schema) SymbolIndex(sym string) int {
	if i, ok := s.resolve().symbolIdx[sym]; ok {
		return i
	}
	return -1
}

// EnumDefault is the symbol used for unknown writer symbols during resolution.
func (s *Schema) EnumDefault() (string, bool) {
	r := s.resolve()
	return r.enumDefault, r.hasEnumDefault
}

func (s *Schema) Items() *Schema {
	if r := s.resolve(); r.items != nil {
		return r.items.resolve()
	}
	return nil
}

func (s *Schema) Values() *Schema {
	if r := s.resolve(); r.values != nil {
		return r.values.resolve()
	}
	return nil
}

// Branches returns the union members in declaration order.
func (s *Schema) Branches() []*Schema {
	r := s.resolve()
	out := make([]*Schema, len(r.branches))
	for i, b := range r.branches {
		out[i] = b.resolve()
	}
	return out
}

func (s *Schema) Size() int { return s.resolve().size }

// String returns the canonical form.
func (s *Schema) String() string { return s.Canonical() }

// hasAlias reports whether a named schema answers to the full name n.
func (s *Schema) hasAlias(n string) bool {
	r := s.resolve()
	if r.name.Full() == n {
		return true
	}
	for _, a := range r.aliases {
		if a.Full() == n {
			return true
		}
	}
	return false
}

// Names is the registry of named types for one parse session.
type Names struct {
	defs  []*Schema
	index map[string]int
}

// NewNames creates an empty registry.
func NewNames() *Names {
	return &Names{index: make(map[string]int)}
}

// Lookup returns the definition registered under a full name.
func (n *Names) Lookup(full string) (*Schema, bool) {
	i, ok := n.index[full]
	if !ok {
		return nil, false
	}
	return n.defs[i], true
}

// Len returns the number of named types registered so far.
func (n *Names) Len() int { return len(n.defs) }

// register stores a named definition before its body is parsed so the body
// may refer to it.
func (n *Names) register(s *Schema) bool {
	full := s.name.Full()
	if _, dup := n.index[full]; dup {
		return false
	}
	n.index[full] = len(n.defs)
	n.defs = append(n.defs, s)
	s.names = n
	return true
}

func (n *Names) reference(full string) (*Schema, bool) {
	i, ok := n.index[full]
	if !ok {
		return nil, false
	}
	return &Schema{kind: n.defs[i].kind, names: n, ref: i + 1}, true
}

// NewPrimitive returns a schema for one of the primitive kinds.
func NewPrimitive(k Kind) *Schema {
	if !k.IsPrimitive() {
		panic("avro: NewPrimitive called with " + k.String())
	}
	return &Schema{kind: k}
}
