package avro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ParseSchema parses a JSON schema definition in a fresh naming session.
func ParseSchema(text string) (*Schema, error) {
	return ParseSchemaWith(NewNames(), text)
}

// MustParseSchema is like ParseSchema but panics on error. It is intended for
// schemas embedded in source code.
func MustParseSchema(text string) *Schema {
	s, err := ParseSchema(text)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSchemaWith parses text in the session held by names. Named types defined
// by earlier calls can be referenced by name; types defined by text are added to
// names only if the whole text parses.
func ParseSchemaWith(names *Names, text string) (*Schema, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var j any
	if err := dec.Decode(&j); err != nil {
		return nil, parseErrf("", err, "invalid JSON")
	}
	if dec.More() {
		return nil, parseErrf("", nil, "trailing data after schema")
	}

	mark := len(names.defs)
	p := &parser{names: names}
	s, err := p.parse(j, "", "")
	if err != nil {
		names.rollback(mark)
		return nil, err
	}
	return s, nil
}

// rollback forgets the definitions registered after mark.
func (n *Names) rollback(mark int) {
	for _, s := range n.defs[mark:] {
		delete(n.index, s.name.Full())
	}
	clear(n.defs[mark:])
	n.defs = n.defs[:mark]
}

type parser struct {
	names *Names
}

var (
	namedAttrs = []string{"type", "name", "namespace", "doc", "aliases"}
	fieldAttrs = map[string]bool{"name": true, "type": true, "default": true, "doc": true, "aliases": true, "order": true}
	kindAttrs  = map[Kind][]string{
		KindRecord: {"fields"},
		KindEnum:   {"symbols", "default"},
		KindArray:  {"items"},
		KindMap:    {"values"},
		KindFixed:  {"size"},
	}
)

func joinPath(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

func (p *parser) parse(j any, ns, path string) (*Schema, error) {
	switch v := j.(type) {
	case string:
		return p.parseTypeName(v, ns, path)
	case []any:
		return p.parseUnion(v, ns, path)
	case map[string]any:
		return p.parseObject(v, ns, path)
	case nil:
		return nil, parseErrf(path, nil, "schema is null; use \"null\" for the null type")
	default:
		return nil, parseErrf(path, nil, "unexpected %T in schema", j)
	}
}

func (p *parser) parseTypeName(name, ns, path string) (*Schema, error) {
	if k, ok := primitiveKinds[name]; ok {
		return NewPrimitive(k), nil
	}
	// ".Name" refers to Name in the null namespace.
	if local, ok := strings.CutPrefix(name, "."); ok {
		if s, ok := p.names.reference(local); ok && !strings.Contains(local, ".") {
			return s, nil
		}
		return nil, parseErrf(path, nil, "unknown type %q", name)
	}
	if !strings.Contains(name, ".") && ns != "" {
		if s, ok := p.names.reference(ns + "." + name); ok {
			return s, nil
		}
	}
	if s, ok := p.names.reference(name); ok {
		return s, nil
	}
	return nil, parseErrf(path, nil, "unknown type %q", name)
}

func (p *parser) parseUnion(branches []any, ns, path string) (*Schema, error) {
	if len(branches) == 0 {
		return nil, parseErrf(path, nil, "union has no branches")
	}
	s := &Schema{kind: KindUnion, branches: make([]*Schema, 0, len(branches))}
	seen := make(map[string]int, len(branches))
	for i, bj := range branches {
		bpath := fmt.Sprintf("%s[%d]", path, i)
		if _, nested := bj.([]any); nested {
			return nil, parseErrf(bpath, nil, "union directly inside union")
		}
		b, err := p.parse(bj, ns, bpath)
		if err != nil {
			return nil, err
		}
		if b.Kind() == KindUnion {
			return nil, parseErrf(bpath, nil, "union directly inside union")
		}
		key := b.TypeName()
		if prev, dup := seen[key]; dup {
			return nil, parseErrf(bpath, nil, "ambiguous union: branches %d and %d are both %s", prev, i, key)
		}
		seen[key] = i
		s.branches = append(s.branches, b)
	}
	return s, nil
}

func (p *parser) parseObject(m map[string]any, ns, path string) (*Schema, error) {
	tj, ok := m["type"]
	if !ok {
		return nil, parseErrf(path, nil, "missing \"type\" attribute")
	}
	t, isString := tj.(string)
	if !isString {
		// {"type": {...}} and {"type": [...]} wrap a nested definition.
		return p.parse(tj, ns, path)
	}

	var s *Schema
	var err error
	switch t {
	case "record", "error":
		s, err = p.parseRecord(m, ns, path)
	case "enum":
		s, err = p.parseEnum(m, ns, path)
	case "fixed":
		s, err = p.parseFixed(m, ns, path)
	case "array":
		s, err = p.parseArray(m, ns, path)
	case "map":
		s, err = p.parseMap(m, ns, path)
	default:
		s, err = p.parseTypeName(t, ns, path)
		if err != nil || s.IsReference() {
			return s, err
		}
		// Primitives may carry annotations; copy so shared instances stay clean.
		s = &Schema{kind: s.kind}
	}
	if err != nil {
		return nil, err
	}

	if lt, ok := m["logicalType"]; ok {
		name, ok := lt.(string)
		if !ok {
			return nil, parseErrf(path, nil, "logicalType must be a string")
		}
		s.logical = name
	}
	s.props = extraProps(m, s.kind)
	return s, nil
}

func extraProps(m map[string]any, k Kind) map[string]any {
	known := map[string]bool{"type": true, "logicalType": true}
	if k.IsNamed() {
		for _, a := range namedAttrs {
			known[a] = true
		}
	}
	for _, a := range kindAttrs[k] {
		known[a] = true
	}
	var props map[string]any
	for key, v := range m {
		if known[key] {
			continue
		}
		if props == nil {
			props = make(map[string]any)
		}
		props[key] = v
	}
	return props
}

// parseName builds the full name of a named type and registers it.
func (p *parser) parseName(s *Schema, m map[string]any, ns, path string) (string, error) {
	nj, ok := m["name"]
	if !ok {
		return path, parseErrf(path, nil, "named type without \"name\"")
	}
	name, ok := nj.(string)
	if !ok {
		return path, parseErrf(path, nil, "\"name\" must be a string")
	}
	if nsj, ok := m["namespace"]; ok && !strings.Contains(name, ".") {
		explicit, ok := nsj.(string)
		if !ok {
			return path, parseErrf(path, nil, "\"namespace\" must be a string")
		}
		ns = explicit
	}
	s.name = newName(name, ns)
	path = s.name.Full()
	if err := validFullName(s.name); err != nil {
		return path, parseErrf(path, err, "invalid name")
	}
	if _, prim := primitiveKinds[s.name.Full()]; prim && s.name.Namespace == "" {
		return path, parseErrf(path, nil, "cannot redefine primitive type %q", s.name.Local)
	}

	if doc, ok := m["doc"].(string); ok {
		s.doc = doc
	}
	if aj, ok := m["aliases"]; ok {
		aliases, err := stringList(aj)
		if err != nil {
			return path, parseErrf(path, err, "invalid aliases")
		}
		for _, a := range aliases {
			an := newName(a, s.name.Namespace)
			if err := validFullName(an); err != nil {
				return path, parseErrf(path, err, "invalid alias %q", a)
			}
			s.aliases = append(s.aliases, an)
		}
	}

	if !p.names.register(s) {
		return path, parseErrf(path, nil, "named type %q is defined more than once", s.name.Full())
	}
	return path, nil
}

func (p *parser) parseRecord(m map[string]any, ns, path string) (*Schema, error) {
	s := &Schema{kind: KindRecord}
	path, err := p.parseName(s, m, ns, path)
	if err != nil {
		return nil, err
	}
	fj, ok := m["fields"].([]any)
	if !ok {
		return nil, parseErrf(path, nil, "record \"fields\" must be an array")
	}
	s.fields = make([]*Field, 0, len(fj))
	s.fieldIdx = make(map[string]int, len(fj))
	for i, raw := range fj {
		fm, ok := raw.(map[string]any)
		if !ok {
			return nil, parseErrf(fmt.Sprintf("%s.fields[%d]", path, i), nil, "field must be an object")
		}
		f, err := p.parseField(fm, s.name.Namespace, path, i)
		if err != nil {
			return nil, err
		}
		if _, dup := s.fieldIdx[f.name]; dup {
			return nil, parseErrf(path, nil, "duplicate field %q", f.name)
		}
		s.fieldIdx[f.name] = i
		s.fields = append(s.fields, f)
	}
	return s, nil
}

func (p *parser) parseField(m map[string]any, ns, recPath string, i int) (*Field, error) {
	name, ok := m["name"].(string)
	if !ok {
		return nil, parseErrf(fmt.Sprintf("%s.fields[%d]", recPath, i), nil, "field without a string \"name\"")
	}
	path := recPath + "." + name
	if !validName(name) {
		return nil, parseErrf(path, nil, "invalid field name %q", name)
	}
	tj, ok := m["type"]
	if !ok {
		return nil, parseErrf(path, nil, "field without \"type\"")
	}
	typ, err := p.parse(tj, ns, path)
	if err != nil {
		return nil, err
	}
	f := &Field{name: name, typ: typ, index: i, order: "ascending"}
	if doc, ok := m["doc"].(string); ok {
		f.doc = doc
	}
	if aj, ok := m["aliases"]; ok {
		if f.aliases, err = stringList(aj); err != nil {
			return nil, parseErrf(path, err, "invalid field aliases")
		}
	}
	if oj, ok := m["order"]; ok {
		order, _ := oj.(string)
		switch order {
		case "ascending", "descending", "ignore":
			f.order = order
		default:
			return nil, parseErrf(path, nil, "invalid field order %v", oj)
		}
	}
	if dj, ok := m["default"]; ok {
		def, err := defaultValue(typ, dj, path)
		if err != nil {
			return nil, err
		}
		f.def, f.hasDefault = def, true
	}
	return f, nil
}

func (p *parser) parseEnum(m map[string]any, ns, path string) (*Schema, error) {
	s := &Schema{kind: KindEnum}
	path, err := p.parseName(s, m, ns, path)
	if err != nil {
		return nil, err
	}
	sj, ok := m["symbols"]
	if !ok {
		return nil, parseErrf(path, nil, "enum without \"symbols\"")
	}
	if s.symbols, err = stringList(sj); err != nil {
		return nil, parseErrf(path, err, "invalid enum symbols")
	}
	s.symbolIdx = make(map[string]int, len(s.symbols))
	for i, sym := range s.symbols {
		if !validName(sym) {
			return nil, parseErrf(path, nil, "invalid enum symbol %q", sym)
		}
		if _, dup := s.symbolIdx[sym]; dup {
			return nil, parseErrf(path, nil, "duplicate enum symbol %q", sym)
		}
		s.symbolIdx[sym] = i
	}
	if dj, ok := m["default"]; ok {
		def, ok := dj.(string)
		if !ok || s.SymbolIndex(def) < 0 {
			return nil, parseErrf(path, nil, "enum default %v is not a symbol", dj)
		}
		s.enumDefault, s.hasEnumDefault = def, true
	}
	return s, nil
}

func (p *parser) parseFixed(m map[string]any, ns, path string) (*Schema, error) {
	s := &Schema{kind: KindFixed}
	path, err := p.parseName(s, m, ns, path)
	if err != nil {
		return nil, err
	}
	n, ok := m["size"].(json.Number)
	if !ok {
		return nil, parseErrf(path, nil, "fixed without a numeric \"size\"")
	}
	size, err := n.Int64()
	if err != nil || size < 0 || size > math.MaxInt32 {
		return nil, parseErrf(path, err, "invalid fixed size %s", n)
	}
	s.size = int(size)
	return s, nil
}

func (p *parser) parseArray(m map[string]any, ns, path string) (*Schema, error) {
	ij, ok := m["items"]
	if !ok {
		return nil, parseErrf(path, nil, "array without \"items\"")
	}
	items, err := p.parse(ij, ns, path+"[]")
	if err != nil {
		return nil, err
	}
	return &Schema{kind: KindArray, items: items}, nil
}

func (p *parser) parseMap(m map[string]any, ns, path string) (*Schema, error) {
	vj, ok := m["values"]
	if !ok {
		return nil, parseErrf(path, nil, "map without \"values\"")
	}
	values, err := p.parse(vj, ns, path+"{}")
	if err != nil {
		return nil, err
	}
	return &Schema{kind: KindMap, values: values}, nil
}

func stringList(j any) ([]string, error) {
	list, ok := j.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of strings, got %T", j)
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a string", i, v)
		}
		out[i] = s
	}
	return out, nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func validFullName(n Name) error {
	if !validName(n.Local) {
		return fmt.Errorf("%q is not a valid name", n.Local)
	}
	if n.Namespace == "" {
		return nil
	}
	for _, part := range strings.Split(n.Namespace, ".") {
		if !validName(part) {
			return fmt.Errorf("%q is not a valid namespace", n.Namespace)
		}
	}
	return nil
}

// defaultValue converts a JSON default into a Value shaped by s. A union
// default selects the first branch.
func defaultValue(s *Schema, j any, path string) (Value, error) {
	bad := func(format string, args ...any) (Value, error) {
		return nil, parseErrf(path, nil, "invalid default for %s: %s", s.TypeName(), fmt.Sprintf(format, args...))
	}
	switch s.Kind() {
	case KindNull:
		if j != nil {
			return bad("expected null, got %v", j)
		}
		return Null{}, nil
	case KindBoolean:
		b, ok := j.(bool)
		if !ok {
			return bad("expected a boolean, got %v", j)
		}
		return Bool(b), nil
	case KindInt, KindLong:
		n, ok := j.(json.Number)
		if !ok {
			return bad("expected an integer, got %v", j)
		}
		v, err := n.Int64()
		if err != nil || (s.Kind() == KindInt && (v < math.MinInt32 || v > math.MaxInt32)) {
			return bad("%s is out of range", n)
		}
		return Long(v), nil
	case KindFloat, KindDouble:
		n, ok := j.(json.Number)
		if !ok {
			return bad("expected a number, got %v", j)
		}
		v, err := n.Float64()
		if err != nil {
			return bad("%s: %v", n, err)
		}
		if s.Kind() == KindFloat {
			v = float64(float32(v))
		}
		return Double(v), nil
	case KindBytes, KindFixed:
		str, ok := j.(string)
		if !ok {
			return bad("expected a string of code points 0-255, got %v", j)
		}
		var buf bytes.Buffer
		for _, r := range str {
			if r > 0xff {
				return bad("code point U+%04X does not fit in a byte", r)
			}
			buf.WriteByte(byte(r))
		}
		if s.Kind() == KindFixed && buf.Len() != s.Size() {
			return bad("%d bytes, want %d", buf.Len(), s.Size())
		}
		return Bytes(buf.Bytes()), nil
	case KindString:
		str, ok := j.(string)
		if !ok {
			return bad("expected a string, got %v", j)
		}
		return String(str), nil
	case KindEnum:
		sym, ok := j.(string)
		if !ok || s.SymbolIndex(sym) < 0 {
			return bad("%v is not a symbol", j)
		}
		return String(sym), nil
	case KindArray:
		list, ok := j.([]any)
		if !ok {
			return bad("expected an array, got %T", j)
		}
		seq := make(Seq, len(list))
		for i, item := range list {
			v, err := defaultValue(s.Items(), item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			seq[i] = v
		}
		return seq, nil
	case KindMap:
		obj, ok := j.(map[string]any)
		if !ok {
			return bad("expected an object, got %T", j)
		}
		out := make(Map, len(obj))
		for k, item := range obj {
			v, err := defaultValue(s.Values(), item, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case KindRecord:
		obj, ok := j.(map[string]any)
		if !ok {
			return bad("expected an object, got %T", j)
		}
		fields := s.Fields()
		seq := make(Seq, len(fields))
		for i, f := range fields {
			item, present := obj[f.name]
			switch {
			case present:
				v, err := defaultValue(f.Type(), item, joinPath(path, f.name))
				if err != nil {
					return nil, err
				}
				seq[i] = v
			case f.hasDefault:
				seq[i] = f.def
			default:
				return bad("field %q missing", f.name)
			}
		}
		return seq, nil
	case KindUnion:
		v, err := defaultValue(s.Branches()[0], j, path)
		if err != nil {
			return nil, err
		}
		return Tagged{Branch: 0, Value: v}, nil
	}
	return bad("unsupported kind")
}
