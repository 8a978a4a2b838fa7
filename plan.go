package avro

import (
	"fmt"
	"io"
	"strconv"
)

// Action says how one reader field is produced from the writer's data.
type Action uint8

const (
	ActionCopy    Action = iota // same position, same or nested-resolved type
	ActionPromote               // widened primitive
	ActionDefault               // absent in writer, filled from the reader default
	ActionSkip                  // writer-only field, decoded and dropped
	ActionReorder               // present in both at different positions
)

var actionNames = [...]string{"copy", "promote", "default", "skip", "reorder"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "Action(" + strconv.Itoa(int(a)) + ")"
}

// FieldAction describes the handling of one field of a record plan.
type FieldAction struct {
	Action      Action
	Name        string // reader field name; writer field name for ActionSkip
	WriterIndex int    // -1 for ActionDefault
	ReaderIndex int    // -1 for ActionSkip
}

// ResolutionPlan decodes bytes written under one schema into values shaped by
// another. Plans are immutable and safe for concurrent use.
type ResolutionPlan struct {
	writer *Schema
	reader *Schema
	root   *step
}

func (p *ResolutionPlan) Writer() *Schema { return p.writer }
func (p *ResolutionPlan) Reader() *Schema { return p.reader }

// IsIdentity reports whether the plan is a straight copy: the writer encoding
// already has the reader's shape.
func (p *ResolutionPlan) IsIdentity() bool { return p.root.op == opCopy }

// FieldActions lists the per-field actions when both schemas are records:
// writer fields in writer order, then reader fields filled from defaults.
// It returns nil for any other pair.
func (p *ResolutionPlan) FieldActions() []FieldAction {
	w, r := p.writer.resolve(), p.reader.resolve()
	if w.kind != KindRecord || r.kind != KindRecord {
		return nil
	}
	if p.root.op == opCopy {
		out := make([]FieldAction, len(r.fields))
		for i, f := range r.fields {
			out[i] = FieldAction{Action: ActionCopy, Name: f.name, WriterIndex: i, ReaderIndex: i}
		}
		return out
	}
	return p.root.actions
}

// Decode reads one datum from source.
func (p *ResolutionPlan) Decode(source io.Reader) (Value, error) {
	r, err := newDatumReader(source)
	if err != nil {
		return nil, err
	}
	start := r.Count()
	v := p.root.read(r)
	if err := datumErr(r, start); err != nil {
		return nil, err
	}
	return v, nil
}

// Unmarshal decodes data as exactly one datum.
func (p *ResolutionPlan) Unmarshal(data []byte) (Value, error) {
	br := NewBytesReader(data)
	r := &Reader{r: br}
	v := p.root.read(r)
	r.truncated()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if br.Available() > 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, br.Available())
	}
	return v, nil
}

type stepOp uint8

const (
	opCopy    stepOp = iota // decode with the writer schema as is
	opPromote               // decode with the writer schema, then widen
	opRecord
	opEnum
	opArray
	opMap
	opUnion // writer is a union
	opWrap  // writer is not a union, reader is
)

type step struct {
	op     stepOp
	writer *Schema // resolved
	reader *Schema // resolved
	path   string

	// opRecord
	fields   []fieldStep // writer order
	defaults []fieldDefault
	width    int
	actions  []FieldAction

	// opEnum: writer symbol index to reader symbol index, -1 when unmapped
	symbols []int

	// opArray, opMap, opWrap
	elem     *step
	itemSize int64 // opArray, opMap: fewest bytes per writer item

	// opUnion, per writer branch
	branches   []*step
	branchErrs []error
	tags       []int // reader branch index, -1 when the reader is not a union

	// opWrap
	tag int
}

type fieldStep struct {
	writer *Schema
	step   *step // nil: skip
	index  int   // reader position
}

type fieldDefault struct {
	index int
	value Value
}

// planBuilder memoizes named pairs so recursive schemas yield a finite,
// cyclic step graph.
type planBuilder struct {
	named map[[2]string]*step
}

func buildPlan(writer, reader *Schema) (*ResolutionPlan, error) {
	b := &planBuilder{named: make(map[[2]string]*step)}
	root, err := b.build(writer, reader, "")
	if err != nil {
		return nil, err
	}
	return &ResolutionPlan{writer: writer, reader: reader, root: root}, nil
}

func (b *planBuilder) build(ws, rs *Schema, path string) (*step, error) {
	w, r := ws.resolve(), rs.resolve()

	if w.kind == KindUnion {
		return b.buildUnion(w, r, path)
	}
	if r.kind == KindUnion {
		j := firstMatch(w, r.branches)
		if j < 0 {
			return nil, incompatibleErrf(path, w, r, "no reader branch accepts writer %s", w.TypeName())
		}
		elem, err := b.build(w, r.branches[j], path+"<"+strconv.Itoa(j)+">")
		if err != nil {
			return nil, err
		}
		return &step{op: opWrap, writer: w, reader: r, path: path, elem: elem, tag: j}, nil
	}

	if w.kind.IsNamed() {
		if w.kind != r.kind || !namesMatch(w, r) {
			return nil, incompatibleErrf(path, w, r, "named types do not match")
		}
		key := [2]string{w.name.Full(), r.name.Full()}
		if s, ok := b.named[key]; ok {
			return s, nil
		}
		if w.Canonical() == r.Canonical() {
			s := &step{op: opCopy, writer: w, reader: r, path: path}
			b.named[key] = s
			return s, nil
		}
		// The op is set before the step is memoized: a recursive reference
		// reached while filling it must not look like a copy.
		s := &step{op: opRecord, writer: w, reader: r, path: path}
		b.named[key] = s
		var err error
		switch w.kind {
		case KindRecord:
			err = b.fillRecord(s)
		case KindEnum:
			fillEnum(s)
		case KindFixed:
			s.op = opCopy
			if w.size != r.size {
				err = incompatibleErrf(path, w, r, "fixed size %d does not match %d", w.size, r.size)
			}
		}
		if err != nil {
			delete(b.named, key)
			return nil, err
		}
		return s, nil
	}

	switch {
	case w.kind == r.kind && w.kind.IsPrimitive():
		return &step{op: opCopy, writer: w, reader: r, path: path}, nil
	case promotable(w.kind, r.kind):
		return &step{op: opPromote, writer: w, reader: r, path: path}, nil
	case w.kind == KindArray && r.kind == KindArray:
		elem, err := b.build(w.items, r.items, path+"[]")
		if err != nil {
			return nil, err
		}
		if elem.op == opCopy {
			return &step{op: opCopy, writer: w, reader: r, path: path}, nil
		}
		return &step{op: opArray, writer: w, reader: r, path: path, elem: elem, itemSize: minSize(w.items)}, nil
	case w.kind == KindMap && r.kind == KindMap:
		elem, err := b.build(w.values, r.values, path+"{}")
		if err != nil {
			return nil, err
		}
		if elem.op == opCopy {
			return &step{op: opCopy, writer: w, reader: r, path: path}, nil
		}
		return &step{op: opMap, writer: w, reader: r, path: path, elem: elem, itemSize: 1 + minSize(w.values)}, nil
	}
	return nil, incompatibleErrf(path, w, r, "cannot read %s as %s", w.kind, r.kind)
}

// buildUnion resolves every writer branch on its own. A branch that cannot be
// resolved only fails when data actually selects it.
func (b *planBuilder) buildUnion(w, r *Schema, path string) (*step, error) {
	if r.kind == KindUnion && w.Canonical() == r.Canonical() {
		return &step{op: opCopy, writer: w, reader: r, path: path}, nil
	}
	s := &step{
		op:         opUnion,
		writer:     w,
		reader:     r,
		path:       path,
		branches:   make([]*step, len(w.branches)),
		branchErrs: make([]error, len(w.branches)),
		tags:       make([]int, len(w.branches)),
	}
	var firstErr error
	ok := 0
	for i, wb := range w.branches {
		bpath := path + "<" + strconv.Itoa(i) + ">"
		s.tags[i] = -1
		target := r
		if r.kind == KindUnion {
			j := firstMatch(wb.resolve(), r.branches)
			if j < 0 {
				s.branchErrs[i] = incompatibleErrf(bpath, wb, r, "no reader branch accepts writer %s", wb.TypeName())
				if firstErr == nil {
					firstErr = s.branchErrs[i]
				}
				continue
			}
			s.tags[i] = j
			target = r.branches[j]
		}
		bs, err := b.build(wb, target, bpath)
		if err != nil {
			s.branchErrs[i] = err
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.branches[i] = bs
		ok++
	}
	if ok == 0 {
		return nil, firstErr
	}
	return s, nil
}

func (b *planBuilder) fillRecord(s *step) error {
	w, r := s.writer, s.reader
	s.op = opRecord
	s.width = len(r.fields)
	seen := make([]bool, len(r.fields))
	for wi, wf := range w.fields {
		ri := readerField(r, wf.name)
		if ri < 0 {
			s.fields = append(s.fields, fieldStep{writer: wf.typ, index: -1})
			s.actions = append(s.actions, FieldAction{Action: ActionSkip, Name: wf.name, WriterIndex: wi, ReaderIndex: -1})
			continue
		}
		rf := r.fields[ri]
		fs, err := b.build(wf.typ, rf.typ, joinPath(s.path, rf.name))
		if err != nil {
			return err
		}
		seen[ri] = true
		s.fields = append(s.fields, fieldStep{writer: wf.typ, step: fs, index: ri})
		act := ActionCopy
		switch {
		case wi != ri:
			act = ActionReorder
		case fs.op == opPromote:
			act = ActionPromote
		}
		s.actions = append(s.actions, FieldAction{Action: act, Name: rf.name, WriterIndex: wi, ReaderIndex: ri})
	}
	for ri, rf := range r.fields {
		if seen[ri] {
			continue
		}
		if !rf.hasDefault {
			return incompatibleErrf(joinPath(s.path, rf.name), w, r, "reader field %q is missing from the writer and has no default", rf.name)
		}
		s.defaults = append(s.defaults, fieldDefault{index: ri, value: rf.def})
		s.actions = append(s.actions, FieldAction{Action: ActionDefault, Name: rf.name, WriterIndex: -1, ReaderIndex: ri})
	}
	return nil
}

func readerField(r *Schema, name string) int {
	if i, ok := r.fieldIdx[name]; ok {
		return i
	}
	for i, f := range r.fields {
		if f.matches(name) {
			return i
		}
	}
	return -1
}

func fillEnum(s *step) {
	w, r := s.writer, s.reader
	s.op = opEnum
	def := -1
	if r.hasEnumDefault {
		def = r.symbolIdx[r.enumDefault]
	}
	s.symbols = make([]int, len(w.symbols))
	for i, sym := range w.symbols {
		if j, ok := r.symbolIdx[sym]; ok {
			s.symbols[i] = j
		} else {
			s.symbols[i] = def
		}
	}
}

// namesMatch reports whether reader r accepts the named writer type w by full
// name or through one of the reader's aliases.
func namesMatch(w, r *Schema) bool {
	return r.hasAlias(w.name.Full())
}

func promotable(from, to Kind) bool {
	switch from {
	case KindInt:
		return to == KindLong || to == KindFloat || to == KindDouble
	case KindLong:
		return to == KindFloat || to == KindDouble
	case KindFloat:
		return to == KindDouble
	case KindString:
		return to == KindBytes
	case KindBytes:
		return to == KindString
	}
	return false
}

// firstMatch picks the first reader branch, in declaration order, whose type
// can accept w.
func firstMatch(w *Schema, branches []*Schema) int {
	for j, rb := range branches {
		rb = rb.resolve()
		switch {
		case w.kind.IsNamed():
			if rb.kind == w.kind && namesMatch(w, rb) {
				return j
			}
		case w.kind.IsPrimitive():
			if rb.kind == w.kind || promotable(w.kind, rb.kind) {
				return j
			}
		case w.kind == rb.kind:
			return j
		}
	}
	return -1
}

func (s *step) read(r *Reader) Value {
	switch s.op {
	case opCopy:
		return readValue(r, s.writer)
	case opPromote:
		if s.writer.kind == KindBytes && s.reader.kind == KindString {
			return String(readString(r))
		}
		return promote(readValue(r, s.writer), s.reader.kind)
	case opRecord:
		out := make(Seq, s.width)
		for _, f := range s.fields {
			if f.step == nil {
				skipValue(r, f.writer)
			} else {
				out[f.index] = f.step.read(r)
			}
			if r.Err() != nil {
				return nil
			}
		}
		for _, d := range s.defaults {
			out[d.index] = d.value
		}
		return out
	case opEnum:
		i := r.ReadLong()
		if r.Err() != nil {
			return nil
		}
		if i < 0 || i >= int64(len(s.symbols)) {
			r.Fail(fmt.Errorf("%w: enum %s index %d", ErrInvalidData, s.writer.name.Full(), i))
			return nil
		}
		j := s.symbols[i]
		if j < 0 {
			r.Fail(incompatibleErrf(s.path, s.writer, s.reader, "symbol %q is unknown to the reader and it has no default", s.writer.symbols[i]))
			return nil
		}
		return String(s.reader.symbols[j])
	case opArray:
		seq := Seq{}
		readBlocks(r, s.itemSize, func() {
			seq = append(seq, s.elem.read(r))
		})
		return seq
	case opMap:
		m := Map{}
		readBlocks(r, s.itemSize, func() {
			k := readString(r)
			m[k] = s.elem.read(r)
		})
		return m
	case opUnion:
		i := readBranch(r, len(s.branches))
		if i < 0 {
			return nil
		}
		if err := s.branchErrs[i]; err != nil {
			r.Fail(err)
			return nil
		}
		v := s.branches[i].read(r)
		if s.tags[i] >= 0 {
			return Tagged{Branch: s.tags[i], Value: v}
		}
		return v
	case opWrap:
		return Tagged{Branch: s.tag, Value: s.elem.read(r)}
	}
	r.Fail(fmt.Errorf("avro: unknown plan step %d", s.op))
	return nil
}

// promote widens a decoded primitive to the reader kind.
func promote(v Value, to Kind) Value {
	switch x := v.(type) {
	case Long:
		if to == KindFloat {
			return Double(float32(x))
		}
		if to == KindDouble {
			return Double(x)
		}
		return x
	case String:
		return Bytes(x)
	case Bytes:
		return String(x)
	}
	return v
}
