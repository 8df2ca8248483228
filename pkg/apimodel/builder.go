package apimodel

import (
	"errors"
	"fmt"
)

var (
	// ErrBuilderSealed is raised when a builder is used after Build
	ErrBuilderSealed = errors.New("definition builder is sealed")
	// ErrInvalidDefinition wraps every problem found by Build
	ErrInvalidDefinition = errors.New("invalid definition")
)

// RecordSpec describes a record type to add
type RecordSpec struct {
	Name         string
	InternalName string
	TypeID       int
	Super        *RecordType
	Exception    bool
	Abstract     bool
	Predecessor  *RecordType
}

// EnumSpec describes an enum type to add
type EnumSpec struct {
	Name         string
	InternalName string
	TypeID       int
	Predecessor  *EnumType
}

// FieldSpec describes a field to add to a record type. Replaces lists the
// fields of the previous revision merged into this one; when Predecessor is
// nil the first of them becomes the predecessor.
type FieldSpec struct {
	Name         string
	InternalName string
	Type         Type
	Optionality  Optionality
	Predecessor  *Field
	Replaces     []*Field
}

// MemberSpec describes an enum member to add
type MemberSpec struct {
	Name         string
	InternalName string
	Predecessor  *EnumMember
}

// OperationSpec describes an operation to add
type OperationSpec struct {
	Name         string
	InternalName string
	Input        *RecordType
	Output       *RecordType
	Throws       []*RecordType
	Predecessor  *Operation
}

// Builder assembles a Definition element by element. Problems are collected
// and reported by Build. A builder must not be shared between goroutines.
type Builder struct {
	def   *Definition
	errs  []error
	built bool
}

// NewConsumerBuilder starts a consumer definition written against the given
// provider revision
func NewConsumerBuilder(name string, revision int) *Builder {
	return newBuilder(name, revision, SideConsumer, nil)
}

// NewProviderBuilder starts a provider revision. predecessor is the previous
// revision of the same API, or nil for the first one.
func NewProviderBuilder(name string, revision int, predecessor *Definition) *Builder {
	b := newBuilder(name, revision, SideProvider, predecessor)
	if predecessor != nil {
		if predecessor.side != SideProvider {
			b.errorf("predecessor of %s must be a provider definition", b.def.revisionLabel())
		}
		if predecessor.revision >= revision {
			b.errorf("predecessor revision %d is not lower than revision %d", predecessor.revision, revision)
		}
	}
	return b
}

func newBuilder(name string, revision int, side Side, predecessor *Definition) *Builder {
	return &Builder{
		def: &Definition{
			name:                name,
			revision:            revision,
			side:                side,
			predecessor:         predecessor,
			typesByName:         make(map[string]UserDefinedType),
			typesByInternalName: make(map[string]UserDefinedType),
			operationsByName:    make(map[string]*Operation),
		},
	}
}

func (b *Builder) errorf(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

func (b *Builder) mustBeOpen() {
	if b.built {
		panic(ErrBuilderSealed)
	}
}

// linkPredecessor validates that a predecessor lives in the builder's
// predecessor definition and returns its arena index.
func (b *Builder) linkPredecessor(what string, owner *Definition, index int) int {
	if b.def.side == SideConsumer {
		b.errorf("consumer %s cannot have a predecessor", what)
		return -1
	}
	if owner == nil || owner != b.def.predecessor {
		b.errorf("predecessor of %s is not part of the predecessor revision", what)
		return -1
	}
	return index
}

// AddRecord adds a record type
func (b *Builder) AddRecord(spec RecordSpec) *RecordType {
	b.mustBeOpen()

	r := &RecordType{
		element:   newElement(spec.Name, spec.InternalName, len(b.def.types)),
		typeID:    spec.TypeID,
		owner:     b.def,
		super:     spec.Super,
		exception: spec.Exception,
		abstract:  spec.Abstract,
	}
	if spec.Predecessor != nil {
		r.predecessor = b.linkPredecessor("record "+r.internalName, spec.Predecessor.owner, spec.Predecessor.index)
	}
	b.def.types = append(b.def.types, r)
	return r
}

// AddEnum adds an enum type
func (b *Builder) AddEnum(spec EnumSpec) *EnumType {
	b.mustBeOpen()

	e := &EnumType{
		element: newElement(spec.Name, spec.InternalName, len(b.def.types)),
		typeID:  spec.TypeID,
		owner:   b.def,
		byName:  make(map[string]*EnumMember),
	}
	if spec.Predecessor != nil {
		e.predecessor = b.linkPredecessor("enum "+e.internalName, spec.Predecessor.owner, spec.Predecessor.index)
	}
	b.def.types = append(b.def.types, e)
	return e
}

// AddField adds a declared field to a record type of this builder
func (b *Builder) AddField(owner *RecordType, spec FieldSpec) *Field {
	b.mustBeOpen()

	f := &Field{
		element:     newElement(spec.Name, spec.InternalName, len(b.def.fields)),
		owner:       owner,
		typ:         spec.Type,
		optionality: spec.Optionality,
	}
	if owner == nil || owner.owner != b.def {
		b.errorf("field %s is added to a record of another definition", f.internalName)
		return f
	}

	for _, replaced := range spec.Replaces {
		if i, ok := b.checkFieldPredecessor(f, replaced); ok {
			f.declaredPredecessors = append(f.declaredPredecessors, i)
		}
	}
	if spec.Predecessor != nil {
		if i, ok := b.checkFieldPredecessor(f, spec.Predecessor); ok {
			f.predecessor = i
		}
	} else if len(f.declaredPredecessors) > 0 {
		f.predecessor = f.declaredPredecessors[0]
	}

	owner.declared = append(owner.declared, f)
	b.def.fields = append(b.def.fields, f)
	return f
}

func (b *Builder) checkFieldPredecessor(f, pred *Field) (int, bool) {
	what := "field " + f.String()
	if pred == nil || pred.owner == nil {
		b.errorf("%s replaces an unknown field", what)
		return -1, false
	}
	if pred.Inherited() {
		b.errorf("predecessor %s of %s is an inherited field", pred, what)
		return -1, false
	}
	i := b.linkPredecessor(what, pred.owner.owner, pred.index)
	if i < 0 {
		return -1, false
	}
	ownerPred, ok := f.owner.Predecessor()
	if !ok || pred.owner != ownerPred {
		b.errorf("predecessor %s of %s does not belong to the predecessor of %s", pred, what, f.owner)
		return -1, false
	}
	return i, true
}

// AddMember adds a member to an enum type of this builder
func (b *Builder) AddMember(owner *EnumType, spec MemberSpec) *EnumMember {
	b.mustBeOpen()

	m := &EnumMember{
		element: newElement(spec.Name, spec.InternalName, len(b.def.members)),
		owner:   owner,
	}
	if owner == nil || owner.owner != b.def {
		b.errorf("member %s is added to an enum of another definition", m.internalName)
		return m
	}

	if pred := spec.Predecessor; pred != nil {
		what := "member " + m.String()
		if pred.owner == nil {
			b.errorf("%s replaces an unknown member", what)
		} else if i := b.linkPredecessor(what, pred.owner.owner, pred.index); i >= 0 {
			if ownerPred, ok := owner.Predecessor(); ok && pred.owner == ownerPred {
				m.predecessor = i
			} else {
				b.errorf("predecessor %s of %s does not belong to the predecessor of %s", pred, what, owner)
			}
		}
	}

	owner.members = append(owner.members, m)
	b.def.members = append(b.def.members, m)
	return m
}

// AddOperation adds an operation
func (b *Builder) AddOperation(spec OperationSpec) *Operation {
	b.mustBeOpen()

	op := &Operation{
		element:    newElement(spec.Name, spec.InternalName, len(b.def.operations)),
		owner:      b.def,
		input:      spec.Input,
		output:     spec.Output,
		exceptions: append([]*RecordType(nil), spec.Throws...),
	}
	if spec.Predecessor != nil {
		op.predecessor = b.linkPredecessor("operation "+op.internalName, spec.Predecessor.owner, spec.Predecessor.index)
	}
	b.def.operations = append(b.def.operations, op)
	return op
}

// Build validates and freezes the definition. The builder cannot be used
// afterwards.
func (b *Builder) Build() (*Definition, error) {
	if b.built {
		return nil, ErrBuilderSealed
	}
	b.built = true

	b.indexTypes()
	if b.checkSuperTypes() {
		for _, r := range b.def.Records() {
			b.materialize(r)
		}
	}
	b.checkFields()
	b.checkMembers()
	b.checkOperations()
	b.checkPredecessorClaims()

	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w %s %s: %w", ErrInvalidDefinition, b.def.name, b.def.revisionLabel(), errors.Join(b.errs...))
	}
	return b.def, nil
}

func (b *Builder) indexTypes() {
	ids := make(map[int]UserDefinedType)
	for _, t := range b.def.types {
		if other, ok := b.def.typesByName[t.PublicName()]; ok {
			b.errorf("types %s and %s share the name %s", other, t, t.PublicName())
		} else {
			b.def.typesByName[t.PublicName()] = t
		}
		if other, ok := b.def.typesByInternalName[t.InternalName()]; ok {
			b.errorf("types %s and %s share the internal name %s", other, t, t.InternalName())
		} else {
			b.def.typesByInternalName[t.InternalName()] = t
		}
		if other, ok := ids[t.TypeID()]; ok {
			b.errorf("types %s and %s share the type id %d", other, t, t.TypeID())
		} else {
			ids[t.TypeID()] = t
		}
	}
}

// checkSuperTypes reports foreign super types and inheritance cycles. It
// returns false when fields cannot be materialized.
func (b *Builder) checkSuperTypes() bool {
	ok := true
	for _, r := range b.def.Records() {
		if r.super == nil {
			continue
		}
		if r.super.owner != b.def {
			b.errorf("super type %s of %s belongs to another definition", r.super, r)
			ok = false
			continue
		}

		seen := map[*RecordType]bool{r: true}
		for s := r.super; s != nil; s = s.super {
			if seen[s] {
				b.errorf("super type chain of %s is cyclic", r)
				ok = false
				break
			}
			seen[s] = true
		}
	}
	return ok
}

// materialize computes the full field list of r, copying the fields of its
// super types first.
func (b *Builder) materialize(r *RecordType) {
	if r.materialized {
		return
	}
	r.materialized = true
	r.fieldsByName = make(map[string]*Field)

	var fields []*Field
	if s := r.super; s != nil {
		b.materialize(s)
		s.subTypes = append(s.subTypes, r)
		for _, sf := range s.all {
			fields = append(fields, &Field{
				element:     element{name: sf.name, internalName: sf.internalName, index: -1, predecessor: -1},
				owner:       r,
				typ:         sf.typ,
				optionality: sf.optionality,
				origin:      sf.Origin(),
			})
		}
	}
	fields = append(fields, r.declared...)

	for _, f := range fields {
		if other, ok := r.fieldsByName[f.name]; ok {
			b.errorf("fields %s and %s share the name %s", other, f, f.name)
			continue
		}
		r.fieldsByName[f.name] = f
	}
	r.all = fields
}

func (b *Builder) checkFields() {
	for _, f := range b.def.fields {
		b.checkType(f.typ, "field "+f.String())
	}
}

func (b *Builder) checkType(t Type, where string) {
	switch tt := t.(type) {
	case nil:
		b.errorf("%s has no type", where)
	case *AtomicType:
	case *StringType:
		if tt.Bound < 0 {
			b.errorf("%s has a negative string bound", where)
		}
	case *NumericType:
		if tt.Precision <= 0 || tt.Scale < 0 || tt.Scale > tt.Precision {
			b.errorf("%s has invalid numeric parameters (%d,%d)", where, tt.Precision, tt.Scale)
		}
	case *ListType:
		if tt.Bound < 0 {
			b.errorf("%s has a negative list bound", where)
		}
		b.checkType(tt.Element, where)
	case *RecordType:
		if tt.owner != b.def {
			b.errorf("%s references type %s of another definition", where, tt)
		}
	case *EnumType:
		if tt.owner != b.def {
			b.errorf("%s references type %s of another definition", where, tt)
		}
	}
}

func (b *Builder) checkMembers() {
	for _, e := range b.def.Enums() {
		for _, m := range e.members {
			if other, ok := e.byName[m.name]; ok {
				b.errorf("members %s and %s share the name %s", other, m, m.name)
				continue
			}
			e.byName[m.name] = m
		}
	}
}

func (b *Builder) checkOperations() {
	for _, op := range b.def.operations {
		if other, ok := b.def.operationsByName[op.name]; ok {
			b.errorf("operations %s and %s share the name %s", other, op, op.name)
		} else {
			b.def.operationsByName[op.name] = op
		}

		if op.input == nil || op.input.owner != b.def {
			b.errorf("operation %s needs an input record of this definition", op)
		}
		if op.output == nil || op.output.owner != b.def {
			b.errorf("operation %s needs an output record of this definition", op)
		}
		for _, ex := range op.exceptions {
			switch {
			case ex == nil || ex.owner != b.def:
				b.errorf("operation %s throws a type of another definition", op)
			case !ex.exception:
				b.errorf("operation %s throws %s, which is not an exception type", op, ex)
			}
		}
	}
}

// checkPredecessorClaims rejects branching lineage: no two elements of one
// revision may replace the same element.
func (b *Builder) checkPredecessorClaims() {
	if b.def.predecessor == nil {
		return
	}
	for _, kind := range ElementKinds {
		claims := make(map[int]int)
		for i := 0; i < b.def.ArenaSize(kind); i++ {
			p := b.def.PredecessorIndex(kind, i)
			if p < 0 {
				continue
			}
			if other, ok := claims[p]; ok {
				b.errorf("%s elements %d and %d of %s both replace element %d of revision %d",
					kind, other, i, b.def.revisionLabel(), p, b.def.predecessor.revision)
				continue
			}
			claims[p] = i
		}
	}
}

// Problems splits an error returned by Build into the individual problems
func Problems(err error) []error {
	if err == nil {
		return nil
	}
	if wrapped, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range wrapped.Unwrap() {
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				return joined.Unwrap()
			}
		}
	}
	return []error{err}
}
