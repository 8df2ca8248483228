package apimodel

import (
	"fmt"
)

// Side tells consumer definitions from provider revisions
type Side int

const (
	SideConsumer Side = iota
	SideProvider
)

func (s Side) String() string {
	return []string{"consumer", "provider"}[s]
}

// ParseSide parses a side name
func ParseSide(s string) (Side, error) {
	switch s {
	case "consumer":
		return SideConsumer, nil
	case "provider":
		return SideProvider, nil
	default:
		return 0, fmt.Errorf("unknown definition side: %s", s)
	}
}

// Optionality describes whether a field has to be present
type Optionality int

const (
	Mandatory Optionality = iota
	OptIn
	Optional
)

func (o Optionality) String() string {
	return []string{"MANDATORY", "OPT_IN", "OPTIONAL"}[o]
}

// ParseOptionality parses an optionality name. The empty string is MANDATORY.
func ParseOptionality(s string) (Optionality, error) {
	values := map[string]Optionality{
		"":          Mandatory,
		"MANDATORY": Mandatory,
		"OPT_IN":    OptIn,
		"OPTIONAL":  Optional,
	}
	if o, ok := values[s]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("unknown optionality: %s", s)
}

// MorePermissive returns the more permissive of two optionalities
// (OPTIONAL > OPT_IN > MANDATORY).
func MorePermissive(a, b Optionality) Optionality {
	if a > b {
		return a
	}
	return b
}

// ElementKind selects one of the per-definition element arenas
type ElementKind int

const (
	ElementType ElementKind = iota
	ElementField
	ElementMember
	ElementOperation
)

// ElementKinds lists every arena
var ElementKinds = []ElementKind{ElementType, ElementField, ElementMember, ElementOperation}

func (k ElementKind) String() string {
	return []string{"type", "field", "member", "operation"}[k]
}

// element holds what every named definition element carries. index is the
// position in the owning definition's arena; predecessor is the arena index
// of the replaced element in the predecessor definition, or -1.
type element struct {
	name         string
	internalName string
	index        int
	predecessor  int
}

func newElement(name, internalName string, index int) element {
	if internalName == "" {
		internalName = name
	}
	return element{name: name, internalName: internalName, index: index, predecessor: -1}
}

// PublicName returns the name the element is exchanged under
func (e *element) PublicName() string { return e.name }

// InternalName returns the local name, which defaults to the public name
func (e *element) InternalName() string { return e.internalName }

// Index returns the arena index of the element, -1 for inherited fields
func (e *element) Index() int { return e.index }

// PredecessorIndex returns the arena index of the predecessor, or -1
func (e *element) PredecessorIndex() int { return e.predecessor }

// UserDefinedType is a record or enum type owned by a definition
type UserDefinedType interface {
	Type
	PublicName() string
	InternalName() string
	TypeID() int
	Definition() *Definition
	Index() int
	PredecessorIndex() int
	userDefined()
}

// Definition is a frozen API definition. It is created by a Builder and is
// safe for concurrent use.
type Definition struct {
	name        string
	revision    int
	side        Side
	predecessor *Definition

	types      []UserDefinedType
	fields     []*Field
	members    []*EnumMember
	operations []*Operation

	typesByName         map[string]UserDefinedType
	typesByInternalName map[string]UserDefinedType
	operationsByName    map[string]*Operation
}

func (d *Definition) Name() string  { return d.name }
func (d *Definition) Revision() int { return d.revision }
func (d *Definition) Side() Side    { return d.side }

// Predecessor returns the previous revision of a provider definition
func (d *Definition) Predecessor() *Definition { return d.predecessor }

func (d *Definition) revisionLabel() string {
	return fmt.Sprintf("revision %d", d.revision)
}

// Types returns all user-defined types in declaration order
func (d *Definition) Types() []UserDefinedType { return d.types }

// Records returns the record types in declaration order
func (d *Definition) Records() []*RecordType {
	var records []*RecordType
	for _, t := range d.types {
		if r, ok := t.(*RecordType); ok {
			records = append(records, r)
		}
	}
	return records
}

// Enums returns the enum types in declaration order
func (d *Definition) Enums() []*EnumType {
	var enums []*EnumType
	for _, t := range d.types {
		if e, ok := t.(*EnumType); ok {
			enums = append(enums, e)
		}
	}
	return enums
}

// Fields returns the declared fields of all records in arena order
func (d *Definition) Fields() []*Field { return d.fields }

// Members returns the members of all enums in arena order
func (d *Definition) Members() []*EnumMember { return d.members }

// Operations returns the operations in declaration order
func (d *Definition) Operations() []*Operation { return d.operations }

// TypeByName looks up a type by public name
func (d *Definition) TypeByName(name string) (UserDefinedType, bool) {
	t, ok := d.typesByName[name]
	return t, ok
}

// TypeByInternalName looks up a type by internal name
func (d *Definition) TypeByInternalName(name string) (UserDefinedType, bool) {
	t, ok := d.typesByInternalName[name]
	return t, ok
}

// OperationByName looks up an operation by public name
func (d *Definition) OperationByName(name string) (*Operation, bool) {
	op, ok := d.operationsByName[name]
	return op, ok
}

// ArenaSize returns the number of elements in an arena
func (d *Definition) ArenaSize(kind ElementKind) int {
	switch kind {
	case ElementType:
		return len(d.types)
	case ElementField:
		return len(d.fields)
	case ElementMember:
		return len(d.members)
	case ElementOperation:
		return len(d.operations)
	default:
		panic(fmt.Sprintf("unhandled element kind %d", kind))
	}
}

// PredecessorIndex returns the predecessor arena index of element i
func (d *Definition) PredecessorIndex(kind ElementKind, i int) int {
	switch kind {
	case ElementType:
		return d.types[i].PredecessorIndex()
	case ElementField:
		return d.fields[i].predecessor
	case ElementMember:
		return d.members[i].predecessor
	case ElementOperation:
		return d.operations[i].predecessor
	default:
		panic(fmt.Sprintf("unhandled element kind %d", kind))
	}
}

// RecordType is a user-defined structure of fields
type RecordType struct {
	element
	typeID    int
	owner     *Definition
	super     *RecordType
	exception bool
	abstract  bool

	declared     []*Field
	all          []*Field
	fieldsByName map[string]*Field
	subTypes     []*RecordType
	materialized bool
}

func (r *RecordType) Kind() TypeKind           { return KindRecord }
func (r *RecordType) TypeID() int              { return r.typeID }
func (r *RecordType) Definition() *Definition  { return r.owner }
func (r *RecordType) Super() *RecordType       { return r.super }
func (r *RecordType) IsException() bool        { return r.exception }
func (r *RecordType) IsAbstract() bool         { return r.abstract }
func (r *RecordType) DeclaredFields() []*Field { return r.declared }
func (r *RecordType) SubTypes() []*RecordType  { return r.subTypes }
func (r *RecordType) isType()                  {}
func (r *RecordType) userDefined()             {}

func (r *RecordType) String() string {
	return r.internalName + "@" + r.owner.revisionLabel()
}

// AllFields returns the inherited fields followed by the declared fields
func (r *RecordType) AllFields() []*Field { return r.all }

// FieldByName looks up a field, inherited or declared, by public name
func (r *RecordType) FieldByName(name string) (*Field, bool) {
	f, ok := r.fieldsByName[name]
	return f, ok
}

// Predecessor returns the record this one replaces in the previous revision
func (r *RecordType) Predecessor() (*RecordType, bool) {
	if r.predecessor < 0 || r.owner.predecessor == nil {
		return nil, false
	}
	p, ok := r.owner.predecessor.types[r.predecessor].(*RecordType)
	return p, ok
}

// EnumType is a user-defined set of members
type EnumType struct {
	element
	typeID  int
	owner   *Definition
	members []*EnumMember
	byName  map[string]*EnumMember
}

func (e *EnumType) Kind() TypeKind          { return KindEnum }
func (e *EnumType) TypeID() int             { return e.typeID }
func (e *EnumType) Definition() *Definition { return e.owner }
func (e *EnumType) Members() []*EnumMember  { return e.members }
func (e *EnumType) isType()                 {}
func (e *EnumType) userDefined()            {}
func (e *EnumType) String() string          { return e.internalName + "@" + e.owner.revisionLabel() }

// MemberByName looks up a member by public name
func (e *EnumType) MemberByName(name string) (*EnumMember, bool) {
	m, ok := e.byName[name]
	return m, ok
}

// Predecessor returns the enum this one replaces in the previous revision
func (e *EnumType) Predecessor() (*EnumType, bool) {
	if e.predecessor < 0 || e.owner.predecessor == nil {
		return nil, false
	}
	p, ok := e.owner.predecessor.types[e.predecessor].(*EnumType)
	return p, ok
}

// Field belongs to exactly one record type. Inherited fields are copies of
// the super type's fields and carry no lineage of their own; their lineage is
// that of Origin().
type Field struct {
	element
	owner                *RecordType
	typ                  Type
	optionality          Optionality
	origin               *Field
	declaredPredecessors []int
}

func (f *Field) Owner() *RecordType       { return f.owner }
func (f *Field) Type() Type               { return f.typ }
func (f *Field) Optionality() Optionality { return f.optionality }
func (f *Field) Inherited() bool          { return f.origin != nil }

// Origin returns the declared field an inherited copy stems from, or f
func (f *Field) Origin() *Field {
	if f.origin != nil {
		return f.origin
	}
	return f
}

func (f *Field) String() string {
	return f.internalName + "@" + f.owner.String()
}

// Predecessor returns the field this one replaces in the previous revision
func (f *Field) Predecessor() (*Field, bool) {
	if f.origin != nil || f.predecessor < 0 {
		return nil, false
	}
	pred := f.owner.owner.predecessor
	if pred == nil {
		return nil, false
	}
	return pred.fields[f.predecessor], true
}

// DeclaredPredecessors returns every field this one was declared to replace
func (f *Field) DeclaredPredecessors() []*Field {
	pred := f.owner.owner.predecessor
	if pred == nil {
		return nil
	}
	fields := make([]*Field, 0, len(f.declaredPredecessors))
	for _, i := range f.declaredPredecessors {
		fields = append(fields, pred.fields[i])
	}
	return fields
}

// EnumMember belongs to exactly one enum type
type EnumMember struct {
	element
	owner *EnumType
}

func (m *EnumMember) Owner() *EnumType { return m.owner }

func (m *EnumMember) String() string {
	return m.internalName + "@" + m.owner.String()
}

// Predecessor returns the member this one replaces in the previous revision
func (m *EnumMember) Predecessor() (*EnumMember, bool) {
	pred := m.owner.owner.predecessor
	if m.predecessor < 0 || pred == nil {
		return nil, false
	}
	return pred.members[m.predecessor], true
}

// Operation takes an input record and returns an output record, possibly
// throwing exception records.
type Operation struct {
	element
	owner      *Definition
	input      *RecordType
	output     *RecordType
	exceptions []*RecordType
}

func (o *Operation) Definition() *Definition   { return o.owner }
func (o *Operation) Input() *RecordType        { return o.input }
func (o *Operation) Output() *RecordType       { return o.output }
func (o *Operation) Exceptions() []*RecordType { return o.exceptions }

func (o *Operation) String() string {
	return o.internalName + "@" + o.owner.revisionLabel()
}

// Throws reports whether the operation declares exception e
func (o *Operation) Throws(e *RecordType) bool {
	for _, ex := range o.exceptions {
		if ex == e {
			return true
		}
	}
	return false
}

// Predecessor returns the operation this one replaces in the previous revision
func (o *Operation) Predecessor() (*Operation, bool) {
	if o.predecessor < 0 || o.owner.predecessor == nil {
		return nil, false
	}
	return o.owner.predecessor.operations[o.predecessor], true
}
