package apimodel

import (
	"fmt"
	"strconv"
)

// TypeKind identifies the variant of a Type
type TypeKind int

const (
	KindAtomic TypeKind = iota
	KindString
	KindNumeric
	KindList
	KindRecord
	KindEnum
)

func (k TypeKind) String() string {
	return []string{"atomic", "string", "numeric", "list", "record", "enum"}[k]
}

// Type is the closed set of field types. Implementations live in this
// package only.
type Type interface {
	Kind() TypeKind
	String() string
	isType()
}

// Bound limits the length of strings and lists. The zero value is Unbounded.
type Bound int

// Unbounded is the bound of unlimited strings and lists
const Unbounded Bound = 0

// IsBounded reports whether b carries a limit
func (b Bound) IsBounded() bool {
	return b > 0
}

// Fits reports whether a value bounded by b can be represented within
// provider. An unbounded provider accepts anything.
func (b Bound) Fits(provider Bound) bool {
	if !provider.IsBounded() {
		return true
	}
	if !b.IsBounded() {
		return false
	}
	return b <= provider
}

func (b Bound) suffix() string {
	if !b.IsBounded() {
		return ""
	}
	return "(" + strconv.Itoa(int(b)) + ")"
}

// AtomicKind enumerates the atomic types
type AtomicKind int

const (
	AtomicInt32 AtomicKind = iota
	AtomicInt64
	AtomicBoolean
)

func (k AtomicKind) String() string {
	return []string{"int32", "int64", "boolean"}[k]
}

// ParseAtomicKind parses an atomic kind name
func ParseAtomicKind(s string) (AtomicKind, error) {
	kinds := map[string]AtomicKind{
		"int32":   AtomicInt32,
		"int64":   AtomicInt64,
		"boolean": AtomicBoolean,
	}
	if k, ok := kinds[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown atomic type: %s", s)
}

// AtomicType is a fixed-size scalar
type AtomicType struct {
	Atomic AtomicKind
}

var (
	Int32   = &AtomicType{Atomic: AtomicInt32}
	Int64   = &AtomicType{Atomic: AtomicInt64}
	Boolean = &AtomicType{Atomic: AtomicBoolean}
)

func (t *AtomicType) Kind() TypeKind { return KindAtomic }
func (t *AtomicType) String() string { return t.Atomic.String() }
func (t *AtomicType) isType()        {}

// StringType is a character string with an optional length bound
type StringType struct {
	Bound Bound
}

// UnboundedString returns a string type without length limit
func UnboundedString() *StringType {
	return &StringType{Bound: Unbounded}
}

// BoundedString returns a string type limited to n characters
func BoundedString(n int) *StringType {
	return &StringType{Bound: Bound(n)}
}

func (t *StringType) Kind() TypeKind { return KindString }
func (t *StringType) String() string { return "string" + t.Bound.suffix() }
func (t *StringType) isType()        {}

// NumericType is a fixed-point decimal
type NumericType struct {
	Precision int
	Scale     int
}

// Numeric returns a numeric type with the given precision and scale
func Numeric(precision, scale int) *NumericType {
	return &NumericType{Precision: precision, Scale: scale}
}

func (t *NumericType) Kind() TypeKind { return KindNumeric }
func (t *NumericType) String() string {
	return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
}
func (t *NumericType) isType() {}

// ListType is a list of elements with an optional length bound
type ListType struct {
	Element Type
	Bound   Bound
}

// UnboundedList returns a list of element without length limit
func UnboundedList(element Type) *ListType {
	return &ListType{Element: element, Bound: Unbounded}
}

// BoundedList returns a list of at most n elements
func BoundedList(element Type, n int) *ListType {
	return &ListType{Element: element, Bound: Bound(n)}
}

func (t *ListType) Kind() TypeKind { return KindList }
func (t *ListType) String() string {
	if t.Bound.IsBounded() {
		return fmt.Sprintf("%s[%d]", t.Element, int(t.Bound))
	}
	return t.Element.String() + "[]"
}
func (t *ListType) isType() {}

// Equal compares two types structurally. Record and enum references are
// equal only when they are the same type.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch at := a.(type) {
	case *AtomicType:
		return at.Atomic == b.(*AtomicType).Atomic
	case *StringType:
		return at.Bound == b.(*StringType).Bound
	case *NumericType:
		bt := b.(*NumericType)
		return at.Precision == bt.Precision && at.Scale == bt.Scale
	case *ListType:
		bt := b.(*ListType)
		return at.Bound == bt.Bound && Equal(at.Element, bt.Element)
	case *RecordType, *EnumType:
		return a == b
	default:
		panic(fmt.Sprintf("unhandled type kind %s", a.Kind()))
	}
}

// UserTypesOf returns the record and enum types referenced by t, looking
// through list elements.
func UserTypesOf(t Type) []UserDefinedType {
	switch tt := t.(type) {
	case *RecordType:
		return []UserDefinedType{tt}
	case *EnumType:
		return []UserDefinedType{tt}
	case *ListType:
		return UserTypesOf(tt.Element)
	default:
		return nil
	}
}
