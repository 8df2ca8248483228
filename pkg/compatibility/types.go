package compatibility

import (
	"fmt"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

// TypeMap maps the user-defined types of a source definition to those of a
// target definition. Iteration follows insertion order.
type TypeMap struct {
	images map[apimodel.UserDefinedType]apimodel.UserDefinedType
	order  []apimodel.UserDefinedType
}

// NewTypeMap creates an empty type map
func NewTypeMap() *TypeMap {
	return &TypeMap{
		images: make(map[apimodel.UserDefinedType]apimodel.UserDefinedType),
	}
}

// Put maps source to target, replacing an earlier image
func (m *TypeMap) Put(source, target apimodel.UserDefinedType) {
	if _, ok := m.images[source]; !ok {
		m.order = append(m.order, source)
	}
	m.images[source] = target
}

// Get returns the image of source
func (m *TypeMap) Get(source apimodel.UserDefinedType) (apimodel.UserDefinedType, bool) {
	target, ok := m.images[source]
	return target, ok
}

// Len returns the number of mapped types
func (m *TypeMap) Len() int {
	return len(m.order)
}

// Sources returns the mapped source types in insertion order
func (m *TypeMap) Sources() []apimodel.UserDefinedType {
	return m.order
}

// CompatibleTypes reports whether a value of type source can be represented
// as target. Records and enums are compatible only when target is the image
// of source under types.
func CompatibleTypes(source, target apimodel.Type, types *TypeMap) bool {
	if source == nil || target == nil || source.Kind() != target.Kind() {
		return false
	}

	switch source.Kind() {
	case apimodel.KindAtomic:
		return source.(*apimodel.AtomicType).Atomic == target.(*apimodel.AtomicType).Atomic

	case apimodel.KindString:
		return source.(*apimodel.StringType).Bound.Fits(target.(*apimodel.StringType).Bound)

	case apimodel.KindNumeric:
		s, t := source.(*apimodel.NumericType), target.(*apimodel.NumericType)
		return s.Scale == t.Scale && s.Precision <= t.Precision

	case apimodel.KindList:
		s, t := source.(*apimodel.ListType), target.(*apimodel.ListType)
		return s.Bound.Fits(t.Bound) && CompatibleTypes(s.Element, t.Element, types)

	case apimodel.KindRecord, apimodel.KindEnum:
		image, ok := types.Get(source.(apimodel.UserDefinedType))
		return ok && image == target.(apimodel.UserDefinedType)

	default:
		panic(fmt.Sprintf("unhandled type kind %s", source.Kind()))
	}
}
