package compatibility

import (
	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

// Morphism maps the elements of a source definition to the elements of a
// target definition. The merge engine uses it from every supported revision
// to the merged model, the resolver from a consumer definition to the merged
// model.
type Morphism struct {
	Source     *apimodel.Definition
	Target     *apimodel.Definition
	Types      *TypeMap
	Fields     map[*apimodel.Field]*apimodel.Field
	Members    map[*apimodel.EnumMember]*apimodel.EnumMember
	Operations map[*apimodel.Operation]*apimodel.Operation

	// MismatchKind is reported for structural mismatches of types and fields
	MismatchKind ViolationKind
}

// NewMorphism creates an empty morphism from source to target
func NewMorphism(source, target *apimodel.Definition, mismatchKind ViolationKind) *Morphism {
	return &Morphism{
		Source:       source,
		Target:       target,
		Types:        NewTypeMap(),
		Fields:       make(map[*apimodel.Field]*apimodel.Field),
		Members:      make(map[*apimodel.EnumMember]*apimodel.EnumMember),
		Operations:   make(map[*apimodel.Operation]*apimodel.Operation),
		MismatchKind: mismatchKind,
	}
}

// Compose returns the morphism that applies m and then next. Elements that
// next does not map are dropped.
func (m *Morphism) Compose(next *Morphism) *Morphism {
	composed := NewMorphism(m.Source, next.Target, m.MismatchKind)

	for _, source := range m.Types.Sources() {
		image, _ := m.Types.Get(source)
		if target, ok := next.Types.Get(image); ok {
			composed.Types.Put(source, target)
		}
	}
	for source, image := range m.Fields {
		if target, ok := next.Fields[image]; ok {
			composed.Fields[source] = target
		}
	}
	for source, image := range m.Members {
		if target, ok := next.Members[image]; ok {
			composed.Members[source] = target
		}
	}
	for source, image := range m.Operations {
		if target, ok := next.Operations[image]; ok {
			composed.Operations[source] = target
		}
	}
	return composed
}

// CheckConsistency verifies that the mapped elements agree structurally:
// types keep their kind, fields and members stay with the image of their
// owner, field types are compatible and operations keep their input, output
// and exceptions. Violations are reported in source declaration order.
func (m *Morphism) CheckConsistency() Result {
	var result Result

	for _, t := range m.Source.Types() {
		image, ok := m.Types.Get(t)
		if !ok {
			continue
		}
		if image.Kind() != t.Kind() {
			result.Add(NewViolationBuilder(RuleTypeKindMismatch).
				WithKind(m.MismatchKind).
				WithLocation(t.String()).
				WithMessagef("Types %s (%s) and %s (%s) are not of the same kind.", t, t.Kind(), image, image.Kind()).
				Build())
			continue
		}

		switch st := t.(type) {
		case *apimodel.RecordType:
			result.Join(m.checkFields(st, image.(*apimodel.RecordType)))
		case *apimodel.EnumType:
			result.Join(m.checkMembers(st, image.(*apimodel.EnumType)))
		}
	}

	for _, op := range m.Source.Operations() {
		if image, ok := m.Operations[op]; ok {
			result.Join(m.checkOperation(op, image))
		}
	}

	return result
}

func (m *Morphism) checkFields(source, target *apimodel.RecordType) Result {
	var result Result
	for _, f := range source.AllFields() {
		image, ok := m.Fields[f]
		if !ok {
			continue
		}
		if image.Owner() != target {
			result.Add(NewViolationBuilder(RuleOwnerMismatch).
				WithKind(m.MismatchKind).
				WithLocation(f.String()).
				WithMessagef("Field %s is mapped to %s, which is not a field of %s.", f, image, target).
				Build())
			continue
		}
		if !CompatibleTypes(f.Type(), image.Type(), m.Types) {
			result.Add(NewViolationBuilder(RuleFieldTypeMismatch).
				WithKind(m.MismatchKind).
				WithLocation(f.String()).
				WithMessagef("Types of field %s (%s) and field %s (%s) do not match.", f, f.Type(), image, image.Type()).
				Build())
		}
	}
	return result
}

func (m *Morphism) checkMembers(source, target *apimodel.EnumType) Result {
	var result Result
	for _, member := range source.Members() {
		image, ok := m.Members[member]
		if ok && image.Owner() != target {
			result.Add(NewViolationBuilder(RuleOwnerMismatch).
				WithKind(m.MismatchKind).
				WithLocation(member.String()).
				WithMessagef("Member %s is mapped to %s, which is not a member of %s.", member, image, target).
				Build())
		}
	}
	return result
}

func (m *Morphism) checkOperation(op, image *apimodel.Operation) Result {
	var result Result

	if in, ok := m.Types.Get(op.Input()); !ok || in != apimodel.UserDefinedType(image.Input()) {
		result.Add(NewViolationBuilder(RuleInputTypeMismatch).
			WithKind(KindTypeMismatch).
			WithLocation(op.String()).
			WithMessagef("Input types of operation %s (%s) and operation %s (%s) do not match.", op, op.Input(), image, image.Input()).
			Build())
	}
	if out, ok := m.Types.Get(op.Output()); !ok || out != apimodel.UserDefinedType(image.Output()) {
		result.Add(NewViolationBuilder(RuleOutputTypeMismatch).
			WithKind(KindTypeMismatch).
			WithLocation(op.String()).
			WithMessagef("Output types of operation %s (%s) and operation %s (%s) do not match.", op, op.Output(), image, image.Output()).
			Build())
	}

	for _, ex := range op.Exceptions() {
		mapped, ok := m.Types.Get(ex)
		record, isRecord := mapped.(*apimodel.RecordType)
		if !ok || !isRecord || !image.Throws(record) {
			result.Add(NewViolationBuilder(RuleExceptionNotThrown).
				WithKind(KindExceptionSetMismatch).
				WithLocation(op.String()).
				WithMessagef("Exception %s of operation %s is not thrown by operation %s.", ex, op, image).
				Build())
		}
	}

	return result
}
