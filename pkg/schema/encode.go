package schema

import (
	"fmt"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

// Encode renders a definition as a document. Compiling the result against
// the same predecessor yields an equivalent definition.
func Encode(def *apimodel.Definition) *Document {
	doc := &Document{
		API:      def.Name(),
		Revision: def.Revision(),
		Side:     def.Side().String(),
	}
	pred := def.Predecessor()

	for _, r := range def.Records() {
		id := r.TypeID()
		rd := RecordDoc{
			Name:      r.PublicName(),
			Internal:  internalOf(r.PublicName(), r.InternalName()),
			ID:        &id,
			Exception: r.IsException(),
			Abstract:  r.IsAbstract(),
		}
		if s := r.Super(); s != nil {
			rd.Extends = s.PublicName()
		}
		if pred != nil {
			p, ok := r.Predecessor()
			rd.Replaces, rd.New = lineageOf(r.InternalName(), p, ok, hasType(pred, r.InternalName()))
		}

		for _, f := range r.DeclaredFields() {
			fd := FieldDoc{
				Name:     f.PublicName(),
				Internal: internalOf(f.PublicName(), f.InternalName()),
				Type:     encodeType(f.Type()),
			}
			if f.Optionality() != apimodel.Mandatory {
				fd.Optionality = f.Optionality().String()
			}
			if pred != nil {
				fd.Replaces, fd.New = fieldLineage(f)
			}
			rd.Fields = append(rd.Fields, fd)
		}
		doc.Records = append(doc.Records, rd)
	}

	for _, e := range def.Enums() {
		id := e.TypeID()
		ed := EnumDoc{
			Name:     e.PublicName(),
			Internal: internalOf(e.PublicName(), e.InternalName()),
			ID:       &id,
		}
		ePred, hasPred := e.Predecessor()
		if pred != nil {
			ed.Replaces, ed.New = lineageOf(e.InternalName(), ePred, hasPred, hasType(pred, e.InternalName()))
		}
		for _, m := range e.Members() {
			md := MemberDoc{Name: m.PublicName(), Internal: internalOf(m.PublicName(), m.InternalName())}
			if hasPred {
				p, ok := m.Predecessor()
				md.Replaces, md.New = lineageOf(m.InternalName(), p, ok, hasMember(ePred, m.InternalName()))
			}
			ed.Members = append(ed.Members, md)
		}
		doc.Enums = append(doc.Enums, ed)
	}

	for _, op := range def.Operations() {
		od := OperationDoc{
			Name:     op.PublicName(),
			Internal: internalOf(op.PublicName(), op.InternalName()),
			Input:    op.Input().PublicName(),
			Output:   op.Output().PublicName(),
		}
		for _, ex := range op.Exceptions() {
			od.Throws = append(od.Throws, ex.PublicName())
		}
		if pred != nil {
			p, ok := op.Predecessor()
			od.Replaces, od.New = lineageOf(op.InternalName(), p, ok, hasOperation(pred, op.InternalName()))
		}
		doc.Operations = append(doc.Operations, od)
	}
	return doc
}

func internalOf(public, internal string) string {
	if public == internal {
		return ""
	}
	return internal
}

type named interface {
	InternalName() string
}

// lineageOf returns the replaces and new markers that reproduce the
// predecessor of an element under the default linking by internal name
func lineageOf[T named](internal string, pred T, hasPred, sameNameExists bool) (string, bool) {
	switch {
	case !hasPred:
		return "", sameNameExists
	case pred.InternalName() != internal:
		return pred.InternalName(), false
	default:
		return "", false
	}
}

func fieldLineage(f *apimodel.Field) ([]string, bool) {
	declared := f.DeclaredPredecessors()
	if len(declared) > 1 || (len(declared) == 1 && declared[0].InternalName() != f.InternalName()) {
		names := make([]string, 0, len(declared))
		for _, p := range declared {
			names = append(names, p.InternalName())
		}
		return names, false
	}
	if len(declared) == 1 {
		return nil, false
	}
	ownerPred, ok := f.Owner().Predecessor()
	if !ok {
		return nil, false
	}
	_, exists := declaredField(ownerPred, f.InternalName())
	return nil, exists
}

func hasType(def *apimodel.Definition, internal string) bool {
	_, ok := def.TypeByInternalName(internal)
	return ok
}

func hasMember(e *apimodel.EnumType, internal string) bool {
	for _, m := range e.Members() {
		if m.InternalName() == internal {
			return true
		}
	}
	return false
}

func hasOperation(def *apimodel.Definition, internal string) bool {
	for _, op := range def.Operations() {
		if op.InternalName() == internal {
			return true
		}
	}
	return false
}

func encodeType(t apimodel.Type) TypeExpr {
	switch tt := t.(type) {
	case *apimodel.AtomicType:
		return TypeExpr{Name: tt.Atomic.String()}
	case *apimodel.StringType:
		if tt.Bound.IsBounded() {
			return TypeExpr{Kind: KindString, Bound: int(tt.Bound)}
		}
		return TypeExpr{Name: KindString}
	case *apimodel.NumericType:
		return TypeExpr{Kind: KindNumeric, Precision: tt.Precision, Scale: tt.Scale}
	case *apimodel.ListType:
		element := encodeType(tt.Element)
		return TypeExpr{Kind: KindList, Element: &element, Bound: int(tt.Bound)}
	case *apimodel.RecordType:
		return TypeExpr{Name: tt.PublicName()}
	case *apimodel.EnumType:
		return TypeExpr{Name: tt.PublicName()}
	default:
		panic(fmt.Sprintf("unknown type %T", t))
	}
}
