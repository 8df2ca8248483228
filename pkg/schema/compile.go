package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

// ErrMissingPredecessor is returned when a replaces entry names an element
// the previous revision does not have
var ErrMissingPredecessor = errors.New("missing predecessor")

// Compile builds the definition described by doc. Provider documents are
// linked to predecessor, the previous revision of the same API: unless an
// element is marked new or names what it replaces, it continues the element
// of the previous revision with the same internal name.
func Compile(doc *Document, predecessor *apimodel.Definition) (*apimodel.Definition, error) {
	side, err := apimodel.ParseSide(doc.Side)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	c := &compiler{
		doc:     doc,
		records: make(map[string]*apimodel.RecordType),
		enums:   make(map[string]*apimodel.EnumType),
		docs:    make(map[string]*RecordDoc),
	}
	switch side {
	case apimodel.SideConsumer:
		if predecessor != nil {
			return nil, fmt.Errorf("%w: consumer definition %s cannot have a predecessor", ErrInvalidDocument, doc.API)
		}
		c.b = apimodel.NewConsumerBuilder(doc.API, doc.Revision)
	default:
		c.b = apimodel.NewProviderBuilder(doc.API, doc.Revision, predecessor)
		c.pred = predecessor
	}

	c.assignTypeIDs()
	c.addTypes()
	c.addFields()
	c.addOperations()
	if len(c.errs) > 0 {
		return nil, fmt.Errorf("%w %s revision %d: %w", ErrInvalidDocument, doc.API, doc.Revision, errors.Join(c.errs...))
	}
	return c.b.Build()
}

type compiler struct {
	doc  *Document
	b    *apimodel.Builder
	pred *apimodel.Definition
	errs []error

	ids     map[string]int
	records map[string]*apimodel.RecordType
	enums   map[string]*apimodel.EnumType
	docs    map[string]*RecordDoc
}

func (c *compiler) errorf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

func (c *compiler) missingf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf("%w: %s", ErrMissingPredecessor, fmt.Sprintf(format, args...)))
}

// assignTypeIDs keeps explicit ids and numbers the remaining types with the
// lowest unused ids, records first.
func (c *compiler) assignTypeIDs() {
	c.ids = make(map[string]int)
	used := make(map[int]bool)
	for _, r := range c.doc.Records {
		if r.ID != nil {
			c.ids[r.Name] = *r.ID
			used[*r.ID] = true
		}
	}
	for _, e := range c.doc.Enums {
		if e.ID != nil {
			c.ids[e.Name] = *e.ID
			used[*e.ID] = true
		}
	}

	next := 0
	assign := func(name string) {
		if _, ok := c.ids[name]; ok {
			return
		}
		for used[next] {
			next++
		}
		c.ids[name] = next
		used[next] = true
	}
	for _, r := range c.doc.Records {
		assign(r.Name)
	}
	for _, e := range c.doc.Enums {
		assign(e.Name)
	}
}

func internalName(public, internal string) string {
	if internal == "" {
		return public
	}
	return internal
}

func (c *compiler) addTypes() {
	for i := range c.doc.Records {
		r := &c.doc.Records[i]
		if _, ok := c.docs[r.Name]; ok {
			c.errorf("duplicate type %s", r.Name)
			continue
		}
		c.docs[r.Name] = r
	}

	visiting := make(map[string]bool)
	for i := range c.doc.Records {
		c.addRecord(&c.doc.Records[i], visiting)
	}

	for _, e := range c.doc.Enums {
		if _, ok := c.docs[e.Name]; ok {
			c.errorf("duplicate type %s", e.Name)
			continue
		}
		spec := apimodel.EnumSpec{
			Name:         e.Name,
			InternalName: e.Internal,
			TypeID:       c.ids[e.Name],
		}
		var pred *apimodel.EnumType
		if t, ok := c.predecessorType(e.Name, internalName(e.Name, e.Internal), e.Replaces, e.New); ok {
			if pred, ok = t.(*apimodel.EnumType); !ok {
				c.errorf("enum %s cannot replace record %s", e.Name, t.InternalName())
			}
		}
		spec.Predecessor = pred
		enum := c.b.AddEnum(spec)
		c.enums[e.Name] = enum

		for _, m := range e.Members {
			ms := apimodel.MemberSpec{Name: m.Name, InternalName: m.Internal}
			if pred != nil {
				ms.Predecessor = c.predecessorMember(pred, m)
			} else if m.Replaces != "" && c.pred != nil {
				c.missingf("No predecessor member %s for member %s of enum %s.", m.Replaces, m.Name, e.Name)
			}
			c.b.AddMember(enum, ms)
		}
	}
}

// addRecord adds a record after its super type
func (c *compiler) addRecord(r *RecordDoc, visiting map[string]bool) *apimodel.RecordType {
	if rec, ok := c.records[r.Name]; ok {
		return rec
	}
	if visiting[r.Name] {
		c.errorf("super type chain of %s is cyclic", r.Name)
		return nil
	}
	visiting[r.Name] = true
	defer delete(visiting, r.Name)

	spec := apimodel.RecordSpec{
		Name:         r.Name,
		InternalName: r.Internal,
		TypeID:       c.ids[r.Name],
		Exception:    r.Exception,
		Abstract:     r.Abstract,
	}
	if r.Extends != "" {
		super, ok := c.docs[r.Extends]
		if !ok {
			c.errorf("unknown super type %s of %s", r.Extends, r.Name)
		} else if spec.Super = c.addRecord(super, visiting); spec.Super == nil {
			return nil
		}
	}
	if t, ok := c.predecessorType(r.Name, internalName(r.Name, r.Internal), r.Replaces, r.New); ok {
		pred, isRecord := t.(*apimodel.RecordType)
		if !isRecord {
			c.errorf("record %s cannot replace enum %s", r.Name, t.InternalName())
		}
		spec.Predecessor = pred
	}

	rec := c.b.AddRecord(spec)
	c.records[r.Name] = rec
	return rec
}

// predecessorType finds the type of the previous revision a type continues
func (c *compiler) predecessorType(name, internal, replaces string, isNew bool) (apimodel.UserDefinedType, bool) {
	if c.pred == nil {
		return nil, false
	}
	if replaces != "" {
		t, ok := c.pred.TypeByInternalName(replaces)
		if !ok {
			c.missingf("No predecessor type %s for type %s.", replaces, name)
		}
		return t, ok
	}
	if isNew {
		return nil, false
	}
	return c.pred.TypeByInternalName(internal)
}

func (c *compiler) predecessorMember(pred *apimodel.EnumType, m MemberDoc) *apimodel.EnumMember {
	target := m.Replaces
	if target == "" {
		if m.New {
			return nil
		}
		target = internalName(m.Name, m.Internal)
	}
	for _, pm := range pred.Members() {
		if pm.InternalName() == target {
			return pm
		}
	}
	if m.Replaces != "" {
		c.missingf("No predecessor member %s for member %s of enum %s.", m.Replaces, m.Name, pred.InternalName())
	}
	return nil
}

func (c *compiler) addFields() {
	for _, r := range c.doc.Records {
		rec, ok := c.records[r.Name]
		if !ok {
			continue
		}
		for _, f := range r.Fields {
			typ, err := c.resolveType(f.Type)
			if err != nil {
				c.errorf("field %s.%s: %w", r.Name, f.Name, err)
				continue
			}
			optionality, err := apimodel.ParseOptionality(strings.ToUpper(f.Optionality))
			if err != nil {
				c.errorf("field %s.%s: %w", r.Name, f.Name, err)
				continue
			}
			c.b.AddField(rec, apimodel.FieldSpec{
				Name:         f.Name,
				InternalName: f.Internal,
				Type:         typ,
				Optionality:  optionality,
				Replaces:     c.predecessorFields(rec, f),
			})
		}
	}
}

// predecessorFields resolves the replaces list of a field against the
// declared fields of the owner's predecessor. Without one the field
// continues the field with the same internal name.
func (c *compiler) predecessorFields(owner *apimodel.RecordType, f FieldDoc) []*apimodel.Field {
	if c.pred == nil {
		return nil
	}
	ownerPred, _ := owner.Predecessor()

	if len(f.Replaces) == 0 {
		if f.New || ownerPred == nil {
			return nil
		}
		if pf, ok := declaredField(ownerPred, internalName(f.Name, f.Internal)); ok {
			return []*apimodel.Field{pf}
		}
		return nil
	}

	var fields []*apimodel.Field
	for _, ref := range f.Replaces {
		var pf *apimodel.Field
		ok := false
		if ownerPred != nil {
			pf, ok = declaredField(ownerPred, ref)
		}
		if !ok {
			c.missingf("No predecessor field %s for field %s.%s.", ref, owner.PublicName(), f.Name)
			continue
		}
		fields = append(fields, pf)
	}
	return fields
}

func declaredField(r *apimodel.RecordType, internal string) (*apimodel.Field, bool) {
	for _, f := range r.DeclaredFields() {
		if f.InternalName() == internal {
			return f, true
		}
	}
	return nil, false
}

func (c *compiler) resolveType(t TypeExpr) (apimodel.Type, error) {
	switch t.Kind {
	case "":
		if k, err := apimodel.ParseAtomicKind(t.Name); err == nil {
			return &apimodel.AtomicType{Atomic: k}, nil
		}
		if t.Name == KindString {
			return apimodel.UnboundedString(), nil
		}
		if r, ok := c.records[t.Name]; ok {
			return r, nil
		}
		if e, ok := c.enums[t.Name]; ok {
			return e, nil
		}
		return nil, fmt.Errorf("unknown type %s", t.Name)

	case KindString:
		if t.Bound > 0 {
			return apimodel.BoundedString(t.Bound), nil
		}
		return apimodel.UnboundedString(), nil

	case KindNumeric:
		return apimodel.Numeric(t.Precision, t.Scale), nil

	case KindList:
		if t.Element == nil {
			return nil, errors.New("list type without element type")
		}
		element, err := c.resolveType(*t.Element)
		if err != nil {
			return nil, err
		}
		if t.Bound > 0 {
			return apimodel.BoundedList(element, t.Bound), nil
		}
		return apimodel.UnboundedList(element), nil

	default:
		return nil, fmt.Errorf("unknown type kind %s", t.Kind)
	}
}

func (c *compiler) addOperations() {
	var predOps map[string]*apimodel.Operation
	if c.pred != nil {
		predOps = make(map[string]*apimodel.Operation)
		for _, op := range c.pred.Operations() {
			predOps[op.InternalName()] = op
		}
	}

	for _, o := range c.doc.Operations {
		spec := apimodel.OperationSpec{
			Name:         o.Name,
			InternalName: o.Internal,
			Input:        c.recordRef(o.Name, "input", o.Input),
			Output:       c.recordRef(o.Name, "output", o.Output),
		}
		for _, ex := range o.Throws {
			spec.Throws = append(spec.Throws, c.recordRef(o.Name, "exception", ex))
		}

		if predOps != nil {
			switch {
			case o.Replaces != "":
				pred, ok := predOps[o.Replaces]
				if !ok {
					c.missingf("No predecessor operation %s for operation %s.", o.Replaces, o.Name)
				}
				spec.Predecessor = pred
			case !o.New:
				spec.Predecessor = predOps[internalName(o.Name, o.Internal)]
			}
		}
		c.b.AddOperation(spec)
	}
}

func (c *compiler) recordRef(op, role, name string) *apimodel.RecordType {
	r, ok := c.records[name]
	if !ok {
		c.errorf("unknown %s record %s of operation %s", role, name, op)
	}
	return r
}
