package revision

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
)

// MergedModel is the provider model visible to clients of a set of
// supported revisions. For every lineage present in a supported revision it
// holds the variant of the newest supported revision containing it.
type MergedModel struct {
	history    *History
	supported  []int
	definition *apimodel.Definition
	maps       map[int]*compatibility.Morphism

	typeOrigin      map[apimodel.UserDefinedType]int
	fieldOrigin     map[*apimodel.Field]int
	memberOrigin    map[*apimodel.EnumMember]int
	operationOrigin map[*apimodel.Operation]int
}

// History returns the history the model was merged from
func (m *MergedModel) History() *History { return m.history }

// Supported returns the merged revision numbers in ascending order
func (m *MergedModel) Supported() []int { return m.supported }

// Definition returns the merged definition. Its revision number is the
// newest supported revision.
func (m *MergedModel) Definition() *apimodel.Definition { return m.definition }

// MapFrom returns the morphism from a supported revision to the merged
// definition
func (m *MergedModel) MapFrom(revision int) (*compatibility.Morphism, bool) {
	morphism, ok := m.maps[revision]
	return morphism, ok
}

// RevisionOf returns the revision a merged element was taken from. It
// accepts types, fields, enum members and operations of the merged
// definition.
func (m *MergedModel) RevisionOf(element any) (int, bool) {
	var (
		rev int
		ok  bool
	)
	switch e := element.(type) {
	case *apimodel.RecordType:
		rev, ok = m.typeOrigin[e]
	case *apimodel.EnumType:
		rev, ok = m.typeOrigin[e]
	case *apimodel.Field:
		rev, ok = m.fieldOrigin[e.Origin()]
	case *apimodel.EnumMember:
		rev, ok = m.memberOrigin[e]
	case *apimodel.Operation:
		rev, ok = m.operationOrigin[e]
	}
	return rev, ok
}

// FieldLabel names a merged field after the revision it was taken from,
// which may be older than the merged definition
func (m *MergedModel) FieldLabel(f *apimodel.Field) string {
	rev, _ := m.RevisionOf(f)
	return fmt.Sprintf("%s@%s@revision %d", f.InternalName(), f.Owner().InternalName(), rev)
}

// Merge computes the merged model of the supported revisions. Unknown or
// missing revisions are hard errors; structural inconsistencies between
// the supported variants of a lineage are reported together as a
// *compatibility.ViolationError.
func (h *History) Merge(supported []int) (*MergedModel, error) {
	positions, err := h.supportedPositions(supported)
	if err != nil {
		return nil, err
	}

	m := &merger{
		history:       h,
		positions:     positions,
		typeVariants:  make(map[LineageID][]apimodel.UserDefinedType),
		fieldVariants: make(map[LineageID][]*apimodel.Field),
		types:         make(map[LineageID]apimodel.UserDefinedType),
		fields:        make(map[LineageID]*apimodel.Field),
		members:       make(map[LineageID]*apimodel.EnumMember),
		operations:    make(map[LineageID]*apimodel.Operation),
		model: &MergedModel{
			history:         h,
			maps:            make(map[int]*compatibility.Morphism),
			typeOrigin:      make(map[apimodel.UserDefinedType]int),
			fieldOrigin:     make(map[*apimodel.Field]int),
			memberOrigin:    make(map[*apimodel.EnumMember]int),
			operationOrigin: make(map[*apimodel.Operation]int),
		},
	}
	for _, pos := range positions {
		m.model.supported = append(m.model.supported, h.revisions[pos].Revision())
	}

	return m.merge()
}

// supportedPositions validates the supported revision numbers and returns
// their chain positions in ascending order without duplicates.
func (h *History) supportedPositions(supported []int) ([]int, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("history %s: %w", h.name, ErrNoSupportedRevisions)
	}

	seen := make(map[int]bool, len(supported))
	positions := make([]int, 0, len(supported))
	for _, number := range supported {
		pos, ok := h.numbers[number]
		if !ok {
			return nil, fmt.Errorf("history %s: revision %d: %w", h.name, number, ErrUnknownRevision)
		}
		if !seen[pos] {
			seen[pos] = true
			positions = append(positions, pos)
		}
	}
	sort.Ints(positions)
	return positions, nil
}

type merger struct {
	history   *History
	positions []int
	builder   *apimodel.Builder
	result    compatibility.Result
	model     *MergedModel

	// variants of every lineage, newest supported revision first
	typeOrder     []LineageID
	typeVariants  map[LineageID][]apimodel.UserDefinedType
	fieldVariants map[LineageID][]*apimodel.Field

	// merged elements per lineage
	types      map[LineageID]apimodel.UserDefinedType
	fields     map[LineageID]*apimodel.Field
	members    map[LineageID]*apimodel.EnumMember
	operations map[LineageID]*apimodel.Operation
}

func (m *merger) merge() (*MergedModel, error) {
	h := m.history
	newest := h.revisions[m.positions[len(m.positions)-1]]
	m.builder = apimodel.NewProviderBuilder(h.name, newest.Revision(), nil)

	m.collectTypes()
	for _, lid := range m.typeOrder {
		m.addType(lid)
	}
	for _, lid := range m.typeOrder {
		switch t := m.types[lid].(type) {
		case *apimodel.RecordType:
			m.addFields(lid, t)
		case *apimodel.EnumType:
			m.addMembers(lid, t)
		}
	}
	m.addOperations()

	def, err := m.builder.Build()
	if err != nil {
		for _, problem := range apimodel.Problems(err) {
			m.result.Add(compatibility.NewViolationBuilder(compatibility.RuleNameCollision).
				WithKind(compatibility.KindLineageInconsistency).
				WithMessagef("Merged model of revisions %v is inconsistent: %v.", m.model.supported, problem).
				Build())
		}
		return nil, m.result.Err()
	}
	m.model.definition = def

	for _, pos := range m.positions {
		morphism := m.toMergedMap(h.revisions[pos])
		m.model.maps[h.revisions[pos].Revision()] = morphism
		m.result.Join(morphism.CheckConsistency())
		m.result.Join(m.checkRecords(morphism))
	}

	if err := m.result.Err(); err != nil {
		return nil, err
	}
	return m.model, nil
}

// collectTypes gathers the type variants of every lineage. Lineages are
// ordered by their first appearance, walking from the newest revision.
func (m *merger) collectTypes() {
	h := m.history
	for i := len(m.positions) - 1; i >= 0; i-- {
		def := h.revisions[m.positions[i]]
		for _, t := range def.Types() {
			lid, _ := h.TypeLineage(t)
			if _, seen := m.typeVariants[lid]; !seen {
				m.typeOrder = append(m.typeOrder, lid)
			}
			m.typeVariants[lid] = append(m.typeVariants[lid], t)
		}
	}
}

// addType creates the merged type of a lineage, creating its super type
// first.
func (m *merger) addType(lid LineageID) apimodel.UserDefinedType {
	if t, ok := m.types[lid]; ok {
		return t
	}
	rep := m.typeVariants[lid][0]

	var merged apimodel.UserDefinedType
	switch t := rep.(type) {
	case *apimodel.RecordType:
		var super *apimodel.RecordType
		if t.Super() != nil {
			superLineage, _ := m.history.TypeLineage(t.Super())
			super, _ = m.addType(superLineage).(*apimodel.RecordType)
		}
		merged = m.builder.AddRecord(apimodel.RecordSpec{
			Name:         t.PublicName(),
			InternalName: t.InternalName(),
			TypeID:       t.TypeID(),
			Super:        super,
			Exception:    t.IsException(),
			Abstract:     t.IsAbstract(),
		})
	case *apimodel.EnumType:
		merged = m.builder.AddEnum(apimodel.EnumSpec{
			Name:         t.PublicName(),
			InternalName: t.InternalName(),
			TypeID:       t.TypeID(),
		})
	}

	m.types[lid] = merged
	m.model.typeOrigin[merged] = rep.Definition().Revision()
	return merged
}

// addFields adds the merged declared fields of a record lineage. The merged
// optionality is the most permissive one of all supported variants.
func (m *merger) addFields(lid LineageID, merged *apimodel.RecordType) {
	var order []LineageID
	for _, variant := range m.typeVariants[lid] {
		for _, f := range variant.(*apimodel.RecordType).DeclaredFields() {
			flid, _ := m.history.FieldLineage(f)
			if _, seen := m.fieldVariants[flid]; !seen {
				order = append(order, flid)
			}
			m.fieldVariants[flid] = append(m.fieldVariants[flid], f)
		}
	}

	for _, flid := range order {
		variants := m.fieldVariants[flid]
		rep := variants[0]
		optionality := rep.Optionality()
		for _, v := range variants[1:] {
			optionality = apimodel.MorePermissive(optionality, v.Optionality())
		}

		f := m.builder.AddField(merged, apimodel.FieldSpec{
			Name:         rep.PublicName(),
			InternalName: rep.InternalName(),
			Type:         m.mergedType(rep.Type()),
			Optionality:  optionality,
		})
		m.fields[flid] = f
		m.model.fieldOrigin[f] = rep.Owner().Definition().Revision()
	}
}

func (m *merger) addMembers(lid LineageID, merged *apimodel.EnumType) {
	for _, variant := range m.typeVariants[lid] {
		for _, member := range variant.(*apimodel.EnumType).Members() {
			mlid, _ := m.history.MemberLineage(member)
			if _, seen := m.members[mlid]; seen {
				continue
			}
			added := m.builder.AddMember(merged, apimodel.MemberSpec{
				Name:         member.PublicName(),
				InternalName: member.InternalName(),
			})
			m.members[mlid] = added
			m.model.memberOrigin[added] = member.Owner().Definition().Revision()
		}
	}
}

// addOperations adds the merged operations. The exceptions of a merged
// operation are the union of the exceptions of all supported variants.
func (m *merger) addOperations() {
	h := m.history

	var order []LineageID
	variants := make(map[LineageID][]*apimodel.Operation)
	for i := len(m.positions) - 1; i >= 0; i-- {
		for _, op := range h.revisions[m.positions[i]].Operations() {
			olid, _ := h.OperationLineage(op)
			if _, seen := variants[olid]; !seen {
				order = append(order, olid)
			}
			variants[olid] = append(variants[olid], op)
		}
	}

	for _, olid := range order {
		rep := variants[olid][0]

		var throws []*apimodel.RecordType
		seen := make(map[*apimodel.RecordType]bool)
		for _, v := range variants[olid] {
			for _, ex := range v.Exceptions() {
				merged, ok := m.mergedType(ex).(*apimodel.RecordType)
				if !ok || seen[merged] || !merged.IsException() {
					continue
				}
				seen[merged] = true
				throws = append(throws, merged)
			}
		}

		input, _ := m.mergedType(rep.Input()).(*apimodel.RecordType)
		output, _ := m.mergedType(rep.Output()).(*apimodel.RecordType)
		op := m.builder.AddOperation(apimodel.OperationSpec{
			Name:         rep.PublicName(),
			InternalName: rep.InternalName(),
			Input:        input,
			Output:       output,
			Throws:       throws,
		})
		m.operations[olid] = op
		m.model.operationOrigin[op] = rep.Definition().Revision()
	}
}

// mergedType translates a type of one of the revisions into the merged
// definition
func (m *merger) mergedType(t apimodel.Type) apimodel.Type {
	switch tt := t.(type) {
	case *apimodel.RecordType:
		lid, _ := m.history.TypeLineage(tt)
		return m.types[lid]
	case *apimodel.EnumType:
		lid, _ := m.history.TypeLineage(tt)
		return m.types[lid]
	case *apimodel.ListType:
		return &apimodel.ListType{Element: m.mergedType(tt.Element), Bound: tt.Bound}
	default:
		return t
	}
}

// toMergedMap maps every element of a supported revision to the merged
// element of its lineage
func (m *merger) toMergedMap(def *apimodel.Definition) *compatibility.Morphism {
	h := m.history
	morphism := compatibility.NewMorphism(def, m.model.definition, compatibility.KindLineageInconsistency)

	for _, t := range def.Types() {
		lid, _ := h.TypeLineage(t)
		morphism.Types.Put(t, m.types[lid])
	}

	for _, r := range def.Records() {
		lid, _ := h.TypeLineage(r)
		image, _ := m.types[lid].(*apimodel.RecordType)
		for _, f := range r.AllFields() {
			flid, _ := h.FieldLineage(f)
			declared := m.fields[flid]
			if !f.Inherited() {
				morphism.Fields[f] = declared
				continue
			}
			for _, candidate := range image.AllFields() {
				if candidate.Inherited() && candidate.Origin() == declared {
					morphism.Fields[f] = candidate
					break
				}
			}
		}
	}

	for _, member := range def.Members() {
		mlid, _ := h.MemberLineage(member)
		morphism.Members[member] = m.members[mlid]
	}
	for _, op := range def.Operations() {
		olid, _ := h.OperationLineage(op)
		morphism.Operations[op] = m.operations[olid]
	}
	return morphism
}

// checkRecords verifies that every supported revision declaring a super
// type agrees with the merged super type, and that the exception flag is
// the same in all variants.
func (m *merger) checkRecords(morphism *compatibility.Morphism) compatibility.Result {
	var result compatibility.Result
	for _, r := range morphism.Source.Records() {
		mapped, _ := morphism.Types.Get(r)
		image, ok := mapped.(*apimodel.RecordType)
		if !ok {
			continue
		}

		if r.Super() != nil {
			superImage, _ := morphism.Types.Get(r.Super())
			if image.Super() == nil || apimodel.UserDefinedType(image.Super()) != superImage {
				result.Add(compatibility.NewViolationBuilder(compatibility.RuleSuperTypeMismatch).
					WithKind(compatibility.KindLineageInconsistency).
					WithLocation(r.String()).
					WithMessagef("Super type %s of %s is not the super type of %s.", r.Super(), r, image).
					Build())
			}
		}

		if r.IsException() != image.IsException() {
			result.Add(compatibility.NewViolationBuilder(compatibility.RuleExceptionFlagMismatch).
				WithKind(compatibility.KindLineageInconsistency).
				WithLocation(r.String()).
				WithMessagef("Exception flags of %s and %s do not match.", r, image).
				Build())
		}
	}
	return result
}
