package revision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
)

func customerHistory(t *testing.T) *History {
	t.Helper()
	rev0, rev1 := customerRevisions(t)
	h, err := NewHistory("customers", rev0, rev1)
	require.NoError(t, err)
	return h
}

func fieldNames(r *apimodel.RecordType) []string {
	var names []string
	for _, f := range r.AllFields() {
		names = append(names, f.PublicName())
	}
	return names
}

func memberNames(e *apimodel.EnumType) []string {
	var names []string
	for _, m := range e.Members() {
		names = append(names, m.PublicName())
	}
	return names
}

func TestMerge_SingleRevision(t *testing.T) {
	h := customerHistory(t)

	merged, err := h.Merge([]int{0})
	require.NoError(t, err)

	def := merged.Definition()
	assert.Equal(t, 0, def.Revision())
	assert.Equal(t, []int{0}, merged.Supported())

	customer, ok := def.TypeByName("Customer")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "legacyCode"}, fieldNames(customer.(*apimodel.RecordType)))

	rev, ok := merged.RevisionOf(customer)
	require.True(t, ok)
	assert.Equal(t, 0, rev)
}

func TestMerge_NewestVariantWins(t *testing.T) {
	h := customerHistory(t)

	merged, err := h.Merge([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, merged.Supported())

	def := merged.Definition()
	assert.Equal(t, 1, def.Revision())

	customer, _ := def.TypeByName("Customer")
	record := customer.(*apimodel.RecordType)
	// the renamed field appears once under its new name, the removed field is
	// carried for clients of revision 0
	assert.Equal(t, []string{"id", "fullName", "legacyCode"}, fieldNames(record))

	fullName, _ := record.FieldByName("fullName")
	assert.Equal(t, apimodel.UnboundedString(), fullName.Type())
	rev, _ := merged.RevisionOf(fullName)
	assert.Equal(t, 1, rev)
	legacy, _ := record.FieldByName("legacyCode")
	rev, _ = merged.RevisionOf(legacy)
	assert.Equal(t, 0, rev)

	status, _ := def.TypeByName("Status")
	assert.Equal(t, []string{"ACTIVE", "ARCHIVED", "LOCKED"}, memberNames(status.(*apimodel.EnumType)))

	// revision 0 maps its old field onto the renamed one
	toMerged, ok := merged.MapFrom(0)
	require.True(t, ok)
	name0, _ := h.Revisions()[0].Records()[0].FieldByName("name")
	assert.Same(t, fullName, toMerged.Fields[name0])

	_, ok = merged.MapFrom(5)
	assert.False(t, ok)
}

func TestMerge_DropsUnsupportedLineages(t *testing.T) {
	h := customerHistory(t)

	merged, err := h.Merge([]int{1})
	require.NoError(t, err)

	customer, _ := merged.Definition().TypeByName("Customer")
	assert.Equal(t, []string{"id", "fullName"}, fieldNames(customer.(*apimodel.RecordType)))
	status, _ := merged.Definition().TypeByName("Status")
	assert.Equal(t, []string{"ACTIVE", "ARCHIVED"}, memberNames(status.(*apimodel.EnumType)))
}

func TestMerge_HardErrors(t *testing.T) {
	h := customerHistory(t)

	_, err := h.Merge(nil)
	assert.ErrorIs(t, err, ErrNoSupportedRevisions)

	_, err = h.Merge([]int{0, 4})
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestMerge_MostPermissiveOptionality(t *testing.T) {
	b0 := apimodel.NewProviderBuilder("test", 0, nil)
	a0 := b0.AddRecord(apimodel.RecordSpec{Name: "A"})
	f0 := b0.AddField(a0, apimodel.FieldSpec{Name: "f", Type: apimodel.Int32, Optionality: apimodel.Optional})
	g0 := b0.AddField(a0, apimodel.FieldSpec{Name: "g", Type: apimodel.Int32, Optionality: apimodel.Mandatory})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("test", 1, rev0)
	a1 := b1.AddRecord(apimodel.RecordSpec{Name: "A", Predecessor: a0})
	b1.AddField(a1, apimodel.FieldSpec{Name: "f", Type: apimodel.Int32, Optionality: apimodel.Mandatory, Predecessor: f0})
	b1.AddField(a1, apimodel.FieldSpec{Name: "g", Type: apimodel.Int32, Optionality: apimodel.OptIn, Predecessor: g0})
	rev1 := mustBuild(t, b1)

	h, err := NewHistory("test", rev0, rev1)
	require.NoError(t, err)

	merged, err := h.Merge([]int{0, 1})
	require.NoError(t, err)
	a, _ := merged.Definition().TypeByName("A")
	f, _ := a.(*apimodel.RecordType).FieldByName("f")
	g, _ := a.(*apimodel.RecordType).FieldByName("g")
	assert.Equal(t, apimodel.Optional, f.Optionality())
	assert.Equal(t, apimodel.OptIn, g.Optionality())

	merged, err = h.Merge([]int{1})
	require.NoError(t, err)
	a, _ = merged.Definition().TypeByName("A")
	f, _ = a.(*apimodel.RecordType).FieldByName("f")
	assert.Equal(t, apimodel.Mandatory, f.Optionality())
}

func TestMerge_ExceptionUnion(t *testing.T) {
	b0 := apimodel.NewProviderBuilder("test", 0, nil)
	req0 := b0.AddRecord(apimodel.RecordSpec{Name: "Request", TypeID: 1})
	notFound0 := b0.AddRecord(apimodel.RecordSpec{Name: "NotFound", TypeID: 2, Exception: true})
	op0 := b0.AddOperation(apimodel.OperationSpec{Name: "get", Input: req0, Output: req0, Throws: []*apimodel.RecordType{notFound0}})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("test", 1, rev0)
	req1 := b1.AddRecord(apimodel.RecordSpec{Name: "Request", TypeID: 1, Predecessor: req0})
	b1.AddRecord(apimodel.RecordSpec{Name: "NotFound", TypeID: 2, Exception: true, Predecessor: notFound0})
	denied1 := b1.AddRecord(apimodel.RecordSpec{Name: "Denied", TypeID: 3, Exception: true})
	b1.AddOperation(apimodel.OperationSpec{Name: "get", Input: req1, Output: req1, Throws: []*apimodel.RecordType{denied1}, Predecessor: op0})
	rev1 := mustBuild(t, b1)

	h, err := NewHistory("test", rev0, rev1)
	require.NoError(t, err)

	merged, err := h.Merge([]int{0, 1})
	require.NoError(t, err)

	op, ok := merged.Definition().OperationByName("get")
	require.True(t, ok)
	var names []string
	for _, ex := range op.Exceptions() {
		names = append(names, ex.PublicName())
	}
	assert.Equal(t, []string{"Denied", "NotFound"}, names)

	merged, err = h.Merge([]int{1})
	require.NoError(t, err)
	op, _ = merged.Definition().OperationByName("get")
	require.Len(t, op.Exceptions(), 1)
	assert.Equal(t, "Denied", op.Exceptions()[0].PublicName())
}

func TestMerge_IncompatibleLineage(t *testing.T) {
	b0 := apimodel.NewProviderBuilder("test", 0, nil)
	a0 := b0.AddRecord(apimodel.RecordSpec{Name: "A"})
	f0 := b0.AddField(a0, apimodel.FieldSpec{Name: "f", Type: apimodel.Int64})
	s0 := b0.AddField(a0, apimodel.FieldSpec{Name: "s", Type: apimodel.BoundedString(10)})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("test", 1, rev0)
	a1 := b1.AddRecord(apimodel.RecordSpec{Name: "A", Predecessor: a0})
	b1.AddField(a1, apimodel.FieldSpec{Name: "f", Type: apimodel.Int32, Predecessor: f0})
	b1.AddField(a1, apimodel.FieldSpec{Name: "s", Type: apimodel.BoundedString(20), Predecessor: s0})
	rev1 := mustBuild(t, b1)

	h, err := NewHistory("test", rev0, rev1)
	require.NoError(t, err)

	_, err = h.Merge([]int{0, 1})
	require.Error(t, err)

	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	// widening the string bound is compatible, changing the atomic kind is not
	require.Len(t, violations.Violations, 1)
	assert.Equal(t, compatibility.KindLineageInconsistency, violations.Violations[0].Kind)
	assert.Contains(t, err.Error(), "do not match")
	assert.Contains(t, err.Error(), "f@A@revision 0")

	_, err = h.Merge([]int{1})
	assert.NoError(t, err)
	_, err = h.Merge([]int{0})
	assert.NoError(t, err)
}

func TestMerge_SuperTypeConsistency(t *testing.T) {
	b0 := apimodel.NewProviderBuilder("test", 0, nil)
	base0 := b0.AddRecord(apimodel.RecordSpec{Name: "Base", TypeID: 1})
	other0 := b0.AddRecord(apimodel.RecordSpec{Name: "Other", TypeID: 2})
	sub0 := b0.AddRecord(apimodel.RecordSpec{Name: "Sub", TypeID: 3, Super: base0})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("test", 1, rev0)
	b1.AddRecord(apimodel.RecordSpec{Name: "Base", TypeID: 1, Predecessor: base0})
	other1 := b1.AddRecord(apimodel.RecordSpec{Name: "Other", TypeID: 2, Predecessor: other0})
	b1.AddRecord(apimodel.RecordSpec{Name: "Sub", TypeID: 3, Super: other1, Predecessor: sub0})
	rev1 := mustBuild(t, b1)

	h, err := NewHistory("test", rev0, rev1)
	require.NoError(t, err)

	_, err = h.Merge([]int{0, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Super type Base@revision 0 of Sub@revision 0 is not the super type of Sub@revision 1.")
}

func TestMerge_InheritedFieldsFollowMergedSuperType(t *testing.T) {
	b0 := apimodel.NewProviderBuilder("test", 0, nil)
	base0 := b0.AddRecord(apimodel.RecordSpec{Name: "Base", TypeID: 1})
	id0 := b0.AddField(base0, apimodel.FieldSpec{Name: "id", Type: apimodel.Int64})
	sub0 := b0.AddRecord(apimodel.RecordSpec{Name: "Sub", TypeID: 2, Super: base0})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("test", 1, rev0)
	base1 := b1.AddRecord(apimodel.RecordSpec{Name: "Base", TypeID: 1, Predecessor: base0})
	b1.AddField(base1, apimodel.FieldSpec{Name: "key", Type: apimodel.Int64, Predecessor: id0})
	b1.AddRecord(apimodel.RecordSpec{Name: "Sub", TypeID: 2, Super: base1, Predecessor: sub0})
	rev1 := mustBuild(t, b1)

	h, err := NewHistory("test", rev0, rev1)
	require.NoError(t, err)

	merged, err := h.Merge([]int{0, 1})
	require.NoError(t, err)

	toMerged, _ := merged.MapFrom(0)
	inherited := sub0.AllFields()[0]
	image := toMerged.Fields[inherited]
	require.NotNil(t, image)
	assert.Equal(t, "key", image.PublicName())
	assert.True(t, image.Inherited())
	assert.Equal(t, "Sub", image.Owner().PublicName())
}

func TestMerge_NameCollision(t *testing.T) {
	b0 := apimodel.NewProviderBuilder("test", 0, nil)
	b0.AddRecord(apimodel.RecordSpec{Name: "Item", TypeID: 1})
	rev0 := mustBuild(t, b0)

	// revision 1 drops Item and introduces an unrelated type of the same name
	b1 := apimodel.NewProviderBuilder("test", 1, rev0)
	b1.AddEnum(apimodel.EnumSpec{Name: "Item", TypeID: 2})
	rev1 := mustBuild(t, b1)

	h, err := NewHistory("test", rev0, rev1)
	require.NoError(t, err)

	_, err = h.Merge([]int{0, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share the name Item")

	merged, err := h.Merge([]int{1})
	require.NoError(t, err)
	item, _ := merged.Definition().TypeByName("Item")
	assert.Equal(t, apimodel.KindEnum, item.Kind())
}
