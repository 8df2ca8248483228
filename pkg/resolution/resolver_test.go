package resolution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/revision"
)

func mustBuild(t *testing.T, b *apimodel.Builder) *apimodel.Definition {
	t.Helper()
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func singleRevision(t *testing.T, provider *apimodel.Definition) *revision.History {
	t.Helper()
	h, err := revision.NewHistory(provider.Name(), provider)
	require.NoError(t, err)
	return h
}

func resolve(t *testing.T, h *revision.History, supported []int, consumer *apimodel.Definition) (*DefinitionResolution, error) {
	t.Helper()
	return NewResolver().Resolve(h, supported, consumer)
}

func addBasicFields(b *apimodel.Builder, r *apimodel.RecordType) {
	b.AddField(r, apimodel.FieldSpec{Name: "int32Field", Type: apimodel.Int32})
	b.AddField(r, apimodel.FieldSpec{Name: "int64Field", Type: apimodel.Int64})
	b.AddField(r, apimodel.FieldSpec{Name: "unboundedStringField", Type: apimodel.UnboundedString()})
	b.AddField(r, apimodel.FieldSpec{Name: "boundedStringField", Type: apimodel.BoundedString(10)})
	b.AddField(r, apimodel.FieldSpec{Name: "unboundedListField", Type: apimodel.UnboundedList(apimodel.UnboundedString())})
	b.AddField(r, apimodel.FieldSpec{Name: "boundedListField", Type: apimodel.BoundedList(apimodel.UnboundedString(), 10)})
	b.AddField(r, apimodel.FieldSpec{Name: "numericField", Type: apimodel.Numeric(5, 0)})
}

func TestResolve_MatchingBasicTypeFields(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	addBasicFields(cb, cb.AddRecord(apimodel.RecordSpec{Name: "TestType"}))
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	addBasicFields(pb, pb.AddRecord(apimodel.RecordSpec{Name: "TestType"}))
	provider := mustBuild(t, pb)

	res, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.NoError(t, err)

	expected := "TestType -> TestType@revision 0\n" +
		" int32Field -> int32Field@TestType@revision 0\n" +
		" int64Field -> int64Field@TestType@revision 0\n" +
		" unboundedStringField -> unboundedStringField@TestType@revision 0\n" +
		" boundedStringField -> boundedStringField@TestType@revision 0\n" +
		" unboundedListField -> unboundedListField@TestType@revision 0\n" +
		" boundedListField -> boundedListField@TestType@revision 0\n" +
		" numericField -> numericField@TestType@revision 0\n"
	assert.Equal(t, expected, Printer{}.Print(res))
}

func TestResolve_MissingMappingForMandatoryField(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	ct := cb.AddRecord(apimodel.RecordSpec{Name: "Test", TypeID: 1})
	cb.AddField(ct, apimodel.FieldSpec{Name: "optionalField", Type: apimodel.Int32, Optionality: apimodel.Optional})
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pt := pb.AddRecord(apimodel.RecordSpec{Name: "Test", TypeID: 1})
	pb.AddField(pt, apimodel.FieldSpec{Name: "mandatoryField", Type: apimodel.Int32})
	pb.AddField(pt, apimodel.FieldSpec{Name: "optionalField", Type: apimodel.Int32, Optionality: apimodel.Optional})
	provider := mustBuild(t, pb)

	_, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not mapped")

	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	assert.True(t, violations.HasKind(compatibility.KindMissingMandatoryMapping))
}

func TestResolve_IncompatibleBaseTypes(t *testing.T) {
	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pt := pb.AddRecord(apimodel.RecordSpec{Name: "TestType"})
	pb.AddField(pt, apimodel.FieldSpec{Name: "testField", Type: apimodel.Int32})
	provider := mustBuild(t, pb)

	cb := apimodel.NewConsumerBuilder("test", 0)
	ct := cb.AddRecord(apimodel.RecordSpec{Name: "TestType"})
	cb.AddField(ct, apimodel.FieldSpec{Name: "testField", Type: apimodel.Int64})
	consumer := mustBuild(t, cb)

	_, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
}

func TestResolve_MapEnumMembers(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	ce := cb.AddEnum(apimodel.EnumSpec{Name: "TestEnum"})
	cb.AddMember(ce, apimodel.MemberSpec{Name: "MEMBER_A"})
	cb.AddMember(ce, apimodel.MemberSpec{Name: "MEMBER_B"})
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pe := pb.AddEnum(apimodel.EnumSpec{Name: "TestEnum"})
	pb.AddMember(pe, apimodel.MemberSpec{Name: "MEMBER_A"})
	pb.AddMember(pe, apimodel.MemberSpec{Name: "MEMBER_B"})
	provider := mustBuild(t, pb)

	res, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.NoError(t, err)

	expected := "TestEnum -> TestEnum\n" + " MEMBER_A -> MEMBER_A\n" + " MEMBER_B -> MEMBER_B\n"
	assert.Equal(t, expected, Printer{}.Print(res))
}

func TestResolve_EnumSubsetsNeverFail(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	ce := cb.AddEnum(apimodel.EnumSpec{Name: "Color"})
	red := cb.AddMember(ce, apimodel.MemberSpec{Name: "RED"})
	purple := cb.AddMember(ce, apimodel.MemberSpec{Name: "PURPLE"})
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pe := pb.AddEnum(apimodel.EnumSpec{Name: "Color"})
	pb.AddMember(pe, apimodel.MemberSpec{Name: "RED"})
	green := pb.AddMember(pe, apimodel.MemberSpec{Name: "GREEN"})
	provider := mustBuild(t, pb)

	res, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.NoError(t, err)

	mapped, ok := res.MapMember(red)
	require.True(t, ok)
	assert.Equal(t, "RED", mapped.PublicName())
	_, ok = res.MapMember(purple)
	assert.False(t, ok)

	consumerOnly, providerOnly := res.UnmappedMembers(ce)
	assert.Equal(t, []*apimodel.EnumMember{purple}, consumerOnly)
	require.Len(t, providerOnly, 1)
	assert.Equal(t, green.PublicName(), providerOnly[0].PublicName())
}

func TestResolve_MapServicesAndOperations(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	consumerRecord := cb.AddRecord(apimodel.RecordSpec{Name: "RecordType", InternalName: "ConsumerRecordType", TypeID: 0})
	consumerException := cb.AddRecord(apimodel.RecordSpec{Name: "ExceptionType", InternalName: "ConsumerExceptionType", TypeID: 1, Exception: true})
	cb.AddOperation(apimodel.OperationSpec{
		Name:         "operation",
		InternalName: "consumerOperation",
		Input:        consumerRecord,
		Output:       consumerRecord,
		Throws:       []*apimodel.RecordType{consumerException},
	})
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	providerRecord := pb.AddRecord(apimodel.RecordSpec{Name: "RecordType", InternalName: "ProviderRecordType", TypeID: 0})
	providerException := pb.AddRecord(apimodel.RecordSpec{Name: "ExceptionType", InternalName: "ProviderExceptionType", TypeID: 1, Exception: true})
	pb.AddOperation(apimodel.OperationSpec{
		Name:         "operation",
		InternalName: "providerOperation",
		Input:        providerRecord,
		Output:       providerRecord,
		Throws:       []*apimodel.RecordType{providerException},
	})
	provider := mustBuild(t, pb)

	res, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.NoError(t, err)

	expected := "ExceptionType(ConsumerExceptionType) -> ProviderExceptionType@revision 0\n" +
		"RecordType(ConsumerRecordType) -> ProviderRecordType@revision 0\n" +
		"operation(consumerOperation) -> operation(providerOperation)\n"
	assert.Equal(t, expected, Printer{}.Print(res))

	assert.Equal(t, compatibility.UsageInOut, res.Usage(consumerRecord))
	assert.Equal(t, compatibility.UsageOutput, res.Usage(consumerException))
}

func TestResolve_ExceptionNotThrownByProvider(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	req := cb.AddRecord(apimodel.RecordSpec{Name: "Request", TypeID: 0})
	fault := cb.AddRecord(apimodel.RecordSpec{Name: "Fault", TypeID: 1, Exception: true})
	cb.AddOperation(apimodel.OperationSpec{Name: "call", Input: req, Output: req, Throws: []*apimodel.RecordType{fault}})
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	preq := pb.AddRecord(apimodel.RecordSpec{Name: "Request", TypeID: 0})
	pb.AddRecord(apimodel.RecordSpec{Name: "Fault", TypeID: 1, Exception: true})
	pb.AddOperation(apimodel.OperationSpec{Name: "call", Input: preq, Output: preq})
	provider := mustBuild(t, pb)

	_, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.Error(t, err)

	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	assert.True(t, violations.HasKind(compatibility.KindExceptionSetMismatch))
	assert.Contains(t, err.Error(), "is not thrown by operation")
}

func TestResolve_MapListFields(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	ca := cb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	cbRec := cb.AddRecord(apimodel.RecordSpec{Name: "B", TypeID: 1})
	cb.AddField(cbRec, apimodel.FieldSpec{Name: "boundedListField", Type: apimodel.BoundedList(ca, 10)})
	cb.AddField(cbRec, apimodel.FieldSpec{Name: "unboundedListField", Type: apimodel.UnboundedList(ca)})
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pa := pb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	pbRec := pb.AddRecord(apimodel.RecordSpec{Name: "B", TypeID: 1})
	pb.AddField(pbRec, apimodel.FieldSpec{Name: "boundedListField", Type: apimodel.BoundedList(pa, 10)})
	pb.AddField(pbRec, apimodel.FieldSpec{Name: "unboundedListField", Type: apimodel.UnboundedList(pa)})
	provider := mustBuild(t, pb)

	res, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.NoError(t, err)

	expected := "A -> A@revision 0\n" +
		"B -> B@revision 0\n" +
		" boundedListField -> boundedListField@B@revision 0\n" +
		" unboundedListField -> unboundedListField@B@revision 0\n"
	assert.Equal(t, expected, Printer{}.Print(res))
}

func TestResolve_IncompatibleRecordTypes(t *testing.T) {
	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pa := pb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	pbRec := pb.AddRecord(apimodel.RecordSpec{Name: "B", TypeID: 1})
	pb.AddRecord(apimodel.RecordSpec{Name: "C", TypeID: 2})
	pb.AddField(pa, apimodel.FieldSpec{Name: "field", Type: pbRec})
	provider := mustBuild(t, pb)

	cb := apimodel.NewConsumerBuilder("test", 0)
	ca := cb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	cb.AddRecord(apimodel.RecordSpec{Name: "B", TypeID: 1})
	cc := cb.AddRecord(apimodel.RecordSpec{Name: "C", TypeID: 2})
	cb.AddField(ca, apimodel.FieldSpec{Name: "field", Type: cc})
	consumer := mustBuild(t, cb)

	_, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")

	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	assert.True(t, violations.HasKind(compatibility.KindTypeMismatch))
}

func TestResolve_NoMatchingElements(t *testing.T) {
	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pa := pb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	pb.AddOperation(apimodel.OperationSpec{Name: "known", Input: pa, Output: pa})
	provider := mustBuild(t, pb)

	cb := apimodel.NewConsumerBuilder("test", 0)
	ca := cb.AddRecord(apimodel.RecordSpec{Name: "A", TypeID: 0})
	cb.AddField(ca, apimodel.FieldSpec{Name: "extra", Type: apimodel.Int32, Optionality: apimodel.Optional})
	cb.AddRecord(apimodel.RecordSpec{Name: "Missing", TypeID: 1})
	cb.AddOperation(apimodel.OperationSpec{Name: "unknown", Input: ca, Output: ca})
	consumer := mustBuild(t, cb)

	_, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.Error(t, err)

	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	var rules []string
	for _, v := range violations.Violations {
		rules = append(rules, v.Rule)
	}
	// every problem of the pass is reported, in discovery order
	assert.Equal(t, []string{
		compatibility.RuleNoMatchingType,
		compatibility.RuleNoMatchingField,
		compatibility.RuleNoMatchingOperation,
	}, rules)
}

func TestResolve_UnsupportedConsumerRevision(t *testing.T) {
	pb := apimodel.NewProviderBuilder("test", 0, nil)
	pb.AddRecord(apimodel.RecordSpec{Name: "A"})
	provider := mustBuild(t, pb)

	consumer := mustBuild(t, apimodel.NewConsumerBuilder("test", 3))

	_, err := resolve(t, singleRevision(t, provider), []int{0}, consumer)
	require.Error(t, err)
	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	assert.True(t, violations.HasKind(compatibility.KindUnsupportedRevision))
	assert.Contains(t, err.Error(), "Revision 3 referenced by consumer definition test is not supported")
}

func TestResolve_HardErrors(t *testing.T) {
	pb := apimodel.NewProviderBuilder("test", 0, nil)
	provider := mustBuild(t, pb)
	h := singleRevision(t, provider)
	consumer := mustBuild(t, apimodel.NewConsumerBuilder("test", 0))

	_, err := resolve(t, h, nil, consumer)
	assert.ErrorIs(t, err, revision.ErrNoSupportedRevisions)

	_, err = resolve(t, h, []int{9}, consumer)
	assert.ErrorIs(t, err, revision.ErrUnknownRevision)

	_, err = resolve(t, h, []int{0}, provider)
	assert.ErrorIs(t, err, ErrNotConsumerDefinition)
}

func TestResolve_Idempotent(t *testing.T) {
	cb := apimodel.NewConsumerBuilder("test", 0)
	addBasicFields(cb, cb.AddRecord(apimodel.RecordSpec{Name: "TestType"}))
	consumer := mustBuild(t, cb)

	pb := apimodel.NewProviderBuilder("test", 0, nil)
	addBasicFields(pb, pb.AddRecord(apimodel.RecordSpec{Name: "TestType"}))
	h := singleRevision(t, mustBuild(t, pb))

	first, err := resolve(t, h, []int{0}, consumer)
	require.NoError(t, err)
	second, err := resolve(t, h, []int{0}, consumer)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, Printer{}.Print(first), Printer{}.Print(second))
}
