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

// renameHistory has a Customer record whose field name is renamed to
// fullName in revision 1
func renameHistory(t *testing.T) *revision.History {
	t.Helper()

	b0 := apimodel.NewProviderBuilder("customers", 0, nil)
	c0 := b0.AddRecord(apimodel.RecordSpec{Name: "Customer"})
	name := b0.AddField(c0, apimodel.FieldSpec{Name: "name", Type: apimodel.UnboundedString()})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("customers", 1, rev0)
	c1 := b1.AddRecord(apimodel.RecordSpec{Name: "Customer", Predecessor: c0})
	b1.AddField(c1, apimodel.FieldSpec{Name: "fullName", Type: apimodel.UnboundedString(), Predecessor: name})
	rev1 := mustBuild(t, b1)

	h, err := revision.NewHistory("customers", rev0, rev1)
	require.NoError(t, err)
	return h
}

func customerConsumer(t *testing.T, rev int, field string) (*apimodel.Definition, *apimodel.Field) {
	t.Helper()
	b := apimodel.NewConsumerBuilder("customers", rev)
	c := b.AddRecord(apimodel.RecordSpec{Name: "Customer"})
	f := b.AddField(c, apimodel.FieldSpec{Name: field, Type: apimodel.UnboundedString()})
	return mustBuild(t, b), f
}

func TestResolve_AcrossRenames(t *testing.T) {
	h := renameHistory(t)

	oldClient, oldField := customerConsumer(t, 0, "name")
	newClient, newField := customerConsumer(t, 1, "fullName")

	oldRes, err := resolve(t, h, []int{0, 1}, oldClient)
	require.NoError(t, err)
	newRes, err := resolve(t, h, []int{0, 1}, newClient)
	require.NoError(t, err)

	assert.Equal(t, "Customer -> Customer@revision 1\n name -> fullName@Customer@revision 1\n", Printer{}.Print(oldRes))
	assert.Equal(t, "Customer -> Customer@revision 1\n fullName -> fullName@Customer@revision 1\n", Printer{}.Print(newRes))

	// both clients reach the same merged field
	oldImage, ok := oldRes.MapField(oldField)
	require.True(t, ok)
	newImage, ok := newRes.MapField(newField)
	require.True(t, ok)
	assert.Equal(t, oldImage.String(), newImage.String())
}

func TestResolve_RetiredRevision(t *testing.T) {
	h := renameHistory(t)
	oldClient, _ := customerConsumer(t, 0, "name")

	_, err := resolve(t, h, []int{1}, oldClient)
	require.Error(t, err)

	var violations *compatibility.ViolationError
	require.True(t, errors.As(err, &violations))
	assert.True(t, violations.HasKind(compatibility.KindUnsupportedRevision))
}

func TestResolve_NameOnlyKnownToNewerRevision(t *testing.T) {
	h := renameHistory(t)
	// a client of revision 0 cannot use the name introduced in revision 1
	client, _ := customerConsumer(t, 0, "fullName")

	_, err := resolve(t, h, []int{0, 1}, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No matching field for consumer field")
}

// retiredFieldHistory has an Order record whose field legacy is removed in
// revision 1
func retiredFieldHistory(t *testing.T) *revision.History {
	t.Helper()

	b0 := apimodel.NewProviderBuilder("orders", 0, nil)
	o0 := b0.AddRecord(apimodel.RecordSpec{Name: "Order"})
	id := b0.AddField(o0, apimodel.FieldSpec{Name: "id", Type: apimodel.Int64})
	b0.AddField(o0, apimodel.FieldSpec{Name: "legacy", Type: apimodel.Int32})
	place := b0.AddOperation(apimodel.OperationSpec{Name: "place", Input: o0, Output: o0})
	rev0 := mustBuild(t, b0)

	b1 := apimodel.NewProviderBuilder("orders", 1, rev0)
	o1 := b1.AddRecord(apimodel.RecordSpec{Name: "Order", Predecessor: o0})
	b1.AddField(o1, apimodel.FieldSpec{Name: "id", Type: apimodel.Int64, Predecessor: id})
	b1.AddOperation(apimodel.OperationSpec{Name: "place", Input: o1, Output: o1, Predecessor: place})
	rev1 := mustBuild(t, b1)

	h, err := revision.NewHistory("orders", rev0, rev1)
	require.NoError(t, err)
	return h
}

func orderConsumer(t *testing.T, rev int, fields ...string) *apimodel.Definition {
	t.Helper()
	b := apimodel.NewConsumerBuilder("orders", rev)
	o := b.AddRecord(apimodel.RecordSpec{Name: "Order"})
	for _, name := range fields {
		typ := apimodel.Type(apimodel.Int64)
		if name == "legacy" {
			typ = apimodel.Int32
		}
		b.AddField(o, apimodel.FieldSpec{Name: name, Type: typ})
	}
	b.AddOperation(apimodel.OperationSpec{Name: "place", Input: o, Output: o})
	return mustBuild(t, b)
}

func TestResolve_RemovedFieldKeepsCurrentClients(t *testing.T) {
	h := retiredFieldHistory(t)
	client := orderConsumer(t, 1, "id")

	for _, supported := range [][]int{{1}, {0, 1}} {
		res, err := resolve(t, h, supported, client)
		require.NoError(t, err, "supported %v", supported)
		assert.Equal(t, "Order -> Order@revision 1\n id -> id@Order@revision 1\nplace -> place\n", Printer{}.Print(res))
	}

	res, err := resolve(t, h, []int{0, 1}, client)
	require.NoError(t, err)
	order := res.ConsumerDefinition().Records()[0]
	unmapped := res.UnmappedProviderFields(order)
	require.Len(t, unmapped, 1)
	assert.Equal(t, "legacy", unmapped[0].PublicName())

	require.Len(t, res.Notes(), 1)
	assert.Equal(t, compatibility.KindUnmappedElement, res.Notes()[0].Kind)
	assert.Contains(t, res.Notes()[0].Message, "legacy@Order@revision 0 is not part of revision 1")
}

func TestResolve_RemovedFieldStillRequiredByOlderClients(t *testing.T) {
	h := retiredFieldHistory(t)

	_, err := resolve(t, h, []int{0, 1}, orderConsumer(t, 0, "id", "legacy"))
	require.NoError(t, err)

	_, err = resolve(t, h, []int{0, 1}, orderConsumer(t, 0, "id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Non-optional field legacy@Order@revision 0 is not mapped")
}
