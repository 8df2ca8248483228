// Package apimodel holds the structural model of API definitions: record and
// enum types, fields, enum members and operations, together with the lineage
// that links the elements of a provider revision to the elements they
// replace in the previous revision.
//
// # Construction
//
// Definitions are assembled with a Builder and frozen by Build. A frozen
// Definition has no mutating methods and can be shared between goroutines.
//
//	b := apimodel.NewProviderBuilder("orders", 1, revision0)
//	order := b.AddRecord(apimodel.RecordSpec{Name: "Order", TypeID: 1, Predecessor: oldOrder})
//	b.AddField(order, apimodel.FieldSpec{
//		Name:        "customerId",
//		Type:        apimodel.Int64,
//		Optionality: apimodel.Mandatory,
//		Predecessor: oldCustomerID,
//	})
//	revision1, err := b.Build()
//
// # Lineage
//
// Every definition keeps its types, declared fields, enum members and
// operations in arenas (one slice per ElementKind). An element stores its own
// arena index and the index of its predecessor in the predecessor
// definition, so Predecessor is a slice lookup. Successors and lineage ids
// are indexed by revision.History.
//
// Inherited fields are materialized on every sub type with Inherited set.
// They have no lineage of their own; Origin returns the declared field they
// were copied from.
package apimodel
