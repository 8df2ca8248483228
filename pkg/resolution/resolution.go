package resolution

import (
	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/revision"
)

// DefinitionResolution maps every element of a consumer definition to the
// merged provider element realizing it. It is only handed out complete.
type DefinitionResolution struct {
	consumer *apimodel.Definition
	merged   *revision.MergedModel
	morphism *compatibility.Morphism
	usage    map[*apimodel.RecordType]compatibility.Usage

	unmappedFields          map[*apimodel.RecordType][]*apimodel.Field
	unmappedConsumerMembers map[*apimodel.EnumType][]*apimodel.EnumMember
	unmappedProviderMembers map[*apimodel.EnumType][]*apimodel.EnumMember
	notes                   []compatibility.Violation
}

// ConsumerDefinition returns the resolved consumer definition
func (r *DefinitionResolution) ConsumerDefinition() *apimodel.Definition { return r.consumer }

// Merged returns the merged provider model the consumer was resolved against
func (r *DefinitionResolution) Merged() *revision.MergedModel { return r.merged }

// MapType returns the provider type of a consumer type
func (r *DefinitionResolution) MapType(t apimodel.UserDefinedType) (apimodel.UserDefinedType, bool) {
	return r.morphism.Types.Get(t)
}

// MapField returns the provider field of a consumer field
func (r *DefinitionResolution) MapField(f *apimodel.Field) (*apimodel.Field, bool) {
	image, ok := r.morphism.Fields[f]
	return image, ok
}

// MapMember returns the provider member of a consumer enum member. Members
// the provider does not know are not mapped.
func (r *DefinitionResolution) MapMember(m *apimodel.EnumMember) (*apimodel.EnumMember, bool) {
	image, ok := r.morphism.Members[m]
	return image, ok
}

// MapOperation returns the provider operation of a consumer operation
func (r *DefinitionResolution) MapOperation(op *apimodel.Operation) (*apimodel.Operation, bool) {
	image, ok := r.morphism.Operations[op]
	return image, ok
}

// Usage returns how the consumer exchanges a record type
func (r *DefinitionResolution) Usage(t *apimodel.RecordType) compatibility.Usage {
	return r.usage[t]
}

// UnmappedProviderFields returns the provider fields of the image of a
// consumer record that the consumer leaves out
func (r *DefinitionResolution) UnmappedProviderFields(t *apimodel.RecordType) []*apimodel.Field {
	return r.unmappedFields[t]
}

// UnmappedMembers returns the members of a consumer enum unknown to the
// provider and the provider members unknown to the consumer
func (r *DefinitionResolution) UnmappedMembers(e *apimodel.EnumType) (consumer, provider []*apimodel.EnumMember) {
	return r.unmappedConsumerMembers[e], r.unmappedProviderMembers[e]
}

// Notes returns the informational violations recorded for tolerated
// absences
func (r *DefinitionResolution) Notes() []compatibility.Violation {
	return r.notes
}
