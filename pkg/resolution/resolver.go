package resolution

import (
	"errors"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/revision"
)

// ErrNotConsumerDefinition is returned when resolving a provider definition
var ErrNotConsumerDefinition = errors.New("not a consumer definition")

// Resolver resolves consumer definitions against revision histories. It
// holds no state and may be shared between goroutines.
type Resolver struct{}

// NewResolver creates a new resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve merges the supported revisions of history and maps consumer onto
// the merged model. The consumer's revision number names the provider
// revision it was written against. All violations are returned together as
// a *compatibility.ViolationError.
func (r *Resolver) Resolve(history *revision.History, supported []int, consumer *apimodel.Definition) (*DefinitionResolution, error) {
	if consumer == nil || consumer.Side() != apimodel.SideConsumer {
		return nil, ErrNotConsumerDefinition
	}

	merged, err := history.Merge(supported)
	if err != nil {
		return nil, err
	}

	toMerged, ok := merged.MapFrom(consumer.Revision())
	if !ok {
		var result compatibility.Result
		result.Add(compatibility.NewViolationBuilder(compatibility.RuleRevisionNotSupported).
			WithKind(compatibility.KindUnsupportedRevision).
			WithLocation(consumer.Name()).
			WithMessagef("Revision %d referenced by consumer definition %s is not supported (supported revisions: %v).",
				consumer.Revision(), consumer.Name(), merged.Supported()).
			Build())
		return nil, result.Err()
	}

	p := &pass{
		consumer:   consumer,
		referenced: toMerged.Source,
		known:      make(map[*apimodel.Field]bool, len(toMerged.Fields)),
		toRevision: compatibility.NewMorphism(consumer, toMerged.Source, compatibility.KindTypeMismatch),
		res: &DefinitionResolution{
			consumer:                consumer,
			merged:                  merged,
			usage:                   computeUsage(consumer),
			unmappedFields:          make(map[*apimodel.RecordType][]*apimodel.Field),
			unmappedConsumerMembers: make(map[*apimodel.EnumType][]*apimodel.EnumMember),
			unmappedProviderMembers: make(map[*apimodel.EnumType][]*apimodel.EnumMember),
		},
	}

	for _, f := range toMerged.Fields {
		p.known[f] = true
	}

	p.matchTypes()
	p.matchElements()
	p.matchOperations()

	p.res.morphism = p.toRevision.Compose(toMerged)
	p.checkOptionalities()
	p.result.Join(p.res.morphism.CheckConsistency())

	if err := p.result.Err(); err != nil {
		return nil, err
	}
	return p.res, nil
}

// pass holds the state of one resolution
type pass struct {
	consumer   *apimodel.Definition
	referenced *apimodel.Definition
	// merged fields whose lineage exists in the referenced revision
	known      map[*apimodel.Field]bool
	toRevision *compatibility.Morphism
	result     compatibility.Result
	res        *DefinitionResolution
}

// matchTypes maps every consumer type by public name before any field is
// looked at, so field types can be checked against the complete type map.
func (p *pass) matchTypes() {
	for _, ct := range p.consumer.Types() {
		pt, ok := p.referenced.TypeByName(ct.PublicName())
		if !ok {
			p.result.Add(compatibility.NewViolationBuilder(compatibility.RuleNoMatchingType).
				WithKind(compatibility.KindUnresolvableType).
				WithLocation(ct.String()).
				WithMessagef("No matching type for consumer type %s.", ct).
				Build())
			continue
		}
		if pt.Kind() != ct.Kind() {
			p.result.Add(compatibility.NewViolationBuilder(compatibility.RuleTypeKindMismatch).
				WithKind(compatibility.KindTypeMismatch).
				WithLocation(ct.String()).
				WithMessagef("Consumer type %s (%s) and provider type %s (%s) are not of the same kind.", ct, ct.Kind(), pt, pt.Kind()).
				Build())
			continue
		}
		p.toRevision.Types.Put(ct, pt)
	}
}

// matchElements maps the fields and enum members of every matched type by
// public name. Unknown enum members are recorded on both sides.
func (p *pass) matchElements() {
	for _, ct := range p.consumer.Types() {
		image, ok := p.toRevision.Types.Get(ct)
		if !ok {
			continue
		}

		switch t := ct.(type) {
		case *apimodel.RecordType:
			pt := image.(*apimodel.RecordType)
			for _, cf := range t.AllFields() {
				pf, ok := pt.FieldByName(cf.PublicName())
				if !ok {
					p.result.Add(compatibility.NewViolationBuilder(compatibility.RuleNoMatchingField).
						WithKind(compatibility.KindUnresolvableType).
						WithLocation(cf.String()).
						WithMessagef("No matching field for consumer field %s in provider type %s.", cf, pt).
						Build())
					continue
				}
				p.toRevision.Fields[cf] = pf
			}

		case *apimodel.EnumType:
			pt := image.(*apimodel.EnumType)
			for _, cm := range t.Members() {
				if pm, ok := pt.MemberByName(cm.PublicName()); ok {
					p.toRevision.Members[cm] = pm
				} else {
					p.res.unmappedConsumerMembers[t] = append(p.res.unmappedConsumerMembers[t], cm)
				}
			}
		}
	}
}

func (p *pass) matchOperations() {
	for _, op := range p.consumer.Operations() {
		pop, ok := p.referenced.OperationByName(op.PublicName())
		if !ok {
			p.result.Add(compatibility.NewViolationBuilder(compatibility.RuleNoMatchingOperation).
				WithKind(compatibility.KindUnresolvableType).
				WithLocation(op.String()).
				WithMessagef("No matching operation for consumer operation %s.", op).
				Build())
			continue
		}
		p.toRevision.Operations[op] = pop
	}
}

// checkOptionalities applies the optionality and usage rules to the merged
// fields of every matched record, and records the provider members an enum
// consumer does not know.
func (p *pass) checkOptionalities() {
	morphism := p.res.morphism

	for _, ct := range p.consumer.Types() {
		image, ok := morphism.Types.Get(ct)
		if !ok {
			continue
		}

		switch t := ct.(type) {
		case *apimodel.RecordType:
			p.checkRecord(t, image.(*apimodel.RecordType))

		case *apimodel.EnumType:
			mapped := make(map[*apimodel.EnumMember]bool)
			for _, cm := range t.Members() {
				if pm, ok := morphism.Members[cm]; ok {
					mapped[pm] = true
				}
			}
			for _, pm := range image.(*apimodel.EnumType).Members() {
				if !mapped[pm] {
					p.res.unmappedProviderMembers[t] = append(p.res.unmappedProviderMembers[t], pm)
				}
			}
		}
	}
}

func (p *pass) checkRecord(ct, pt *apimodel.RecordType) {
	morphism := p.res.morphism
	merged := p.res.merged
	usage := p.res.usage[ct]

	mapped := make(map[*apimodel.Field]bool)
	for _, cf := range ct.AllFields() {
		pf, ok := morphism.Fields[cf]
		if !ok {
			continue
		}
		mapped[pf] = true

		if !compatibility.OptionalityCompatible(pf.Optionality(), cf.Optionality(), usage) {
			p.result.Add(compatibility.NewViolationBuilder(compatibility.RuleOptionality).
				WithKind(compatibility.KindIncompatibleOptionality).
				WithLocation(cf.String()).
				WithMessagef("Optionalities of consumer field %s (%s) and provider field %s (%s) are not compatible for usage %s.",
					cf, cf.Optionality(), merged.FieldLabel(pf), pf.Optionality(), usage).
				Build())
		}
	}

	for _, pf := range pt.AllFields() {
		if mapped[pf] {
			continue
		}

		// a field the consumer's revision does not have cannot be asked for
		if !p.known[pf] {
			p.res.unmappedFields[ct] = append(p.res.unmappedFields[ct], pf)
			p.res.notes = append(p.res.notes, compatibility.NewViolationBuilder(compatibility.RuleFieldTolerated).
				WithLevel(compatibility.ViolationLevelInfo).
				WithKind(compatibility.KindUnmappedElement).
				WithLocation(merged.FieldLabel(pf)).
				WithMessagef("Field %s is not part of revision %d referenced by consumer type %s.", merged.FieldLabel(pf), p.referenced.Revision(), ct).
				Build())
			continue
		}

		if !compatibility.UnmappedTolerated(pf.Optionality(), usage) {
			p.result.Add(compatibility.NewViolationBuilder(compatibility.RuleFieldNotMapped).
				WithKind(compatibility.KindMissingMandatoryMapping).
				WithLocation(merged.FieldLabel(pf)).
				WithMessagef("Non-optional field %s is not mapped by consumer type %s.", merged.FieldLabel(pf), ct).
				Build())
			continue
		}

		p.res.unmappedFields[ct] = append(p.res.unmappedFields[ct], pf)
		p.res.notes = append(p.res.notes, compatibility.NewViolationBuilder(compatibility.RuleFieldTolerated).
			WithLevel(compatibility.ViolationLevelInfo).
			WithKind(compatibility.KindUnmappedElement).
			WithLocation(merged.FieldLabel(pf)).
			WithMessagef("Field %s (%s) is not mapped by consumer type %s.", merged.FieldLabel(pf), pf.Optionality(), ct).
			Build())
	}
}

// computeUsage derives the usage of every consumer record from the
// operations. Usage flows into record types referenced by fields, also
// through lists, and into sub types.
func computeUsage(consumer *apimodel.Definition) map[*apimodel.RecordType]compatibility.Usage {
	usage := make(map[*apimodel.RecordType]compatibility.Usage)

	var mark func(r *apimodel.RecordType, u compatibility.Usage)
	mark = func(r *apimodel.RecordType, u compatibility.Usage) {
		if r == nil || usage[r]&u == u {
			return
		}
		usage[r] = usage[r].Include(u)

		for _, f := range r.AllFields() {
			for _, t := range apimodel.UserTypesOf(f.Type()) {
				if rec, ok := t.(*apimodel.RecordType); ok {
					mark(rec, u)
				}
			}
		}
		for _, sub := range r.SubTypes() {
			mark(sub, u)
		}
	}

	for _, op := range consumer.Operations() {
		mark(op.Input(), compatibility.UsageInput)
		mark(op.Output(), compatibility.UsageOutput)
		for _, ex := range op.Exceptions() {
			mark(ex, compatibility.UsageOutput)
		}
	}
	return usage
}
