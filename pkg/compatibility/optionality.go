package compatibility

import "github.com/platinummonkey/apievolve/pkg/apimodel"

// Usage tells how a record type is exchanged through the operations of a
// consumer definition
type Usage int

const (
	UsageNone   Usage = 0
	UsageInput  Usage = 1
	UsageOutput Usage = 2
	UsageInOut  Usage = UsageInput | UsageOutput
)

func (u Usage) String() string {
	return []string{"NONE", "INPUT", "OUTPUT", "IN_OUT"}[u]
}

// Include combines two usages
func (u Usage) Include(other Usage) Usage {
	return u | other
}

// effective treats records exchanged by no operation as strictly as IN_OUT
func (u Usage) effective() Usage {
	if u == UsageNone {
		return UsageInOut
	}
	return u
}

// UnmappedTolerated reports whether a provider field may be left unmapped by
// a consumer. Only mandatory fields of records that are never sent to the
// provider may be missing.
func UnmappedTolerated(provider apimodel.Optionality, usage Usage) bool {
	if provider != apimodel.Mandatory {
		return true
	}
	return usage.effective() == UsageOutput
}

// OptionalityCompatible reports whether a consumer field of optionality
// consumer may be mapped to a provider field of optionality provider.
func OptionalityCompatible(provider, consumer apimodel.Optionality, usage Usage) bool {
	switch usage.effective() {
	case UsageInput:
		return provider != apimodel.Mandatory || consumer == apimodel.Mandatory

	case UsageOutput:
		return provider != apimodel.Optional || consumer == apimodel.Optional

	default:
		switch provider {
		case apimodel.Mandatory:
			return consumer == apimodel.Mandatory
		case apimodel.Optional:
			return consumer == apimodel.Optional
		default:
			return true
		}
	}
}
