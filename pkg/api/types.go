package api

import (
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/schema"
)

// ResolveRequest is the body of POST /histories/{name}/resolve
type ResolveRequest struct {
	SupportedRevisions []int  `json:"supported_revisions"`
	Consumer           string `json:"consumer"`
}

// ResolveResponse describes a successful resolution
type ResolveResponse struct {
	History            string             `json:"history"`
	Consumer           string             `json:"consumer"`
	ConsumerRevision   int                `json:"consumer_revision"`
	SupportedRevisions []int              `json:"supported_revisions"`
	Resolution         string             `json:"resolution"`
	Types              []TypeMapping      `json:"types"`
	Operations         []ElementMapping   `json:"operations"`
	Notes              []ViolationDetails `json:"notes,omitempty"`
}

// TypeMapping maps a consumer type to its merged provider type
type TypeMapping struct {
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
	Revision int    `json:"revision"`
	Usage    string `json:"usage,omitempty"`

	Fields  []ElementMapping `json:"fields,omitempty"`
	Members []ElementMapping `json:"members,omitempty"`

	UnmappedProviderFields  []string `json:"unmapped_provider_fields,omitempty"`
	UnmappedConsumerMembers []string `json:"unmapped_consumer_members,omitempty"`
	UnmappedProviderMembers []string `json:"unmapped_provider_members,omitempty"`
}

// ElementMapping maps a consumer field, member or operation to the provider
// element realizing it
type ElementMapping struct {
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
	Revision *int   `json:"revision,omitempty"`
}

// ViolationDetails is the wire form of a compatibility.Violation
type ViolationDetails struct {
	Rule     string `json:"rule"`
	Level    string `json:"level"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// MergedResponse carries the merged model of a set of revisions
type MergedResponse struct {
	History            string           `json:"history"`
	SupportedRevisions []int            `json:"supported_revisions"`
	Definition         *schema.Document `json:"definition"`
}

// HistoryList is the body of GET /histories
type HistoryList struct {
	Histories []string `json:"histories"`
}

// NewViolationDetails converts violations to their wire form
func NewViolationDetails(violations []compatibility.Violation) []ViolationDetails {
	if len(violations) == 0 {
		return nil
	}
	details := make([]ViolationDetails, len(violations))
	for i, v := range violations {
		details[i] = ViolationDetails{
			Rule:     v.Rule,
			Level:    v.Level.String(),
			Kind:     v.Kind.String(),
			Message:  v.Message,
			Location: v.Location,
		}
	}
	return details
}
