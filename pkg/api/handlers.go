package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/httputil"
	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/resolution"
	"github.com/platinummonkey/apievolve/pkg/revision"
	"github.com/platinummonkey/apievolve/pkg/schema"
	"github.com/platinummonkey/apievolve/pkg/service"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

// historyRequest attaches the history of the request path to the request
// context and returns its name
func historyRequest(w http.ResponseWriter, r *http.Request) (string, *http.Request, bool) {
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", r, false
	}
	return name, r.WithContext(observability.WithHistory(r.Context(), name)), true
}

// listHistories handles GET /api/v1/histories
func (s *Server) listHistories(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.Histories(r.Context())
	if err != nil {
		s.writeError(w, r, err, http.StatusConflict)
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WriteSuccess(w, HistoryList{Histories: names})
}

// listRevisions handles GET /api/v1/histories/{name}/revisions. Documents
// are left out of the listing.
func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	name, r, ok := historyRequest(w, r)
	if !ok {
		return
	}

	records, err := s.service.Revisions(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err, http.StatusConflict)
		return
	}

	listing := make([]storage.Record, len(records))
	for i, record := range records {
		listing[i] = *record
		listing[i].Document = ""
	}
	httputil.WriteSuccess(w, listing)
}

// getRevision handles GET /api/v1/histories/{name}/revisions/{revision}.
// With ?format=yaml the stored document is returned as is.
func (s *Server) getRevision(w http.ResponseWriter, r *http.Request) {
	name, r, ok := historyRequest(w, r)
	if !ok {
		return
	}
	number, ok := httputil.ParsePathIntOrError(w, r, "revision")
	if !ok {
		return
	}

	record, err := s.service.Revision(r.Context(), name, number)
	if err != nil {
		s.writeError(w, r, err, http.StatusConflict)
		return
	}

	switch httputil.ParseQueryString(r, "format", "json") {
	case "yaml":
		httputil.WriteYAML(w, http.StatusOK, []byte(record.Document))
	case "json":
		httputil.WriteSuccess(w, record)
	default:
		httputil.WriteBadRequest(w, "format must be json or yaml")
	}
}

// createRevision handles POST /api/v1/histories/{name}/revisions. The body
// is a provider definition document.
func (s *Server) createRevision(w http.ResponseWriter, r *http.Request) {
	name, r, ok := historyRequest(w, r)
	if !ok {
		return
	}
	document, ok := httputil.ReadBodyOrError(w, r)
	if !ok {
		return
	}

	record, err := s.service.SaveRevision(r.Context(), name, document)
	if err != nil {
		s.writeError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Location", r.URL.Path+"/"+strconv.Itoa(record.Revision))
	httputil.WriteCreated(w, record)
}

// resolve handles POST /api/v1/histories/{name}/resolve
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	name, r, ok := historyRequest(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Consumer, "consumer") {
		return
	}
	if len(req.SupportedRevisions) == 0 {
		httputil.WriteBadRequest(w, "supported_revisions is required")
		return
	}

	res, err := s.service.Resolve(r.Context(), name, req.SupportedRevisions, []byte(req.Consumer))
	if err != nil {
		s.writeError(w, r, err, http.StatusConflict)
		return
	}

	httputil.WriteSuccess(w, NewResolveResponse(name, res))
}

// merged handles GET /api/v1/histories/{name}/merged?revisions=0,1. Without
// a revisions parameter all stored revisions are merged.
func (s *Server) merged(w http.ResponseWriter, r *http.Request) {
	name, r, ok := historyRequest(w, r)
	if !ok {
		return
	}
	supported, err := httputil.ParseQueryIntList(r, "revisions")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	format := httputil.ParseQueryString(r, "format", "json")
	if format != "json" && format != "yaml" {
		httputil.WriteBadRequest(w, "format must be json or yaml")
		return
	}

	if supported == nil {
		h, err := s.service.History(r.Context(), name)
		if err != nil {
			s.writeError(w, r, err, http.StatusConflict)
			return
		}
		supported = h.RevisionNumbers()
	}

	model, err := s.service.Merge(r.Context(), name, supported)
	if err != nil {
		s.writeError(w, r, err, http.StatusConflict)
		return
	}

	doc := schema.Encode(model.Definition())
	if format == "yaml" {
		body, err := schema.Marshal(doc)
		if err != nil {
			s.writeError(w, r, err, http.StatusConflict)
			return
		}
		httputil.WriteYAML(w, http.StatusOK, body)
		return
	}
	httputil.WriteSuccess(w, MergedResponse{
		History:            name,
		SupportedRevisions: model.Supported(),
		Definition:         doc,
	})
}

// NewResolveResponse describes a resolution of a consumer definition against
// history
func NewResolveResponse(history string, res *resolution.DefinitionResolution) ResolveResponse {
	consumer := res.ConsumerDefinition()
	merged := res.Merged()
	resp := ResolveResponse{
		History:            history,
		Consumer:           consumer.Name(),
		ConsumerRevision:   consumer.Revision(),
		SupportedRevisions: merged.Supported(),
		Resolution:         resolution.Printer{}.Print(res),
		Types:              []TypeMapping{},
		Operations:         []ElementMapping{},
		Notes:              NewViolationDetails(res.Notes()),
	}

	for _, ct := range consumer.Types() {
		image, ok := res.MapType(ct)
		if !ok {
			continue
		}
		rev, _ := merged.RevisionOf(image)
		tm := TypeMapping{
			Consumer: ct.PublicName(),
			Provider: image.InternalName(),
			Revision: rev,
		}

		switch t := ct.(type) {
		case *apimodel.RecordType:
			tm.Usage = res.Usage(t).String()
			for _, cf := range t.AllFields() {
				if pf, ok := res.MapField(cf); ok {
					tm.Fields = append(tm.Fields, mapping(cf.PublicName(), pf.InternalName(), merged, pf))
				}
			}
			for _, pf := range res.UnmappedProviderFields(t) {
				tm.UnmappedProviderFields = append(tm.UnmappedProviderFields, pf.InternalName())
			}
		case *apimodel.EnumType:
			for _, cm := range t.Members() {
				if pm, ok := res.MapMember(cm); ok {
					tm.Members = append(tm.Members, mapping(cm.PublicName(), pm.InternalName(), merged, pm))
				}
			}
			consumerOnly, providerOnly := res.UnmappedMembers(t)
			for _, m := range consumerOnly {
				tm.UnmappedConsumerMembers = append(tm.UnmappedConsumerMembers, m.PublicName())
			}
			for _, m := range providerOnly {
				tm.UnmappedProviderMembers = append(tm.UnmappedProviderMembers, m.InternalName())
			}
		}
		resp.Types = append(resp.Types, tm)
	}

	for _, op := range consumer.Operations() {
		if image, ok := res.MapOperation(op); ok {
			resp.Operations = append(resp.Operations, mapping(op.PublicName(), image.InternalName(), merged, image))
		}
	}
	return resp
}

func mapping(consumer, provider string, merged *revision.MergedModel, image any) ElementMapping {
	m := ElementMapping{Consumer: consumer, Provider: provider}
	if rev, ok := merged.RevisionOf(image); ok {
		m.Revision = &rev
	}
	return m
}

// writeError maps service errors to responses. Violation errors are
// answered with violationStatus and carry the violations as details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, violationStatus int) {
	var verr *compatibility.ViolationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteDetailedError(w, violationStatus, "definition is not compatible", NewViolationDetails(verr.Violations))
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, storage.ErrRevisionExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, schema.ErrInvalidDocument),
		errors.Is(err, schema.ErrMissingPredecessor),
		errors.Is(err, service.ErrWrongSide),
		errors.Is(err, service.ErrHistoryMismatch),
		errors.Is(err, revision.ErrUnknownRevision),
		errors.Is(err, revision.ErrNoSupportedRevisions),
		errors.Is(err, resolution.ErrNotConsumerDefinition):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
