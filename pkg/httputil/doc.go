// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Responses
//
// Every error response has the same JSON shape:
//
//	{"error": "history not found", "request_id": "…", "details": …}
//
// The helpers cover the statuses the API uses:
//
//	httputil.WriteSuccess(w, records)
//	httputil.WriteCreated(w, record)
//	httputil.WriteBadRequest(w, "consumer is required")
//	httputil.WriteDetailedError(w, http.StatusConflict, "incompatible consumer", violations)
//	httputil.WriteInternalError(w)
//
// # Request Parsing
//
//	var req ResolveRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	document, ok := httputil.ReadBodyOrError(w, r)
//	revision, ok := httputil.ParsePathIntOrError(w, r, "revision")
//	revisions, err := httputil.ParseQueryIntList(r, "revisions") // ?revisions=0,1
//
// Bodies cut off by MaxBytesMiddleware are answered with 413.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(4<<20),
//	)(router)
//
// RequestIDMiddleware must run first: the logging and recovery middleware
// log through observability.FromContext and pick up the request id from
// the context.
package httputil
