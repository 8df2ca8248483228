// Package api implements the HTTP interface of the revision registry.
//
// # Routes
//
// All routes live under /api/v1:
//
//	GET  /histories                               list history names
//	GET  /histories/{name}/revisions              list revision records
//	POST /histories/{name}/revisions              store the next provider revision
//	GET  /histories/{name}/revisions/{revision}   one record, ?format=yaml for the document
//	POST /histories/{name}/resolve                resolve a consumer definition
//	GET  /histories/{name}/merged                 merged model, ?revisions=0,1&format=yaml
//
// Rejected revisions answer 422 and unresolvable consumers 409, both with
// the violations in the error details. Health checks and /metrics are
// mounted when Options carries a HealthChecker and a registry.
//
// # Usage
//
//	svc := service.New(store, service.DefaultConfig(), logger, metrics)
//	server := api.NewServer(svc, api.Options{Logger: logger, Metrics: metrics})
//	http.ListenAndServe(":8080", server)
package api
