// Package cli implements the apievolve command line.
//
// Commands work on a local directory of provider revision documents, or
// against a registry server when -registry (or APIEVOLVE_REGISTRY_URL) is
// set:
//
//	apievolve resolve -history ./customers -supported 0,1 -consumer billing.yaml
//	apievolve merge -history ./customers -format json
//	apievolve push -registry http://localhost:8080 -history customers -file v2.yaml
//	apievolve list -registry http://localhost:8080 -history customers
package cli
