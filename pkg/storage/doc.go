// Package storage provides the revision repository of apievolve.
//
// # Overview
//
// A history is the ordered list of provider revisions of one API. Every
// revision is stored as a Record holding the definition document it was
// published with, so histories can be rebuilt by compiling the documents in
// revision order.
//
// # Interfaces
//
//   - RevisionReader: GetRevision, ListRevisions, ListHistories
//   - RevisionWriter: SaveRevision
//   - HealthChecker: HealthCheck
//
// These compose into Store, which every backend implements.
//
// # Backend Implementations
//
// FileSystemStore keeps one directory per history:
//
//	/var/apievolve/customers/revisions/0/record.json
//	/var/apievolve/customers/revisions/0/definition.yaml
//
// Documents may be dropped into the tree by other tools; Watch reports the
// histories that changed so cached histories can be invalidated.
//
//	store, err := storage.NewFileSystemStore("/var/apievolve")
//
// The sqlstore subpackage stores records in PostgreSQL or SQLite, optionally
// keeps document bodies in S3 and puts a Redis read-through cache in front
// of any Store:
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = "postgres"
//	cfg.DatabaseURL = "postgres://localhost/apievolve?sslmode=disable"
//	store, err := sqlstore.Open(ctx, cfg)
//
// # Errors
//
// Unknown histories and revisions are reported as ErrNotFound, taken
// revision numbers as ErrRevisionExists. Both are wrapped; test with
// errors.Is.
package storage
