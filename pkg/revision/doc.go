// Package revision keeps the revision history of a provider API and merges
// a set of supported revisions into one model.
//
// A History is built once from finalized provider definitions, oldest
// first. It assigns a LineageID to every type, declared field, enum member
// and operation, and indexes successors so that both directions of a
// lineage are slice lookups.
//
// Merge selects, per lineage, the variant of the newest supported revision
// containing it. Lineages that only exist in unsupported revisions are
// dropped. Every supported revision is then mapped onto the merged model and
// checked for consistency; all problems of all revisions are reported in one
// *compatibility.ViolationError.
package revision
