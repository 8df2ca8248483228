// Package compatibility decides whether the elements of two API definitions
// can stand in for each other, and collects what it finds as violations.
//
// # Type Compatibility
//
// CompatibleTypes compares a source type (consumer side, or an older
// revision) with a target type (provider side, or the merged model):
//
//	atomic:  same kind
//	string:  source bound fits the target bound (unbounded targets accept any bound)
//	numeric: same scale, source precision <= target precision
//	list:    bounds fit and element types are compatible
//	record, enum: the target is the image of the source under the type map
//
// Records and enums are never compared structurally. They have to be
// matched first, which is why resolution maps all types before descending
// into fields.
//
// # Optionality and Usage
//
// A provider field the consumer does not map is tolerated unless it is
// MANDATORY and the record is sent to the provider (usage INPUT or IN_OUT).
// A mapped field must satisfy OptionalityCompatible:
//
//	provider    INPUT          OUTPUT         IN_OUT
//	MANDATORY   MANDATORY      any            MANDATORY
//	OPT_IN      any            any            any
//	OPTIONAL    any            OPTIONAL       OPTIONAL
//
// Records that no operation exchanges are checked like IN_OUT records.
//
// # Violations
//
// Checks never stop at the first problem. They append Violation values to a
// Result, results are combined with Join, and Result.Err turns the
// error-level violations into a single *ViolationError whose message lists
// one violation per line:
//
//	var result compatibility.Result
//	result.Join(morphism.CheckConsistency())
//	if err := result.Err(); err != nil {
//		return nil, err
//	}
package compatibility
