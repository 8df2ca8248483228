package compatibility

import (
	"fmt"
	"strings"
)

// Violation represents a single structural problem found during a merge or
// a resolution
type Violation struct {
	Rule     string
	Level    ViolationLevel
	Kind     ViolationKind
	Message  string
	Location string
}

// ViolationLevel indicates the severity
type ViolationLevel int

const (
	ViolationLevelInfo ViolationLevel = iota
	ViolationLevelWarning
	ViolationLevelError
)

func (vl ViolationLevel) String() string {
	return []string{"INFO", "WARNING", "ERROR"}[vl]
}

// ViolationKind groups violations by semantic category
type ViolationKind int

const (
	KindUnresolvableType ViolationKind = iota
	KindTypeMismatch
	KindMissingMandatoryMapping
	KindIncompatibleOptionality
	KindLineageInconsistency
	KindExceptionSetMismatch
	KindUnsupportedRevision
	KindUnmappedElement
)

func (vk ViolationKind) String() string {
	return []string{
		"unresolvable_type", "type_mismatch", "missing_mandatory_mapping",
		"incompatible_optionality", "lineage_inconsistency", "exception_set_mismatch",
		"unsupported_revision", "unmapped_element",
	}[vk]
}

// Rule names
const (
	RuleNoMatchingType        = "NO_MATCHING_TYPE"
	RuleNoMatchingField       = "NO_MATCHING_FIELD"
	RuleNoMatchingOperation   = "NO_MATCHING_OPERATION"
	RuleTypeKindMismatch      = "TYPE_KIND_MISMATCH"
	RuleFieldTypeMismatch     = "FIELD_TYPE_MISMATCH"
	RuleOwnerMismatch         = "OWNER_MISMATCH"
	RuleSuperTypeMismatch     = "SUPER_TYPE_MISMATCH"
	RuleExceptionFlagMismatch = "EXCEPTION_FLAG_MISMATCH"
	RuleInputTypeMismatch     = "INPUT_TYPE_MISMATCH"
	RuleOutputTypeMismatch    = "OUTPUT_TYPE_MISMATCH"
	RuleExceptionNotThrown    = "EXCEPTION_NOT_THROWN"
	RuleFieldNotMapped        = "FIELD_NOT_MAPPED"
	RuleOptionality           = "OPTIONALITY_INCOMPATIBLE"
	RuleNameCollision         = "MERGED_NAME_COLLISION"
	RuleRevisionNotSupported  = "REVISION_NOT_SUPPORTED"
	RuleFieldTolerated        = "FIELD_TOLERATED"
)

// ViolationBuilder helps construct violations fluently
type ViolationBuilder struct {
	violation Violation
}

// NewViolationBuilder creates a new error-level violation builder
func NewViolationBuilder(rule string) *ViolationBuilder {
	return &ViolationBuilder{
		violation: Violation{
			Rule:  rule,
			Level: ViolationLevelError,
		},
	}
}

func (b *ViolationBuilder) WithLevel(level ViolationLevel) *ViolationBuilder {
	b.violation.Level = level
	return b
}

func (b *ViolationBuilder) WithKind(kind ViolationKind) *ViolationBuilder {
	b.violation.Kind = kind
	return b
}

func (b *ViolationBuilder) WithLocation(location string) *ViolationBuilder {
	b.violation.Location = location
	return b
}

func (b *ViolationBuilder) WithMessage(message string) *ViolationBuilder {
	b.violation.Message = message
	return b
}

func (b *ViolationBuilder) WithMessagef(format string, args ...any) *ViolationBuilder {
	b.violation.Message = fmt.Sprintf(format, args...)
	return b
}

func (b *ViolationBuilder) Build() Violation {
	return b.violation
}

// Summary provides an overview of violations
type Summary struct {
	TotalViolations int
	Errors          int
	Warnings        int
	Infos           int
}

// Result accumulates violations in discovery order. The zero value is an
// empty result.
type Result struct {
	violations []Violation
}

// Add appends violations
func (r *Result) Add(v ...Violation) {
	r.violations = append(r.violations, v...)
}

// Join appends the violations of other after those of r
func (r *Result) Join(other Result) {
	r.violations = append(r.violations, other.violations...)
}

// Violations returns all violations, including informational ones
func (r Result) Violations() []Violation {
	return r.violations
}

// Errors returns the error-level violations
func (r Result) Errors() []Violation {
	var errs []Violation
	for _, v := range r.violations {
		if v.Level == ViolationLevelError {
			errs = append(errs, v)
		}
	}
	return errs
}

// OK reports whether no error-level violation was recorded
func (r Result) OK() bool {
	return len(r.Errors()) == 0
}

// Summary counts the violations per level
func (r Result) Summary() Summary {
	summary := Summary{
		TotalViolations: len(r.violations),
	}

	for _, v := range r.violations {
		switch v.Level {
		case ViolationLevelError:
			summary.Errors++
		case ViolationLevelWarning:
			summary.Warnings++
		case ViolationLevelInfo:
			summary.Infos++
		}
	}

	return summary
}

// Err returns a *ViolationError holding the error-level violations, or nil
func (r Result) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &ViolationError{Violations: errs}
}

// ViolationError is returned when a merge or a resolution fails. Its message
// holds one violation message per line.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}
	return strings.Join(messages, "\n")
}

// HasKind reports whether any violation is of the given kind
func (e *ViolationError) HasKind(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}
