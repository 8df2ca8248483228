package revision

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

var (
	// ErrEmptyHistory is returned when a history has no revisions
	ErrEmptyHistory = errors.New("revision history is empty")
	// ErrBrokenChain is returned when revisions are not linked in order
	ErrBrokenChain = errors.New("revisions do not form a chain")
	// ErrUnknownRevision is returned for revision numbers not in the history
	ErrUnknownRevision = errors.New("unknown revision")
	// ErrNoSupportedRevisions is returned when merging an empty revision set
	ErrNoSupportedRevisions = errors.New("no supported revisions")
)

// LineageID identifies one element across all revisions that replace each
// other. Ids are dense per element kind.
type LineageID int

// History is the ordered chain of the provider revisions of one API. It
// indexes lineage ids and successors for every element arena and is
// immutable once created.
type History struct {
	name      string
	revisions []*apimodel.Definition
	positions map[*apimodel.Definition]int
	numbers   map[int]int

	// lineage[kind][position][index] and successor[kind][position][index]
	lineage   [4][][]LineageID
	successor [4][][]int
	lineages  [4]int
}

// NewHistory builds the history of the given revisions, oldest first. Every
// revision after the first must name its preceding revision as predecessor.
func NewHistory(name string, revisions ...*apimodel.Definition) (*History, error) {
	if len(revisions) == 0 {
		return nil, fmt.Errorf("history %s: %w", name, ErrEmptyHistory)
	}

	h := &History{
		name:      name,
		revisions: revisions,
		positions: make(map[*apimodel.Definition]int, len(revisions)),
		numbers:   make(map[int]int, len(revisions)),
	}

	for pos, def := range revisions {
		if def == nil || def.Side() != apimodel.SideProvider {
			return nil, fmt.Errorf("history %s: position %d is not a provider definition: %w", name, pos, ErrBrokenChain)
		}
		if def.Name() != name {
			return nil, fmt.Errorf("history %s: revision %d belongs to %s: %w", name, def.Revision(), def.Name(), ErrBrokenChain)
		}
		if pos > 0 {
			prev := revisions[pos-1]
			if def.Revision() <= prev.Revision() {
				return nil, fmt.Errorf("history %s: revision %d follows revision %d: %w", name, def.Revision(), prev.Revision(), ErrBrokenChain)
			}
			if def.Predecessor() != prev {
				return nil, fmt.Errorf("history %s: predecessor of revision %d is not revision %d: %w", name, def.Revision(), prev.Revision(), ErrBrokenChain)
			}
		}
		h.positions[def] = pos
		h.numbers[def.Revision()] = pos
	}

	for _, kind := range apimodel.ElementKinds {
		h.indexArena(kind)
	}
	return h, nil
}

// indexArena assigns lineage ids from the oldest revision on and links every
// predecessor to its successor.
func (h *History) indexArena(kind apimodel.ElementKind) {
	lineage := make([][]LineageID, len(h.revisions))
	successor := make([][]int, len(h.revisions))

	for pos, def := range h.revisions {
		size := def.ArenaSize(kind)
		lineage[pos] = make([]LineageID, size)
		successor[pos] = make([]int, size)
		for i := range successor[pos] {
			successor[pos][i] = -1
		}

		for i := 0; i < size; i++ {
			pred := def.PredecessorIndex(kind, i)
			if pos == 0 || pred < 0 {
				lineage[pos][i] = LineageID(h.lineages[kind])
				h.lineages[kind]++
				continue
			}
			lineage[pos][i] = lineage[pos-1][pred]
			successor[pos-1][pred] = i
		}
	}

	h.lineage[kind] = lineage
	h.successor[kind] = successor
}

// Name returns the API name
func (h *History) Name() string { return h.name }

// Revisions returns the revisions, oldest first
func (h *History) Revisions() []*apimodel.Definition { return h.revisions }

// Latest returns the newest revision
func (h *History) Latest() *apimodel.Definition { return h.revisions[len(h.revisions)-1] }

// Revision returns the revision with the given number
func (h *History) Revision(number int) (*apimodel.Definition, bool) {
	pos, ok := h.numbers[number]
	if !ok {
		return nil, false
	}
	return h.revisions[pos], true
}

// RevisionNumbers returns all revision numbers in ascending order
func (h *History) RevisionNumbers() []int {
	numbers := make([]int, len(h.revisions))
	for i, def := range h.revisions {
		numbers[i] = def.Revision()
	}
	return numbers
}

// Lineage returns the lineage id of element index of the given arena of def
func (h *History) Lineage(def *apimodel.Definition, kind apimodel.ElementKind, index int) (LineageID, bool) {
	pos, ok := h.positions[def]
	if !ok || index < 0 || index >= len(h.lineage[kind][pos]) {
		return 0, false
	}
	return h.lineage[kind][pos][index], true
}

// TypeLineage returns the lineage id of a type of one of the revisions
func (h *History) TypeLineage(t apimodel.UserDefinedType) (LineageID, bool) {
	return h.Lineage(t.Definition(), apimodel.ElementType, t.Index())
}

// FieldLineage returns the lineage id of a field. Inherited fields share the
// lineage of the field they were copied from.
func (h *History) FieldLineage(f *apimodel.Field) (LineageID, bool) {
	f = f.Origin()
	return h.Lineage(f.Owner().Definition(), apimodel.ElementField, f.Index())
}

// MemberLineage returns the lineage id of an enum member
func (h *History) MemberLineage(m *apimodel.EnumMember) (LineageID, bool) {
	return h.Lineage(m.Owner().Definition(), apimodel.ElementMember, m.Index())
}

// OperationLineage returns the lineage id of an operation
func (h *History) OperationLineage(op *apimodel.Operation) (LineageID, bool) {
	return h.Lineage(op.Definition(), apimodel.ElementOperation, op.Index())
}

// successorIndex returns the arena index of the successor of an element in
// the next revision.
func (h *History) successorIndex(def *apimodel.Definition, kind apimodel.ElementKind, index int) (*apimodel.Definition, int, bool) {
	pos, ok := h.positions[def]
	if !ok || pos+1 >= len(h.revisions) || index < 0 {
		return nil, -1, false
	}
	next := h.successor[kind][pos][index]
	if next < 0 {
		return nil, -1, false
	}
	return h.revisions[pos+1], next, true
}

// SuccessorType returns the type replacing t in the next revision
func (h *History) SuccessorType(t apimodel.UserDefinedType) (apimodel.UserDefinedType, bool) {
	next, i, ok := h.successorIndex(t.Definition(), apimodel.ElementType, t.Index())
	if !ok {
		return nil, false
	}
	return next.Types()[i], true
}

// SuccessorField returns the field replacing f in the next revision
func (h *History) SuccessorField(f *apimodel.Field) (*apimodel.Field, bool) {
	if f.Inherited() {
		return nil, false
	}
	next, i, ok := h.successorIndex(f.Owner().Definition(), apimodel.ElementField, f.Index())
	if !ok {
		return nil, false
	}
	return next.Fields()[i], true
}

// SuccessorMember returns the member replacing m in the next revision
func (h *History) SuccessorMember(m *apimodel.EnumMember) (*apimodel.EnumMember, bool) {
	next, i, ok := h.successorIndex(m.Owner().Definition(), apimodel.ElementMember, m.Index())
	if !ok {
		return nil, false
	}
	return next.Members()[i], true
}

// SuccessorOperation returns the operation replacing op in the next revision
func (h *History) SuccessorOperation(op *apimodel.Operation) (*apimodel.Operation, bool) {
	next, i, ok := h.successorIndex(op.Definition(), apimodel.ElementOperation, op.Index())
	if !ok {
		return nil, false
	}
	return next.Operations()[i], true
}
