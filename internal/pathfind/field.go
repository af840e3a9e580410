// Package pathfind maintains incremental distance fields toward dynamic goal
// sets on the unbounded grid.
//
// Each registered goal kind owns an independent pipeline: a footprint
// side-table, a dirty-cell priority queue and a distance field. Every tick
// the pipeline diffs the entities touched since the last tick into dirty
// cells and then relaxes at most Budget of them against their 4 neighbors.
// Work beyond the budget carries over to later ticks, so a field may be
// stale for a while after large changes. Readers use Field.Pathfind to pick
// a next step.
//
// A cell that holds both a goal of the field's kind and a blocking entity
// counts as a goal (distance 0). Storage buildings rely on this: they block
// movement yet remain destinations.
package pathfind

import (
	"slices"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

const (
	// MaxWays caps path multiplicity so repeated sums cannot overflow.
	MaxWays = 1e5

	// DefaultBudget is the number of dirty cells relaxed per kind per tick.
	DefaultBudget = 1000

	// DefaultMaxDistance is the distance at which a cell is treated as
	// unreachable. It terminates the count-up that follows removal of the
	// last goal in a region.
	DefaultMaxDistance = 1000
)

// Entry is the field value of one cell.
type Entry struct {
	Distance uint32  `json:"distance"` // 4-neighbor steps to the nearest goal cell
	Ways     float64 `json:"ways"`     // relative count of shortest paths, capped at MaxWays
}

// Field maps cells to their distance toward the nearest goal of one kind.
type Field struct {
	kind    entity.Kind
	entries map[world.Cell]Entry
}

func newField(kind entity.Kind) *Field {
	return &Field{kind: kind, entries: make(map[world.Cell]Entry)}
}

// Kind returns the goal kind this field routes toward.
func (f *Field) Kind() entity.Kind {
	return f.kind
}

// Get returns the entry at c, if any.
func (f *Field) Get(c world.Cell) (Entry, bool) {
	e, ok := f.entries[c]
	return e, ok
}

// Len returns the number of cells with an entry.
func (f *Field) Len() int {
	return len(f.entries)
}

func (f *Field) set(c world.Cell, e Entry) {
	f.entries[c] = e
}

func (f *Field) remove(c world.Cell) {
	delete(f.entries, c)
}

// CellEntry pairs a cell with its field value.
type CellEntry struct {
	Cell  world.Cell `json:"cell"`
	Entry Entry      `json:"entry"`
}

// Entries returns every entry, ordered by (Y, X).
func (f *Field) Entries() []CellEntry {
	out := make([]CellEntry, 0, len(f.entries))
	for c, e := range f.entries {
		out = append(out, CellEntry{Cell: c, Entry: e})
	}
	slices.SortFunc(out, func(a, b CellEntry) int {
		if a.Cell.Y != b.Cell.Y {
			return a.Cell.Y - b.Cell.Y
		}
		return a.Cell.X - b.Cell.X
	})
	return out
}

func addWays(a, b float64) float64 {
	return min(a+b, MaxWays)
}
