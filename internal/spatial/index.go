// Package spatial maps grid cells to the entities occupying them.
package spatial

import (
	"slices"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

// Source is the entity data the index is rebuilt from.
type Source interface {
	Touched() []entity.ID
	Get(id entity.ID) (entity.Entity, bool)
}

// Index is the cell -> entities occupancy map. Multi-cell footprints are
// registered in every covered cell.
type Index struct {
	cells   map[world.Cell][]entity.ID
	entries map[entity.ID]world.Rect
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		cells:   make(map[world.Cell][]entity.ID),
		entries: make(map[entity.ID]world.Rect),
	}
}

// EntitiesAt returns the entities covering c. The slice is owned by the
// index and must not be modified.
func (idx *Index) EntitiesAt(c world.Cell) []entity.ID {
	return idx.cells[c]
}

// Upsert registers id over rect, replacing any previous footprint.
func (idx *Index) Upsert(id entity.ID, rect world.Rect) {
	if prev, ok := idx.entries[id]; ok {
		if prev == rect {
			return
		}
		idx.removeFromCells(id, prev)
	}
	idx.entries[id] = rect
	rect.Cells(func(c world.Cell) {
		idx.cells[c] = append(idx.cells[c], id)
	})
}

// Remove drops id from the index.
func (idx *Index) Remove(id entity.ID) {
	prev, ok := idx.entries[id]
	if !ok {
		return
	}
	idx.removeFromCells(id, prev)
	delete(idx.entries, id)
}

// Sync applies this tick's entity changes. It must run before any
// pathfinding pipeline reads the index.
func (idx *Index) Sync(src Source) int {
	touched := src.Touched()
	for _, id := range touched {
		e, ok := src.Get(id)
		if !ok {
			idx.Remove(id)
			continue
		}
		idx.Upsert(id, e.Footprint())
	}
	return len(touched)
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int {
	return len(idx.entries)
}

func (idx *Index) removeFromCells(id entity.ID, rect world.Rect) {
	rect.Cells(func(c world.Cell) {
		bucket := idx.cells[c]
		i := slices.Index(bucket, id)
		if i < 0 {
			return
		}
		bucket = slices.Delete(bucket, i, i+1)
		if len(bucket) == 0 {
			delete(idx.cells, c)
			return
		}
		idx.cells[c] = bucket
	})
}
