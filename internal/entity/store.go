// Package entity holds the grid entities that pathfinding reacts to:
// their footprints, goal-kind markers and blocking marker.
//
// The store records every entity touched during the current tick so that
// downstream indexes can diff footprints without scanning the world.
package entity

import (
	"slices"

	"github.com/talgya/flowgrid/internal/world"
)

// ID is a unique identifier for an entity.
type ID uint64

// Kind names one independent pathfinding target set, e.g. "harvestable".
type Kind string

// Entity is a thing on the grid with a rectangular footprint.
type Entity struct {
	ID       ID         `json:"id"`
	Label    string     `json:"label"` // "rock", "ore", "storage", ...
	Pos      world.Cell `json:"pos"`
	Size     world.Size `json:"size"`
	Blocking bool       `json:"blocking"`
	Goals    []Kind     `json:"goals,omitempty"`

	// Gameplay counters; the store never interprets them.
	Amount   int `json:"amount"`
	Capacity int `json:"capacity"`
}

// HasGoal reports whether e carries the goal marker for kind.
func (e *Entity) HasGoal(kind Kind) bool {
	return slices.Contains(e.Goals, kind)
}

// Footprint returns the cells e occupies.
func (e *Entity) Footprint() world.Rect {
	return world.Footprint(e.Pos, e.Size)
}

// Store owns all entities. It is not safe for concurrent mutation; the
// simulation serializes writers and only reads happen during the
// pathfinding phase.
type Store struct {
	entities map[ID]*Entity
	touched  map[ID]struct{}
	nextID   ID
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entities: make(map[ID]*Entity),
		touched:  make(map[ID]struct{}),
		nextID:   1,
	}
}

// Spawn inserts e and returns its ID. A zero e.ID is assigned from the
// store's counter; a non-zero ID is kept (used when restoring saved state).
func (s *Store) Spawn(e Entity) ID {
	if e.ID == 0 {
		e.ID = s.nextID
	}
	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
	e.Goals = slices.Clone(e.Goals)
	s.entities[e.ID] = &e
	s.touch(e.ID)
	return e.ID
}

// Despawn removes an entity. Unknown IDs are ignored.
func (s *Store) Despawn(id ID) {
	if _, ok := s.entities[id]; !ok {
		return
	}
	delete(s.entities, id)
	s.touch(id)
}

// Get returns a copy of the entity.
func (s *Store) Get(id ID) (Entity, bool) {
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// HasGoal reports whether entity id exists and carries the kind marker.
func (s *Store) HasGoal(id ID, kind Kind) bool {
	e, ok := s.entities[id]
	return ok && e.HasGoal(kind)
}

// IsBlocking reports whether entity id exists and blocks movement.
func (s *Store) IsBlocking(id ID) bool {
	e, ok := s.entities[id]
	return ok && e.Blocking
}

// Move relocates an entity.
func (s *Store) Move(id ID, pos world.Cell) {
	e, ok := s.entities[id]
	if !ok || e.Pos == pos {
		return
	}
	e.Pos = pos
	s.touch(id)
}

// Resize changes an entity's footprint size.
func (s *Store) Resize(id ID, size world.Size) {
	e, ok := s.entities[id]
	if !ok || e.Size.OrUnit() == size.OrUnit() {
		return
	}
	e.Size = size
	s.touch(id)
}

// AddGoal attaches the goal marker for kind.
func (s *Store) AddGoal(id ID, kind Kind) {
	e, ok := s.entities[id]
	if !ok || e.HasGoal(kind) {
		return
	}
	e.Goals = append(e.Goals, kind)
	s.touch(id)
}

// RemoveGoal detaches the goal marker for kind.
func (s *Store) RemoveGoal(id ID, kind Kind) {
	e, ok := s.entities[id]
	if !ok {
		return
	}
	i := slices.Index(e.Goals, kind)
	if i < 0 {
		return
	}
	e.Goals = slices.Delete(e.Goals, i, i+1)
	s.touch(id)
}

// SetBlocking attaches or detaches the blocking marker.
func (s *Store) SetBlocking(id ID, blocking bool) {
	e, ok := s.entities[id]
	if !ok || e.Blocking == blocking {
		return
	}
	e.Blocking = blocking
	s.touch(id)
}

// SetAmount updates a gameplay counter. It does not mark the entity touched.
func (s *Store) SetAmount(id ID, amount int) {
	if e, ok := s.entities[id]; ok {
		e.Amount = amount
	}
}

// Touched returns the IDs changed since the last Flush, in ascending order.
// Despawned IDs are included.
func (s *Store) Touched() []ID {
	ids := make([]ID, 0, len(s.touched))
	for id := range s.touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Flush forgets the touched set. Called once at the end of every tick.
func (s *Store) Flush() {
	clear(s.touched)
}

// All returns copies of every entity, ordered by ID.
func (s *Store) All() []Entity {
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entity) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of live entities.
func (s *Store) Len() int {
	return len(s.entities)
}

// CountGoals returns how many live entities carry the kind marker.
func (s *Store) CountGoals(kind Kind) int {
	n := 0
	for _, e := range s.entities {
		if e.HasGoal(kind) {
			n++
		}
	}
	return n
}

func (s *Store) touch(id ID) {
	s.touched[id] = struct{}{}
}
