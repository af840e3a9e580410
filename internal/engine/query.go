package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/talgya/flowgrid/internal/agents"
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/pathfind"
	"github.com/talgya/flowgrid/internal/world"
)

// ErrUnknownKind is returned for queries on a kind with no field.
var ErrUnknownKind = errors.New("unknown goal kind")

// Route answers a single next-step query for kind from cell. ok is false
// when no neighbor of from has a known distance.
func (s *Simulation) Route(kind entity.Kind, from world.Cell) (dir pathfind.Direction, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, found := s.Fields.Field(kind)
	if !found {
		return dir, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	dir, ok = f.Pathfind(from, nil)
	return dir, ok, nil
}

// FieldWindow returns the distances of kind over rect, row by row from
// rect.Min.Y. Cells with no entry are -1.
func (s *Simulation) FieldWindow(kind entity.Kind, rect world.Rect) ([][]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, found := s.Fields.Field(kind)
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	rows := make([][]int64, 0, rect.Max.Y-rect.Min.Y)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := make([]int64, 0, rect.Max.X-rect.Min.X)
		for x := rect.Min.X; x < rect.Max.X; x++ {
			e, ok := f.Get(world.Cell{X: x, Y: y})
			if !ok {
				row = append(row, -1)
				continue
			}
			row = append(row, int64(e.Distance))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// KindStats returns per-kind pipeline counters.
func (s *Simulation) KindStats() []pathfind.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fields.Stats()
}

// Kinds lists the registered goal kinds.
func (s *Simulation) Kinds() []entity.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fields.Kinds()
}

// Snapshot returns the colony statistics.
func (s *Simulation) Snapshot() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats
}

// AgentList returns copies of every agent.
func (s *Simulation) AgentList() []agents.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agents.Agent, 0, len(s.Agents))
	for _, a := range s.Agents {
		out = append(out, *a)
	}
	return out
}

// EntityList returns every entity ordered by ID.
func (s *Simulation) EntityList() []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Store.All()
}

// ChunkList returns the generated chunk coordinates.
func (s *Simulation) ChunkList() []world.ChunkCoord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Chunks.List()
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		return nil
	}
	start := max(len(s.Events)-limit, 0)
	return slices.Clone(s.Events[start:])
}

// SetLastTick sets the tick a restored world resumes from.
func (s *Simulation) SetLastTick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastTick = tick
}

// SetBudget changes the per-kind relaxation budget between ticks.
func (s *Simulation) SetBudget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fields.SetBudget(n)
}

// Budget returns the effective per-kind relaxation budget.
func (s *Simulation) Budget() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fields.Budget()
}

// SetParallel switches between concurrent and sequential pipelines.
func (s *Simulation) SetParallel(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fields.SetParallel(on)
}
