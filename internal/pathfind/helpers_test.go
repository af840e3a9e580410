package pathfind

import (
	"context"
	"testing"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/spatial"
	"github.com/talgya/flowgrid/internal/world"
)

const kindGoal entity.Kind = "goal"

// region is a growable set of generated rectangles.
type region struct {
	rects []world.Rect
}

func (r *region) IsGenerated(c world.Cell) bool {
	for _, rect := range r.rects {
		if rect.Contains(c) {
			return true
		}
	}
	return false
}

func rect(x0, y0, x1, y1 int) world.Rect {
	return world.Rect{Min: world.Cell{X: x0, Y: y0}, Max: world.Cell{X: x1, Y: y1}}
}

type harness struct {
	t      *testing.T
	store  *entity.Store
	index  *spatial.Index
	region *region
	reg    *Registry
	pipe   *Pipeline
}

func newHarness(t *testing.T, area world.Rect, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		store:  entity.NewStore(),
		index:  spatial.NewIndex(),
		region: &region{rects: []world.Rect{area}},
	}
	h.reg = NewRegistry(Env{Occupancy: h.index, Regions: h.region, Entities: h.store}, opts)
	h.pipe = h.reg.Register(kindGoal)
	return h
}

func (h *harness) goal(x, y int) entity.ID {
	return h.store.Spawn(entity.Entity{Label: "goal", Pos: world.Cell{X: x, Y: y}, Goals: []entity.Kind{kindGoal}})
}

func (h *harness) wall(x, y int) entity.ID {
	return h.store.Spawn(entity.Entity{Label: "wall", Pos: world.Cell{X: x, Y: y}, Blocking: true})
}

func (h *harness) tick() {
	h.t.Helper()
	h.index.Sync(h.store)
	if err := h.reg.Tick(context.Background()); err != nil {
		h.t.Fatalf("tick: %v", err)
	}
	h.store.Flush()
}

func (h *harness) converge() {
	h.t.Helper()
	for i := 0; i < 50000; i++ {
		h.tick()
		idle := true
		for _, st := range h.reg.Stats() {
			if st.Queued > 0 {
				idle = false
			}
		}
		if idle {
			return
		}
	}
	h.t.Fatalf("field did not converge")
}

func (h *harness) distance(x, y int) (uint32, bool) {
	e, ok := h.pipe.Field().Get(world.Cell{X: x, Y: y})
	return e.Distance, ok
}

// bfs computes reference distances from every goal cell through cells that
// are generated and not blocked. Goal cells are sources even when blocked.
func bfs(area world.Rect, goals, blocked map[world.Cell]bool) map[world.Cell]uint32 {
	dist := make(map[world.Cell]uint32)
	var frontier []world.Cell
	area.Cells(func(c world.Cell) {
		if goals[c] {
			dist[c] = 0
			frontier = append(frontier, c)
		}
	})
	for len(frontier) > 0 {
		c := frontier[0]
		frontier = frontier[1:]
		for _, nb := range c.Neighbors() {
			if !area.Contains(nb) || blocked[nb] || goals[nb] {
				continue
			}
			if _, seen := dist[nb]; seen {
				continue
			}
			dist[nb] = dist[c] + 1
			frontier = append(frontier, nb)
		}
	}
	return dist
}
