package pathfind

import (
	"math"
	"math/rand"
	"testing"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

func TestCorridorDistances(t *testing.T) {
	h := newHarness(t, rect(0, 0, 5, 1), DefaultOptions())
	h.goal(0, 0)
	h.converge()

	for x := 0; x < 5; x++ {
		d, ok := h.distance(x, 0)
		if !ok {
			t.Fatalf("cell %d has no entry", x)
		}
		if d != uint32(x) {
			t.Errorf("cell %d: distance = %d, want %d", x, d, x)
		}
	}
}

func TestCorridorBlocked(t *testing.T) {
	h := newHarness(t, rect(0, 0, 5, 1), DefaultOptions())
	h.goal(0, 0)
	h.converge()

	h.wall(2, 0)
	h.converge()

	if d, ok := h.distance(1, 0); !ok || d != 1 {
		t.Errorf("cell 1: got (%d, %v), want (1, true)", d, ok)
	}
	for _, x := range []int{2, 3, 4} {
		if d, ok := h.distance(x, 0); ok {
			t.Errorf("cell %d: unexpected entry with distance %d", x, d)
		}
	}
}

func TestPathfindSplitsEqualRoutes(t *testing.T) {
	h := newHarness(t, rect(0, 0, 5, 1), DefaultOptions())
	h.goal(0, 0)
	h.goal(4, 0)
	h.converge()

	rng := rand.New(rand.NewSource(7))
	counts := make(map[world.Cell]int)
	const draws = 1000
	for i := 0; i < draws; i++ {
		dir, ok := h.pipe.Field().Pathfind(world.Cell{X: 2, Y: 0}, rng)
		if !ok {
			t.Fatal("no direction from the middle of the corridor")
		}
		if dir.Distance != 2 {
			t.Fatalf("distance = %d, want 2", dir.Distance)
		}
		counts[dir.Dir]++
	}

	east := float64(counts[world.Cell{X: 1, Y: 0}]) / draws
	west := float64(counts[world.Cell{X: -1, Y: 0}]) / draws
	if math.Abs(east-0.5) > 0.1 || math.Abs(west-0.5) > 0.1 {
		t.Errorf("split east=%.3f west=%.3f, want both near 0.5", east, west)
	}
}

func TestPathfindWeightsByWays(t *testing.T) {
	// Two goals feed (1,1) from below-left; one goal feeds (3,1) from the right.
	// From (2,1): west neighbor (1,1) has ways 2, east neighbor (3,1) has ways 1.
	h := newHarness(t, rect(0, 0, 5, 3), DefaultOptions())
	for _, c := range []world.Cell{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: 4, Y: 1}} {
		h.goal(c.X, c.Y)
	}
	for _, c := range []world.Cell{{X: 1, Y: 2}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 3, Y: 0}, {X: 3, Y: 2}, {X: 0, Y: 0}, {X: 0, Y: 2}, {X: 4, Y: 0}, {X: 4, Y: 2}} {
		h.wall(c.X, c.Y)
	}
	h.converge()

	w, _ := h.pipe.Field().Get(world.Cell{X: 1, Y: 1})
	e, _ := h.pipe.Field().Get(world.Cell{X: 3, Y: 1})
	if w.Ways != 2 || e.Ways != 1 {
		t.Fatalf("ways west=%v east=%v, want 2 and 1", w.Ways, e.Ways)
	}

	rng := rand.New(rand.NewSource(11))
	west := 0
	const draws = 3000
	for i := 0; i < draws; i++ {
		dir, _ := h.pipe.Field().Pathfind(world.Cell{X: 2, Y: 1}, rng)
		if dir.Dir == (world.Cell{X: -1, Y: 0}) {
			west++
		}
	}
	if frac := float64(west) / draws; math.Abs(frac-2.0/3.0) > 0.05 {
		t.Errorf("west fraction = %.3f, want about 0.667", frac)
	}
}

func TestPathfindWithoutField(t *testing.T) {
	h := newHarness(t, rect(0, 0, 4, 4), DefaultOptions())
	if _, ok := h.pipe.Field().Pathfind(world.Cell{X: 1, Y: 1}, nil); ok {
		t.Fatal("expected no direction on an empty field")
	}
}

func TestMovingGoal(t *testing.T) {
	area := rect(0, 0, 10, 10)
	h := newHarness(t, area, DefaultOptions())
	id := h.goal(1, 1)
	h.converge()

	b := world.Cell{X: 8, Y: 8}
	h.store.Move(id, b)
	h.tick()
	if got := h.pipe.Stats().Detected; got != 2 {
		t.Fatalf("detected = %d, want 2 (old and new cell)", got)
	}
	h.converge()

	area.Cells(func(c world.Cell) {
		d, ok := h.pipe.Field().Get(c)
		if !ok {
			t.Fatalf("%v has no entry", c)
		}
		if want := uint32(world.Manhattan(c, b)); d.Distance != want {
			t.Errorf("%v: distance = %d, want %d", c, d.Distance, want)
		}
	})
}

func TestDetectionQueuesFootprintDifference(t *testing.T) {
	cases := []struct {
		name   string
		change func(h *harness, id entity.ID)
		want   int
	}{
		{"move east", func(h *harness, id entity.ID) { h.store.Move(id, world.Cell{X: 3, Y: 2}) }, 4},
		{"widen", func(h *harness, id entity.ID) { h.store.Resize(id, world.Size{W: 3, H: 2}) }, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, rect(0, 0, 10, 10), DefaultOptions())
			id := h.store.Spawn(entity.Entity{
				Label: "goal",
				Pos:   world.Cell{X: 2, Y: 2},
				Size:  world.Size{W: 2, H: 2},
				Goals: []entity.Kind{kindGoal},
			})
			h.converge()

			tc.change(h, id)
			h.tick()
			if got := h.pipe.Stats().Detected; got != tc.want {
				t.Fatalf("detected = %d, want %d", got, tc.want)
			}
			h.converge()
			if d, ok := h.distance(4, 3); !ok || d != 0 {
				t.Fatalf("(4,3) = (%d, %v), want (0, true)", d, ok)
			}
		})
	}
}

func TestGoalOverridesBlocking(t *testing.T) {
	h := newHarness(t, rect(0, 0, 3, 1), DefaultOptions())
	h.store.Spawn(entity.Entity{
		Label:    "storage",
		Pos:      world.Cell{X: 0, Y: 0},
		Blocking: true,
		Goals:    []entity.Kind{kindGoal},
	})
	h.converge()

	if d, ok := h.distance(0, 0); !ok || d != 0 {
		t.Fatalf("dual-role cell: got (%d, %v), want (0, true)", d, ok)
	}
	if d, ok := h.distance(2, 0); !ok || d != 2 {
		t.Fatalf("far cell: got (%d, %v), want (2, true)", d, ok)
	}
}

func TestRoleChangeDirtiesWholeFootprint(t *testing.T) {
	h := newHarness(t, rect(0, 0, 4, 4), DefaultOptions())
	h.goal(0, 0)
	id := h.store.Spawn(entity.Entity{
		Label:    "storage",
		Pos:      world.Cell{X: 2, Y: 2},
		Size:     world.Size{W: 2, H: 2},
		Blocking: true,
	})
	h.converge()
	if _, ok := h.distance(3, 3); ok {
		t.Fatal("blocked footprint should have no entry")
	}

	h.store.AddGoal(id, kindGoal)
	h.tick()
	if got := h.pipe.Stats().Detected; got != 4 {
		t.Fatalf("detected = %d, want 4", got)
	}
	h.converge()
	for _, c := range []world.Cell{{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 2, Y: 3}, {X: 3, Y: 3}} {
		if d, ok := h.pipe.Field().Get(c); !ok || d.Distance != 0 {
			t.Errorf("%v: got %+v (%v), want distance 0", c, d, ok)
		}
	}

	h.store.RemoveGoal(id, kindGoal)
	h.converge()
	if _, ok := h.distance(3, 3); ok {
		t.Fatal("footprint should be blocked again after losing the goal marker")
	}
}

func TestDespawnRemovesFootprint(t *testing.T) {
	h := newHarness(t, rect(0, 0, 6, 1), DefaultOptions())
	id := h.goal(0, 0)
	h.converge()
	if h.pipe.Stats().Tracked != 1 {
		t.Fatalf("tracked = %d, want 1", h.pipe.Stats().Tracked)
	}

	h.store.Despawn(id)
	h.converge()
	if n := h.pipe.Field().Len(); n != 0 {
		t.Fatalf("field size = %d after last goal vanished, want 0", n)
	}
	if h.pipe.Stats().Tracked != 0 {
		t.Fatalf("tracked = %d, want 0", h.pipe.Stats().Tracked)
	}
}

func TestIdempotentWhenQueueEmpty(t *testing.T) {
	h := newHarness(t, rect(0, 0, 8, 8), DefaultOptions())
	h.goal(3, 3)
	h.wall(4, 4)
	h.converge()

	before := h.pipe.Field().Entries()
	h.tick()
	after := h.pipe.Field().Entries()

	if h.pipe.Stats().Popped != 0 {
		t.Fatalf("popped = %d on an empty queue", h.pipe.Stats().Popped)
	}
	if len(before) != len(after) {
		t.Fatalf("entry count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("entry %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestBudgetCarriesOver(t *testing.T) {
	h := newHarness(t, rect(0, 0, 20, 20), Options{Budget: 10, MaxDistance: DefaultMaxDistance})
	h.goal(0, 0)
	h.tick()

	st := h.pipe.Stats()
	if st.Popped != 10 {
		t.Fatalf("popped = %d, want budget 10", st.Popped)
	}
	if st.Queued == 0 {
		t.Fatal("expected leftover work after exhausting the budget")
	}
	if _, ok := h.distance(19, 19); ok {
		t.Fatal("far corner should not be reached in one tick")
	}

	h.converge()
	if d, ok := h.distance(19, 19); !ok || d != 38 {
		t.Fatalf("far corner: got (%d, %v), want (38, true)", d, ok)
	}
}

func TestHorizonTerminatesCountUp(t *testing.T) {
	h := newHarness(t, rect(0, 0, 6, 1), Options{Budget: 100, MaxDistance: 50})
	id := h.goal(0, 0)
	h.converge()
	if d, ok := h.distance(5, 0); !ok || d != 5 {
		t.Fatalf("got (%d, %v), want (5, true)", d, ok)
	}

	h.store.Despawn(id)
	h.converge()
	if n := h.pipe.Field().Len(); n != 0 {
		t.Fatalf("field size = %d, want 0", n)
	}
}

func TestHorizonLimitsReach(t *testing.T) {
	h := newHarness(t, rect(0, 0, 10, 1), Options{MaxDistance: 4})
	h.goal(0, 0)
	h.converge()
	if d, ok := h.distance(3, 0); !ok || d != 3 {
		t.Fatalf("got (%d, %v), want (3, true)", d, ok)
	}
	if _, ok := h.distance(4, 0); ok {
		t.Fatal("cell at the horizon should be unreachable")
	}
}

func TestConvergesToReferenceUnderChurn(t *testing.T) {
	area := rect(0, 0, 12, 12)
	h := newHarness(t, area, Options{Budget: 64, MaxDistance: 200})
	rng := rand.New(rand.NewSource(3))

	goals := make(map[entity.ID]world.Cell)
	walls := make(map[entity.ID]world.Cell)
	randomCell := func() world.Cell {
		return world.Cell{X: rng.Intn(12), Y: rng.Intn(12)}
	}
	for i := 0; i < 3; i++ {
		c := randomCell()
		goals[h.goal(c.X, c.Y)] = c
	}
	for i := 0; i < 30; i++ {
		c := randomCell()
		walls[h.wall(c.X, c.Y)] = c
	}

	for round := 0; round < 8; round++ {
		// Churn: move one goal, move a few walls, sometimes add or drop a goal.
		for id := range goals {
			c := randomCell()
			h.store.Move(id, c)
			goals[id] = c
			break
		}
		n := 0
		for id := range walls {
			if n == 4 {
				break
			}
			c := randomCell()
			h.store.Move(id, c)
			walls[id] = c
			n++
		}
		if round%3 == 0 {
			c := randomCell()
			goals[h.goal(c.X, c.Y)] = c
		}
		if round%3 == 1 && len(goals) > 1 {
			for id := range goals {
				h.store.Despawn(id)
				delete(goals, id)
				break
			}
		}
		h.tick() // part of the work lands while more changes arrive
		h.converge()

		goalSet := make(map[world.Cell]bool)
		for _, c := range goals {
			goalSet[c] = true
		}
		blocked := make(map[world.Cell]bool)
		for _, c := range walls {
			blocked[c] = true
		}
		want := bfs(area, goalSet, blocked)

		area.Cells(func(c world.Cell) {
			got, ok := h.pipe.Field().Get(c)
			wd, wok := want[c]
			if ok != wok {
				t.Fatalf("round %d %v: entry present=%v, want %v", round, c, ok, wok)
			}
			if ok && got.Distance != wd {
				t.Fatalf("round %d %v: distance %d, want %d", round, c, got.Distance, wd)
			}
			if blocked[c] && !goalSet[c] && ok {
				t.Fatalf("round %d %v: blocked cell has an entry", round, c)
			}
		})
		checkWays(t, h.pipe.Field())
	}
}

// checkWays asserts that every non-goal entry's Ways is the capped sum of
// its neighbors one step closer.
func checkWays(t *testing.T, f *Field) {
	t.Helper()
	for _, ce := range f.Entries() {
		if ce.Entry.Distance == 0 {
			if ce.Entry.Ways != 1 {
				t.Fatalf("goal %v has ways %v", ce.Cell, ce.Entry.Ways)
			}
			continue
		}
		sum := 0.0
		for _, nb := range ce.Cell.Neighbors() {
			if ne, ok := f.Get(nb); ok && ne.Distance == ce.Entry.Distance-1 {
				sum = addWays(sum, ne.Ways)
			}
		}
		if sum != ce.Entry.Ways {
			t.Fatalf("%v: ways %v, want %v", ce.Cell, ce.Entry.Ways, sum)
		}
	}
}

func TestNewGoalNeverIncreasesDistance(t *testing.T) {
	area := rect(0, 0, 15, 15)
	h := newHarness(t, area, DefaultOptions())
	h.goal(0, 0)
	for y := 0; y < 12; y++ {
		h.wall(7, y)
	}
	h.converge()
	before := make(map[world.Cell]uint32)
	for _, ce := range h.pipe.Field().Entries() {
		before[ce.Cell] = ce.Entry.Distance
	}

	h.goal(12, 3)
	h.converge()
	for c, d := range before {
		got, ok := h.pipe.Field().Get(c)
		if !ok || got.Distance > d {
			t.Fatalf("%v: distance went from %d to %+v (present=%v)", c, d, got, ok)
		}
	}
}

func TestWaysSaturate(t *testing.T) {
	// An open field grows path counts combinatorially; they must stop at MaxWays.
	h := newHarness(t, rect(0, 0, 40, 40), DefaultOptions())
	h.goal(0, 0)
	h.converge()

	e, ok := h.pipe.Field().Get(world.Cell{X: 39, Y: 39})
	if !ok {
		t.Fatal("corner unreachable")
	}
	if e.Ways != MaxWays {
		t.Fatalf("ways = %v, want cap %v", e.Ways, MaxWays)
	}
	checkWays(t, h.pipe.Field())
}

func TestFieldStaysInsideGeneratedRegion(t *testing.T) {
	h := newHarness(t, rect(0, 0, 4, 4), DefaultOptions())
	h.goal(3, 3)
	h.goal(10, 10) // outside: discarded
	h.converge()

	if _, ok := h.distance(10, 10); ok {
		t.Fatal("ungenerated goal cell should not carry an entry")
	}
	if _, ok := h.distance(4, 3); ok {
		t.Fatal("field leaked past the region edge")
	}
	if d, ok := h.distance(0, 0); !ok || d != 6 {
		t.Fatalf("got (%d, %v), want (6, true)", d, ok)
	}
}
