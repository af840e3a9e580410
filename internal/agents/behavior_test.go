package agents

import (
	"math/rand"
	"testing"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/pathfind"
	"github.com/talgya/flowgrid/internal/world"
)

// fakeNav returns a fixed answer per kind.
type fakeNav map[entity.Kind]pathfind.Direction

func (n fakeNav) Pathfind(kind entity.Kind, _ world.Cell, _ *rand.Rand) (pathfind.Direction, bool) {
	d, ok := n[kind]
	return d, ok
}

type fakeSite struct {
	ore      int
	room     int
	deposits int
}

func (s *fakeSite) Harvest(world.Cell) bool {
	if s.ore == 0 {
		return false
	}
	s.ore--
	return true
}

func (s *fakeSite) Deposit(_ world.Cell, n int) int {
	n = min(n, s.room)
	s.room -= n
	s.deposits++
	return n
}

var east = world.Cell{X: 1, Y: 0}

func TestDecideMovesTowardOre(t *testing.T) {
	a := &Agent{ID: 1, Capacity: 3}
	nav := fakeNav{KindHarvestable: {Dir: east, Distance: 4}}

	act := Decide(a, nav, nil)
	if act.Kind != ActionMove || act.Target != east {
		t.Fatalf("action = %+v, want move east", act)
	}
	ApplyAction(a, act, &fakeSite{})
	if a.Position != east || a.Steps != 1 {
		t.Fatalf("agent = %+v", a)
	}
}

func TestHarvestThenDeliver(t *testing.T) {
	a := &Agent{ID: 1, Name: "Tova Voss", Capacity: 2}
	site := &fakeSite{ore: 10, room: 100}
	nav := fakeNav{
		KindHarvestable: {Dir: east, Distance: 1},
		KindStorage:     {Dir: east, Distance: 1},
	}

	for i := 0; i < 2; i++ {
		act := Decide(a, nav, nil)
		if act.Kind != ActionHarvest {
			t.Fatalf("tick %d: action = %v, want harvest", i, act.Kind)
		}
		ApplyAction(a, act, site)
	}
	if a.Carrying != 2 || a.Task != TaskDeliver {
		t.Fatalf("after harvesting: %+v", a)
	}

	act := Decide(a, nav, nil)
	if act.Kind != ActionDeposit {
		t.Fatalf("action = %v, want deposit", act.Kind)
	}
	if events := ApplyAction(a, act, site); len(events) != 1 {
		t.Fatalf("events = %v", events)
	}
	if a.Carrying != 0 || a.Delivered != 2 || a.Task != TaskHarvest {
		t.Fatalf("after delivery: %+v", a)
	}
}

func TestPartialDepositKeepsDelivering(t *testing.T) {
	a := &Agent{ID: 1, Capacity: 5, Carrying: 5, Task: TaskDeliver}
	site := &fakeSite{room: 3}
	nav := fakeNav{KindStorage: {Dir: east, Distance: 1}}

	ApplyAction(a, Decide(a, nav, nil), site)
	if a.Carrying != 2 || a.Task != TaskDeliver {
		t.Fatalf("agent = %+v", a)
	}
}

func TestNoOreLeftBanksCargo(t *testing.T) {
	a := &Agent{ID: 1, Capacity: 5, Carrying: 2}
	nav := fakeNav{KindStorage: {Dir: east, Distance: 3}}

	act := Decide(a, nav, nil)
	if act.Kind != ActionMove || a.Task != TaskDeliver {
		t.Fatalf("action = %+v task = %s", act, TaskName(a.Task))
	}
}

func TestIdleWithoutRoute(t *testing.T) {
	a := &Agent{ID: 1, Capacity: 5}
	act := Decide(a, fakeNav{}, nil)
	if act.Kind != ActionIdle {
		t.Fatalf("action = %v, want idle", act.Kind)
	}
	ApplyAction(a, act, &fakeSite{})
	if a.IdleTicks != 1 {
		t.Fatalf("idle ticks = %d", a.IdleTicks)
	}
}

func TestSpawnerDeterministic(t *testing.T) {
	blocked := world.Cell{X: 0, Y: 0}
	open := func(c world.Cell) bool { return c != blocked }

	a := NewSpawner(7).SpawnCrew(10, world.Cell{}, 3, 4, open)
	b := NewSpawner(7).SpawnCrew(10, world.Cell{}, 3, 4, open)
	for i := range a {
		if *a[i] != *b[i] {
			t.Fatalf("agent %d differs: %+v vs %+v", i, a[i], b[i])
		}
		if a[i].ID != AgentID(i+1) || a[i].Capacity != 4 {
			t.Fatalf("agent %d = %+v", i, a[i])
		}
		if a[i].Position == blocked || world.Manhattan(a[i].Position, world.Cell{}) > 6 {
			t.Fatalf("agent %d placed at %v", i, a[i].Position)
		}
	}
}
