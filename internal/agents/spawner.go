// Agent spawning places the initial crew on open cells around a point.
package agents

import (
	"math/rand"

	"github.com/talgya/flowgrid/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SpawnCrew creates count agents scattered within radius of center. open
// rejects cells an agent may not stand on.
func (s *Spawner) SpawnCrew(count int, center world.Cell, radius int, capacity int, open func(world.Cell) bool) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, s.spawnOne(s.pickCell(center, radius, open), capacity))
	}
	return agents
}

func (s *Spawner) spawnOne(pos world.Cell, capacity int) *Agent {
	id := s.nextID
	s.nextID++
	return &Agent{
		ID:       id,
		Name:     s.generateName(),
		Position: pos,
		Task:     TaskHarvest,
		Capacity: capacity,
	}
}

// pickCell samples random cells in the square around center until one is
// open. After enough misses it scans the square in order, and settles on
// center only when nothing in it is open.
func (s *Spawner) pickCell(center world.Cell, radius int, open func(world.Cell) bool) world.Cell {
	for attempt := 0; attempt < 64; attempt++ {
		c := world.Cell{
			X: center.X + s.rng.Intn(2*radius+1) - radius,
			Y: center.Y + s.rng.Intn(2*radius+1) - radius,
		}
		if open == nil || open(c) {
			return c
		}
	}
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			if c := (world.Cell{X: x, Y: y}); open(c) {
				return c
			}
		}
	}
	return center
}

func (s *Spawner) generateName() string {
	var firsts []string
	if s.rng.Float32() < 0.5 {
		firsts = maleNames
	} else {
		firsts = femaleNames
	}
	first := firsts[s.rng.Intn(len(firsts))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Cora", "Dagny", "Elsa", "Freya", "Greta",
	"Hilda", "Ingrid", "Jorunn", "Kara", "Liv", "Maren", "Nora",
	"Oda", "Petra", "Ragna", "Sigrid", "Tova", "Una", "Vera",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Ironhand", "Dunmore",
	"Greenvale", "Stormcrow", "Frostborn", "Hearthstone", "Millward",
	"Copperfield", "Ravenmoor", "Silverdale", "Wolfsbane", "Stoneheart",
	"Deepwell", "Brightwater", "Oakenshield", "Redforge", "Windholm",
}
