package pathfind

import (
	"math/rand"

	"github.com/talgya/flowgrid/internal/world"
)

// Direction is the step chosen by Pathfind.
type Direction struct {
	Dir      world.Cell `json:"dir"`      // unit offset from the query cell
	Distance uint32     `json:"distance"` // steps from the query cell to the goal via Dir
}

// Pathfind picks the next step from `from` toward the nearest goal.
//
// Among the neighbors with the smallest distance, one is drawn at random
// weighted by its Ways, so agents spread across equally short routes in
// proportion to how many paths run through each. It returns false when no
// neighbor has an entry. A nil rng draws from the shared math/rand source.
func (f *Field) Pathfind(from world.Cell, rng *rand.Rand) (Direction, bool) {
	var (
		near  [4]Entry
		found [4]bool
		best  uint32
		have  bool
	)
	for i, dir := range world.MoveDirections {
		e, ok := f.entries[from.Add(dir)]
		if !ok {
			continue
		}
		near[i], found[i] = e, true
		if !have || e.Distance < best {
			best, have = e.Distance, true
		}
	}
	if !have {
		return Direction{}, false
	}

	total := 0.0
	for i := range near {
		if found[i] && near[i].Distance == best {
			total += near[i].Ways
		}
	}

	var r float64
	if rng != nil {
		r = rng.Float64() * total
	} else {
		r = rand.Float64() * total
	}

	pick := -1
	for i := range near {
		if !found[i] || near[i].Distance != best {
			continue
		}
		pick = i
		if r < near[i].Ways {
			break
		}
		r -= near[i].Ways
	}
	return Direction{Dir: world.MoveDirections[pick], Distance: best + 1}, true
}
