// Agent behavior: a two-state hauling loop.
// Every tick each agent asks the field for its current target kind and
// either steps toward it or, when the goal is adjacent, works it.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/pathfind"
	"github.com/talgya/flowgrid/internal/world"
)

// Action represents what an agent decided to do this tick.
type Action struct {
	AgentID AgentID
	Kind    ActionKind
	Target  world.Cell // Cell moved into, or goal cell worked
}

// ActionKind enumerates the possible actions.
type ActionKind uint8

const (
	ActionIdle    ActionKind = iota // No route known
	ActionMove                      // Step one cell toward the goal
	ActionHarvest                   // Take one unit from adjacent ore
	ActionDeposit                   // Unload into adjacent storage
)

// Navigator answers next-step queries per goal kind.
type Navigator interface {
	Pathfind(kind entity.Kind, from world.Cell, rng *rand.Rand) (pathfind.Direction, bool)
}

// Site is the part of the world agents interact with.
type Site interface {
	// Harvest takes one unit from the ore at c and reports success.
	Harvest(c world.Cell) bool
	// Deposit stores up to n units in the storage at c and returns how
	// many were accepted.
	Deposit(c world.Cell, n int) int
}

// Decide determines what an agent does this tick.
func Decide(a *Agent, nav Navigator, rng *rand.Rand) Action {
	updateTask(a)

	dir, ok := nav.Pathfind(a.Target(), a.Position, rng)
	if !ok && a.Task == TaskHarvest && a.Carrying > 0 {
		// Nothing left to harvest in reach: bank what we have.
		a.Task = TaskDeliver
		dir, ok = nav.Pathfind(a.Target(), a.Position, rng)
	}
	if !ok {
		return Action{AgentID: a.ID, Kind: ActionIdle}
	}

	target := a.Position.Add(dir.Dir)
	if dir.Distance > 1 {
		return Action{AgentID: a.ID, Kind: ActionMove, Target: target}
	}
	// The chosen neighbor is a goal cell.
	if a.Task == TaskDeliver {
		return Action{AgentID: a.ID, Kind: ActionDeposit, Target: target}
	}
	return Action{AgentID: a.ID, Kind: ActionHarvest, Target: target}
}

func updateTask(a *Agent) {
	switch {
	case a.Full():
		a.Task = TaskDeliver
	case a.Carrying == 0:
		a.Task = TaskHarvest
	}
}

// ApplyAction executes a decided action and returns notable event
// descriptions.
func ApplyAction(a *Agent, action Action, site Site) []string {
	switch action.Kind {
	case ActionMove:
		a.Position = action.Target
		a.Steps++
	case ActionHarvest:
		if site.Harvest(action.Target) {
			a.Carrying++
			a.Harvested++
		}
		if a.Full() {
			a.Task = TaskDeliver
		}
	case ActionDeposit:
		n := site.Deposit(action.Target, a.Carrying)
		a.Carrying -= n
		a.Delivered += uint64(n)
		if a.Carrying == 0 {
			a.Task = TaskHarvest
			return []string{fmt.Sprintf("%s delivered %d ore at %v", a.Name, n, action.Target)}
		}
	default:
		a.IdleTicks++
	}
	return nil
}
