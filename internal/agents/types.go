// Package agents provides the colony workers that move along the
// distance fields: harvesters that walk to the nearest ore and haul it to
// the nearest storage with free space.
package agents

import (
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Goal kinds the colony routes toward.
const (
	KindHarvestable entity.Kind = "harvestable"
	KindStorage     entity.Kind = "storage"
)

// Task is what the agent is currently trying to reach.
type Task uint8

const (
	TaskHarvest Task = iota // Walk to ore and fill up
	TaskDeliver             // Walk to storage and unload
)

// TaskName returns a human-readable name for a task.
func TaskName(t Task) string {
	switch t {
	case TaskHarvest:
		return "harvest"
	case TaskDeliver:
		return "deliver"
	default:
		return "unknown"
	}
}

// Agent is a worker on the grid. Agents never block movement and are not
// entities: the fields ignore them.
type Agent struct {
	ID       AgentID    `json:"id"`
	Name     string     `json:"name"`
	Position world.Cell `json:"position"`

	Task     Task `json:"task"`
	Carrying int  `json:"carrying"`
	Capacity int  `json:"capacity"`

	// Lifetime counters.
	Harvested uint64 `json:"harvested"`
	Delivered uint64 `json:"delivered"`
	Steps     uint64 `json:"steps"`
	IdleTicks uint64 `json:"idle_ticks"` // ticks with no known route
}

// Full reports whether the agent cannot carry more.
func (a *Agent) Full() bool {
	return a.Carrying >= a.Capacity
}

// Target returns the goal kind the agent routes toward for its task.
func (a *Agent) Target() entity.Kind {
	if a.Task == TaskDeliver {
		return KindStorage
	}
	return KindHarvestable
}
