package tuner

import "fmt"

// Bounds limits the budgets the tuner may choose.
type Bounds struct {
	Min int
	Max int
}

// DefaultBounds matches the range the budget endpoint accepts.
func DefaultBounds() Bounds {
	return Bounds{Min: 100, Max: 1_000_000}
}

// Decision is the outcome of one cycle.
type Decision struct {
	Action    string // "raise", "lower" or "none"
	Budget    int
	Rationale string
}

// quietCycles is how many healthy cycles in a row must pass before the
// budget is lowered.
const quietCycles = 3

// Decide picks the next budget from the current health and recent history.
// Backlog is answered immediately; a budget is only given back after the
// fields have stayed drained for a while.
func Decide(h *Health, mem *CycleMemory, b Bounds) Decision {
	cur := h.Budget
	next := cur
	var why string

	switch h.Level {
	case LevelCritical:
		next = cur * 2
		why = fmt.Sprintf("%s backlog %d exceeds four ticks of budget", h.WorstKind, h.MaxQueued)
	case LevelWarning:
		if mem.Last(1, LevelWarning, LevelCritical) {
			next = cur + cur/2
			why = fmt.Sprintf("%s backlog %d persisted across cycles", h.WorstKind, h.MaxQueued)
		} else {
			why = "backlog appeared, waiting one cycle"
		}
	case LevelHealthy:
		if mem.Last(quietCycles-1, LevelHealthy) {
			next = cur - cur/4
			why = "fields drained for several cycles"
		} else {
			why = "fields drained"
		}
	default:
		why = "queues draining within budget"
	}

	next = min(max(next, b.Min), b.Max)
	switch {
	case next > cur:
		return Decision{Action: "raise", Budget: next, Rationale: why}
	case next < cur:
		return Decision{Action: "lower", Budget: next, Rationale: why}
	}
	return Decision{Action: "none", Budget: cur, Rationale: why}
}
