package tuner

// Backlog levels, worst first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// Health holds derived backlog signals computed from a Snapshot.
type Health struct {
	Budget      int
	TotalQueued int
	MaxQueued   int
	WorstKind   string
	Level       string
}

// Triage computes a Health from the snapshot. A kind whose queue exceeds
// several ticks of budget is critical; one that cannot drain within a
// single tick is a warning.
func Triage(snap *Snapshot) *Health {
	h := &Health{Budget: snap.Status.Budget, Level: LevelHealthy}

	for _, k := range snap.Kinds {
		h.TotalQueued += k.Queued
		if k.Queued > h.MaxQueued {
			h.MaxQueued = k.Queued
			h.WorstKind = k.Kind
		}
	}

	budget := max(h.Budget, 1)
	switch {
	case h.MaxQueued > 4*budget:
		h.Level = LevelCritical
	case h.MaxQueued > budget:
		h.Level = LevelWarning
	case h.MaxQueued > 0:
		h.Level = LevelWatch
	}
	return h
}
