package tuner

import (
	"fmt"
	"log/slog"
)

// Tuner ties one observe, decide and act cycle together.
type Tuner struct {
	Observer *Observer
	Actor    *Actor
	Memory   *CycleMemory
	Bounds   Bounds
}

// RunCycle executes one cycle and records it. The record is returned even
// when the budget change is rejected.
func (t *Tuner) RunCycle() (CycleRecord, error) {
	snap, err := t.Observer.Observe()
	if err != nil {
		return CycleRecord{}, fmt.Errorf("observe: %w", err)
	}

	h := Triage(snap)
	d := Decide(h, t.Memory, t.Bounds)
	rec := CycleRecord{
		Tick:      snap.Status.Tick,
		Action:    d.Action,
		Budget:    d.Budget,
		Queued:    h.TotalQueued,
		Level:     h.Level,
		WorstKind: h.WorstKind,
		Rationale: d.Rationale,
	}
	slog.Info("tuner decision",
		"tick", rec.Tick,
		"level", h.Level,
		"queued", h.TotalQueued,
		"action", d.Action,
		"budget", d.Budget,
		"rationale", d.Rationale,
	)

	if d.Action != "none" {
		applied, err := t.Actor.SetBudget(d.Budget)
		if err != nil {
			rec.Action = "failed"
			rec.Budget = h.Budget
			t.Memory.Record(rec)
			t.Memory.Save()
			return rec, fmt.Errorf("apply budget: %w", err)
		}
		rec.Budget = applied
	}

	t.Memory.Record(rec)
	t.Memory.Save()
	return rec, nil
}
