package pathfind

import (
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

// Occupancy answers which entities cover a cell.
type Occupancy interface {
	EntitiesAt(c world.Cell) []entity.ID
}

// Regions answers whether a cell has been materialized.
type Regions interface {
	IsGenerated(c world.Cell) bool
}

// Entities exposes entity markers and the set touched this tick.
type Entities interface {
	Touched() []entity.ID
	Get(id entity.ID) (entity.Entity, bool)
	HasGoal(id entity.ID, kind entity.Kind) bool
	IsBlocking(id entity.ID) bool
}

// Env bundles the collaborators every pipeline reads. All three must
// reflect the current tick before Tick runs and must not be mutated while
// pipelines are running.
type Env struct {
	Occupancy Occupancy
	Regions   Regions
	Entities  Entities
}

// Options tunes a pipeline.
type Options struct {
	Budget      int    // dirty cells relaxed per tick; <= 0 means DefaultBudget
	MaxDistance uint32 // horizon; 0 disables it
}

// DefaultOptions returns the stock budget and horizon.
func DefaultOptions() Options {
	return Options{Budget: DefaultBudget, MaxDistance: DefaultMaxDistance}
}

// Stats describes a pipeline after its most recent tick.
type Stats struct {
	Kind      entity.Kind `json:"kind"`
	FieldSize int         `json:"field_size"`
	Queued    int         `json:"queued"`
	Tracked   int         `json:"tracked"`
	Detected  int         `json:"detected"` // dirty cells produced by change detection
	Popped    int         `json:"popped"`
	Changed   int         `json:"changed"`
	Ticks     uint64      `json:"ticks"`
}

// Pipeline is the complete engine for one goal kind. Its field, queue and
// footprint table are owned exclusively by it.
type Pipeline struct {
	kind    entity.Kind
	env     Env
	opts    Options
	field   *Field
	queue   dirtyQueue
	tracked map[entity.ID]footprint
	stats   Stats
}

func newPipeline(kind entity.Kind, env Env, opts Options) *Pipeline {
	return &Pipeline{
		kind:    kind,
		env:     env,
		opts:    opts,
		field:   newField(kind),
		tracked: make(map[entity.ID]footprint),
		stats:   Stats{Kind: kind},
	}
}

// Kind returns the goal kind.
func (p *Pipeline) Kind() entity.Kind {
	return p.kind
}

// Field returns the pipeline's distance field for reading.
func (p *Pipeline) Field() *Field {
	return p.field
}

// Tick runs change detection and then one budgeted relaxation pass.
func (p *Pipeline) Tick() Stats {
	budget := p.opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	detected := p.detectChanges()
	popped, changed := p.relax(budget)

	p.stats.Detected = detected
	p.stats.Popped = popped
	p.stats.Changed = changed
	p.stats.Ticks++
	p.refreshStats()
	return p.stats
}

// Converge ticks until the dirty queue is empty or maxTicks is reached and
// reports whether the field converged.
func (p *Pipeline) Converge(maxTicks int) bool {
	for i := 0; i < maxTicks; i++ {
		p.Tick()
		if p.queue.len() == 0 {
			return true
		}
	}
	return p.queue.len() == 0
}

// Invalidate queues cells for re-evaluation at priority 0.
func (p *Pipeline) Invalidate(cells ...world.Cell) {
	for _, c := range cells {
		p.queue.push(0, c)
	}
	p.stats.Queued = p.queue.len()
}

// invalidateTracked queues every tracked footprint cell that lies in rect.
func (p *Pipeline) invalidateTracked(rect world.Rect) {
	for _, fp := range p.tracked {
		fp.rect.Cells(func(c world.Cell) {
			if rect.Contains(c) {
				p.queue.push(0, c)
			}
		})
	}
	p.stats.Queued = p.queue.len()
}

// Stats returns the counters from the most recent tick.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

func (p *Pipeline) refreshStats() {
	p.stats.FieldSize = p.field.Len()
	p.stats.Queued = p.queue.len()
	p.stats.Tracked = len(p.tracked)
}

// Snapshot captures a pipeline's field and pending work for persistence.
type Snapshot struct {
	Kind    entity.Kind  `json:"kind"`
	Entries []CellEntry  `json:"entries"`
	Pending []world.Cell `json:"pending"`
}

// Snapshot returns the current field and queued cells.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Kind:    p.kind,
		Entries: p.field.Entries(),
		Pending: p.queue.cells(),
	}
}

// Restore warm-starts the field from a snapshot. Existing entries are
// replaced and pending cells are queued at priority 0. Footprints are not
// part of a snapshot: restored entities are observed again as new.
func (p *Pipeline) Restore(s Snapshot) {
	clear(p.field.entries)
	for _, ce := range s.Entries {
		p.field.set(ce.Cell, ce.Entry)
	}
	p.Invalidate(s.Pending...)
	p.refreshStats()
}
