package pathfind

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

// Registry holds one pipeline per registered goal kind.
type Registry struct {
	env       Env
	opts      Options
	parallel  bool
	pipelines map[entity.Kind]*Pipeline
	order     []entity.Kind
}

// NewRegistry creates a registry whose pipelines read from env.
func NewRegistry(env Env, opts Options) *Registry {
	return &Registry{
		env:       env,
		opts:      opts,
		pipelines: make(map[entity.Kind]*Pipeline),
	}
}

// Register creates the pipeline for kind. Registering an existing kind
// returns the pipeline already in place.
func (r *Registry) Register(kind entity.Kind) *Pipeline {
	if p, ok := r.pipelines[kind]; ok {
		return p
	}
	p := newPipeline(kind, r.env, r.opts)
	r.pipelines[kind] = p
	r.order = append(r.order, kind)
	slog.Debug("goal kind registered", "kind", kind)
	return p
}

// Pipeline returns the pipeline for kind.
func (r *Registry) Pipeline(kind entity.Kind) (*Pipeline, bool) {
	p, ok := r.pipelines[kind]
	return p, ok
}

// Field returns the distance field for kind.
func (r *Registry) Field(kind entity.Kind) (*Field, bool) {
	p, ok := r.pipelines[kind]
	if !ok {
		return nil, false
	}
	return p.field, true
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []entity.Kind {
	return append([]entity.Kind(nil), r.order...)
}

// SetParallel toggles concurrent execution of pipelines within a tick.
func (r *Registry) SetParallel(on bool) {
	r.parallel = on
}

// SetBudget changes the per-tick relaxation budget of every pipeline.
func (r *Registry) SetBudget(n int) {
	r.opts.Budget = n
	for _, p := range r.pipelines {
		p.opts.Budget = n
	}
}

// Budget returns the current per-tick relaxation budget.
func (r *Registry) Budget() int {
	if r.opts.Budget <= 0 {
		return DefaultBudget
	}
	return r.opts.Budget
}

// Tick runs every pipeline once. Pipelines share no mutable state, so in
// parallel mode each runs on its own goroutine. The context is only checked
// before a pipeline starts; a started pipeline always finishes its tick.
func (r *Registry) Tick(ctx context.Context) error {
	if !r.parallel || len(r.order) < 2 {
		for _, kind := range r.order {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.logBacklog(r.pipelines[kind].Tick())
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	stats := make([]Stats, len(r.order))
	for i, kind := range r.order {
		i, p := i, r.pipelines[kind]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats[i] = p.Tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, st := range stats {
		r.logBacklog(st)
	}
	return nil
}

// InvalidateRect queues the perimeter of rect in every pipeline, plus any
// tracked footprint cells inside it. Called when a new chunk is generated so
// existing fields flow into it and goals that were seen before the ground
// existed get their entries.
func (r *Registry) InvalidateRect(rect world.Rect) {
	var cells []world.Cell
	rect.Perimeter(func(c world.Cell) {
		cells = append(cells, c)
	})
	for _, kind := range r.order {
		p := r.pipelines[kind]
		p.Invalidate(cells...)
		p.invalidateTracked(rect)
	}
}

// Stats returns per-kind counters in registration order.
func (r *Registry) Stats() []Stats {
	out := make([]Stats, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.pipelines[kind].Stats())
	}
	return out
}

func (r *Registry) logBacklog(st Stats) {
	if st.Queued == 0 || st.Popped < r.Budget() {
		return
	}
	slog.Debug("relaxation budget exhausted",
		"kind", st.Kind,
		"popped", st.Popped,
		"changed", st.Changed,
		"queued", st.Queued,
	)
}
