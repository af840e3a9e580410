package pathfind

import "github.com/talgya/flowgrid/internal/world"

// relax drains up to budget dirty cells. Each popped cell is re-derived from
// its occupants and its neighbors' current entries; when the value changes
// the generated neighbors are queued one hop further out. Cells left in the
// queue wait for the next tick.
func (p *Pipeline) relax(budget int) (popped, changed int) {
	for popped < budget {
		d, ok := p.queue.pop()
		if !ok {
			break
		}
		popped++

		next, has := p.evaluate(d.cell)
		old, had := p.field.Get(d.cell)
		if had == has && (!has || old == next) {
			continue
		}
		changed++

		if has {
			p.field.set(d.cell, next)
		} else {
			p.field.remove(d.cell)
		}
		for _, nb := range d.cell.Neighbors() {
			if p.env.Regions.IsGenerated(nb) {
				p.queue.push(d.priority+1, nb)
			}
		}
	}
	return popped, changed
}

// evaluate computes the value a cell should hold given the current field.
// Goal occupancy is checked before blocking, so a cell that is both is a
// goal.
func (p *Pipeline) evaluate(c world.Cell) (Entry, bool) {
	if !p.env.Regions.IsGenerated(c) {
		return Entry{}, false
	}

	blocked := false
	for _, id := range p.env.Occupancy.EntitiesAt(c) {
		if p.env.Entities.HasGoal(id, p.kind) {
			return Entry{Distance: 0, Ways: 1}, true
		}
		if p.env.Entities.IsBlocking(id) {
			blocked = true
		}
	}
	if blocked {
		return Entry{}, false
	}

	var (
		best  Entry
		found bool
	)
	for _, nb := range c.Neighbors() {
		ne, ok := p.field.Get(nb)
		if !ok {
			continue
		}
		d := ne.Distance + 1
		switch {
		case !found || d < best.Distance:
			best, found = Entry{Distance: d, Ways: ne.Ways}, true
		case d == best.Distance:
			best.Ways = addWays(best.Ways, ne.Ways)
		}
	}
	if !found {
		return Entry{}, false
	}
	if p.opts.MaxDistance > 0 && best.Distance >= p.opts.MaxDistance {
		return Entry{}, false
	}
	return best, true
}
