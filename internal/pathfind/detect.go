package pathfind

import (
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/world"
)

// role is how an entity matters to one kind's field.
type role uint8

const (
	roleGoal role = 1 << iota
	roleBlocking
)

// footprint is the last observed occupancy of a tracked entity.
type footprint struct {
	rect world.Rect
	role role
}

// observe returns the entity's current footprint if it is relevant to the
// pipeline's kind: alive and carrying the goal marker or the blocking one.
func (p *Pipeline) observe(id entity.ID) (footprint, bool) {
	e, ok := p.env.Entities.Get(id)
	if !ok {
		return footprint{}, false
	}
	var r role
	if e.HasGoal(p.kind) {
		r |= roleGoal
	}
	if e.Blocking {
		r |= roleBlocking
	}
	if r == 0 {
		return footprint{}, false
	}
	return footprint{rect: e.Footprint(), role: r}, true
}

// detectChanges turns this tick's entity transitions into dirty cells.
//
// For a pure move or resize only the cells entering or leaving the footprint
// change meaning, so the symmetric difference is queued. When the role
// itself changed (goal marker or blocking gained or lost while the entity
// stays relevant) every covered cell changes meaning and both footprints
// are queued whole.
func (p *Pipeline) detectChanges() int {
	pushed := 0
	mark := func(c world.Cell) {
		p.queue.push(0, c)
		pushed++
	}

	for _, id := range p.env.Entities.Touched() {
		before, had := p.tracked[id]
		after, has := p.observe(id)
		if !had && !has {
			continue
		}
		if had && has && before == after {
			continue
		}

		if had && has && before.role != after.role {
			before.rect.Cells(mark)
			after.rect.Cells(func(c world.Cell) {
				if !before.rect.Contains(c) {
					mark(c)
				}
			})
		} else {
			// A missing side has an empty rect, which contains nothing.
			before.rect.Cells(func(c world.Cell) {
				if !after.rect.Contains(c) {
					mark(c)
				}
			})
			after.rect.Cells(func(c world.Cell) {
				if !before.rect.Contains(c) {
					mark(c)
				}
			})
		}

		if has {
			p.tracked[id] = after
		} else {
			delete(p.tracked, id)
		}
	}
	return pushed
}
