package pathfind

import (
	"container/heap"

	"github.com/talgya/flowgrid/internal/world"
)

// dirtyEntry is a cell awaiting re-evaluation. Priority is the number of
// propagation hops from the change that scheduled it, not a true distance.
type dirtyEntry struct {
	priority int
	seq      uint64 // insertion order, breaks priority ties FIFO
	cell     world.Cell
}

type dirtyHeap []dirtyEntry

func (h dirtyHeap) Len() int { return len(h) }
func (h dirtyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h dirtyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *dirtyHeap) Push(x any)   { *h = append(*h, x.(dirtyEntry)) }
func (h *dirtyHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// dirtyQueue pops cells closest to a change first.
type dirtyQueue struct {
	h   dirtyHeap
	seq uint64
}

func (q *dirtyQueue) push(priority int, c world.Cell) {
	q.seq++
	heap.Push(&q.h, dirtyEntry{priority: priority, seq: q.seq, cell: c})
}

func (q *dirtyQueue) pop() (dirtyEntry, bool) {
	if len(q.h) == 0 {
		return dirtyEntry{}, false
	}
	return heap.Pop(&q.h).(dirtyEntry), true
}

func (q *dirtyQueue) len() int {
	return len(q.h)
}

// cells returns the queued cells in heap order (not pop order).
func (q *dirtyQueue) cells() []world.Cell {
	out := make([]world.Cell, len(q.h))
	for i, e := range q.h {
		out[i] = e.cell
	}
	return out
}
