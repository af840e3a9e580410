package world

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// ChunkSize is the edge length of a generated chunk, in cells.
const ChunkSize = 64

// ChunkCoord identifies a chunk. Chunk (0,0) covers cells [0,64) x [0,64).
type ChunkCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ChunkOf returns the chunk containing c. Negative coordinates round
// toward negative infinity, so cell -1 belongs to chunk -1.
func ChunkOf(c Cell) ChunkCoord {
	return ChunkCoord{X: floorDiv(c.X, ChunkSize), Y: floorDiv(c.Y, ChunkSize)}
}

// Rect returns the cells covered by the chunk.
func (cc ChunkCoord) Rect() Rect {
	lo := Cell{X: cc.X * ChunkSize, Y: cc.Y * ChunkSize}
	return Rect{Min: lo, Max: Cell{X: lo.X + ChunkSize, Y: lo.Y + ChunkSize}}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Chunks is the registry of materialized chunks. Pathfinding propagation
// never leaves the union of generated chunks.
type Chunks struct {
	mu        sync.RWMutex
	generated map[ChunkCoord]struct{}
}

// NewChunks creates an empty registry.
func NewChunks() *Chunks {
	return &Chunks{generated: make(map[ChunkCoord]struct{})}
}

// IsGenerated reports whether the chunk containing c has been materialized.
func (g *Chunks) IsGenerated(c Cell) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.generated[ChunkOf(c)]
	return ok
}

// Ensure marks cc as generated. It returns false when cc already existed.
func (g *Chunks) Ensure(cc ChunkCoord) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.generated[cc]; ok {
		return false
	}
	g.generated[cc] = struct{}{}
	return true
}

// Count returns the number of generated chunks.
func (g *Chunks) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.generated)
}

// List returns the generated chunks ordered by (Y, X).
func (g *Chunks) List() []ChunkCoord {
	g.mu.RLock()
	out := make([]ChunkCoord, 0, len(g.generated))
	for cc := range g.generated {
		out = append(out, cc)
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b ChunkCoord) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})
	return out
}

// Around returns the chunk coordinates within radius chunks of the chunk
// containing center, nearest rings first.
func Around(center Cell, radius int) []ChunkCoord {
	origin := ChunkOf(center)
	var out []ChunkCoord
	for ring := 0; ring <= radius; ring++ {
		for dy := -ring; dy <= ring; dy++ {
			for dx := -ring; dx <= ring; dx++ {
				if max(abs(dx), abs(dy)) != ring {
					continue
				}
				out = append(out, ChunkCoord{X: origin.X + dx, Y: origin.Y + dy})
			}
		}
	}
	return out
}

func (g *Chunks) String() string {
	return fmt.Sprintf("Chunks(generated=%d)", g.Count())
}
