// Package world provides the square grid, chunked region registry, and
// procedural chunk content.
// Cells use integer (x, y) coordinates on an unbounded plane.
package world

import "fmt"

// Cell is a position on the grid.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the cell offset by d.
func (c Cell) Add(d Cell) Cell {
	return Cell{X: c.X + d.X, Y: c.Y + d.Y}
}

// Sub returns the offset from o to c.
func (c Cell) Sub(o Cell) Cell {
	return Cell{X: c.X - o.X, Y: c.Y - o.Y}
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Size is the extent of a rectangular footprint, in cells.
// The zero Size is treated as 1x1.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// UnitSize is the footprint of an entity without an explicit size.
var UnitSize = Size{W: 1, H: 1}

// OrUnit returns s, or UnitSize when s is empty.
func (s Size) OrUnit() Size {
	if s.W <= 0 || s.H <= 0 {
		return UnitSize
	}
	return s
}

// MoveDirections are the four axis-aligned step offsets: E, N, W, S.
var MoveDirections = [4]Cell{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
}

// Neighbors returns the four axis-adjacent cells.
func (c Cell) Neighbors() [4]Cell {
	var result [4]Cell
	for i, dir := range MoveDirections {
		result[i] = c.Add(dir)
	}
	return result
}

// DirectionName returns a short compass name for a unit step offset.
func DirectionName(d Cell) string {
	switch d {
	case MoveDirections[0]:
		return "E"
	case MoveDirections[1]:
		return "N"
	case MoveDirections[2]:
		return "W"
	case MoveDirections[3]:
		return "S"
	}
	return "?"
}

// Manhattan returns the 4-neighbor step distance between two cells on an
// open grid.
func Manhattan(a, b Cell) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Rect is a half-open rectangle of cells [Min, Max).
type Rect struct {
	Min Cell `json:"min"`
	Max Cell `json:"max"`
}

// Footprint returns the rectangle occupied by an entity at pos with size.
func Footprint(pos Cell, size Size) Rect {
	size = size.OrUnit()
	return Rect{Min: pos, Max: Cell{X: pos.X + size.W, Y: pos.Y + size.H}}
}

// Empty reports whether r covers no cells.
func (r Rect) Empty() bool {
	return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y
}

// Contains reports whether c lies inside r.
func (r Rect) Contains(c Cell) bool {
	return c.X >= r.Min.X && c.X < r.Max.X && c.Y >= r.Min.Y && c.Y < r.Max.Y
}

// Area returns the number of cells covered by r.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return (r.Max.X - r.Min.X) * (r.Max.Y - r.Min.Y)
}

// Cells calls fn for every cell of r in row-major order.
func (r Rect) Cells(fn func(Cell)) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			fn(Cell{X: x, Y: y})
		}
	}
}

// Perimeter calls fn for every cell on the inner border of r.
func (r Rect) Perimeter(fn func(Cell)) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		fn(Cell{X: x, Y: r.Min.Y})
		if r.Max.Y-1 > r.Min.Y {
			fn(Cell{X: x, Y: r.Max.Y - 1})
		}
	}
	for y := r.Min.Y + 1; y < r.Max.Y-1; y++ {
		fn(Cell{X: r.Min.X, Y: y})
		if r.Max.X-1 > r.Min.X {
			fn(Cell{X: r.Max.X - 1, Y: y})
		}
	}
}
