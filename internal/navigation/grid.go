package navigation

import (
	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/tilemap"
)

// Cell is a position in grid space, relative to the grid origin
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid is a fixed-size passability grid. Moving it changes the origin and
// leaves the cell storage in place for the next sweep to overwrite.
type Grid struct {
	width, height int
	origin        tilemap.TilePos
	passable      []bool
}

// NewGrid allocates a width x height grid of impassable cells
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("invalid grid size %dx%d", width, height)
	}
	return &Grid{
		width:    width,
		height:   height,
		passable: make([]bool, width*height),
	}, nil
}

// NewStreamingGrid sizes a grid to cover the full chunk window
func NewStreamingGrid(dims tilemap.Dimensions, radius int) (*Grid, error) {
	side := 2*radius + 1
	return NewGrid(dims.ChunkWidth*side, dims.ChunkHeight*side)
}

// Width returns the number of columns
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows
func (g *Grid) Height() int { return g.height }

// Len returns the number of cells
func (g *Grid) Len() int { return len(g.passable) }

// Origin returns the world tile of cell (0,0)
func (g *Grid) Origin() tilemap.TilePos { return g.origin }

// InBounds reports whether c lies inside the grid
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.width && c.Y < g.height
}

// Passable reports whether c can be walked. Out-of-bounds cells cannot.
func (g *Grid) Passable(c Cell) bool {
	if !g.InBounds(c) {
		return false
	}
	return g.passable[g.index(c)]
}

// TileToCell converts a world tile into grid space
func (g *Grid) TileToCell(t tilemap.TilePos) Cell {
	return Cell{X: t.X - g.origin.X, Y: t.Y - g.origin.Y}
}

// CellToTile converts a grid cell into a world tile
func (g *Grid) CellToTile(c Cell) tilemap.TilePos {
	return tilemap.TilePos{X: g.origin.X + c.X, Y: g.origin.Y + c.Y}
}

// Snapshot copies the passability state in row-major order
func (g *Grid) Snapshot() []bool {
	return append([]bool(nil), g.passable...)
}

func (g *Grid) index(c Cell) int {
	return c.Y*g.width + c.X
}

func (g *Grid) cellAt(i int) Cell {
	return Cell{X: i % g.width, Y: i / g.width}
}

// set writes one cell and reports whether its value changed
func (g *Grid) set(i int, passable bool) bool {
	if g.passable[i] == passable {
		return false
	}
	g.passable[i] = passable
	return true
}
