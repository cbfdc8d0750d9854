package procedural

import (
	"math/rand"

	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/random"
	"github.com/slimedodge/server/internal/tilemap"
)

// TileStrategy picks the tile index of every cell in a chunk. The result is
// row-major, ChunkWidth*ChunkHeight long.
type TileStrategy interface {
	Name() string
	Fill(coord tilemap.ChunkCoord, td *tilemap.TileData) []int
}

// UniformStrategy fills every cell with one index, the tile data
// placeholder when Index is zero
type UniformStrategy struct {
	Index int
}

// Name implements TileStrategy
func (UniformStrategy) Name() string { return "uniform" }

// Fill implements TileStrategy
func (s UniformStrategy) Fill(_ tilemap.ChunkCoord, td *tilemap.TileData) []int {
	idx := s.Index
	if idx == 0 {
		idx = td.Placeholder
	}
	cells := make([]int, td.TilesPerChunk())
	for i := range cells {
		cells[i] = idx
	}
	return cells
}

// RandomStrategy draws each cell from the palette. A chunk regenerated at
// the same coordinate gets the same tiles.
type RandomStrategy struct {
	Seed string
}

// Name implements TileStrategy
func (RandomStrategy) Name() string { return "random" }

// Fill implements TileStrategy
func (s RandomStrategy) Fill(coord tilemap.ChunkCoord, td *tilemap.TileData) []int {
	rng := rand.New(rand.NewSource(random.ChunkSeed(s.Seed, coord.X, coord.Y)))
	cells := make([]int, td.TilesPerChunk())
	for i := range cells {
		cells[i] = td.Palette[rng.Intn(len(td.Palette))]
	}
	return cells
}

// NewStrategy resolves a strategy by configured name
func NewStrategy(name, seed string) (TileStrategy, error) {
	switch name {
	case "", "uniform":
		return UniformStrategy{}, nil
	case "random":
		return RandomStrategy{Seed: seed}, nil
	default:
		return nil, eris.Errorf("unknown tile strategy %q", name)
	}
}
