package tilemap

import (
	"math"

	"github.com/rotisserie/eris"
)

// Dimensions describes the tile and chunk footprint of the world.
// The world origin is the bottom-left corner of tile (0,0) of chunk (0,0).
type Dimensions struct {
	TileWidth   float64 `yaml:"tile_width" json:"tile_width"`
	TileHeight  float64 `yaml:"tile_height" json:"tile_height"`
	ChunkWidth  int     `yaml:"chunk_width" json:"chunk_width"`
	ChunkHeight int     `yaml:"chunk_height" json:"chunk_height"`
}

// Validate rejects footprints that cannot be streamed
func (d Dimensions) Validate() error {
	if d.TileWidth <= 0 || d.TileHeight <= 0 {
		return eris.Wrapf(ErrTileDataInvalid, "tile size %vx%v", d.TileWidth, d.TileHeight)
	}
	if d.ChunkWidth <= 0 || d.ChunkHeight <= 0 {
		return eris.Wrapf(ErrTileDataInvalid, "chunk size %dx%d", d.ChunkWidth, d.ChunkHeight)
	}
	return nil
}

// ChunkWorldSize returns the world extent of one chunk
func (d Dimensions) ChunkWorldSize() Vec2 {
	return Vec2{X: float64(d.ChunkWidth) * d.TileWidth, Y: float64(d.ChunkHeight) * d.TileHeight}
}

// TilesPerChunk returns the number of tiles in one chunk
func (d Dimensions) TilesPerChunk() int {
	return d.ChunkWidth * d.ChunkHeight
}

// WorldToChunk converts a world position to the chunk containing it
func (d Dimensions) WorldToChunk(p Vec2) ChunkCoord {
	size := d.ChunkWorldSize()
	return ChunkCoord{
		X: int(math.Floor(p.X / size.X)),
		Y: int(math.Floor(p.Y / size.Y)),
	}
}

// ChunkOrigin returns the world position of the chunk's bottom-left corner
func (d Dimensions) ChunkOrigin(c ChunkCoord) Vec2 {
	size := d.ChunkWorldSize()
	return Vec2{X: float64(c.X) * size.X, Y: float64(c.Y) * size.Y}
}

// ChunkCenter returns the world position of the chunk's center
func (d Dimensions) ChunkCenter(c ChunkCoord) Vec2 {
	return d.ChunkOrigin(c).Add(d.ChunkWorldSize().Scale(0.5))
}

// ChunkTileOrigin returns the first tile of a chunk
func (d Dimensions) ChunkTileOrigin(c ChunkCoord) TilePos {
	return TilePos{X: c.X * d.ChunkWidth, Y: c.Y * d.ChunkHeight}
}

// WorldToTile returns the tile whose center is nearest to p
func (d Dimensions) WorldToTile(p Vec2) TilePos {
	return TilePos{
		X: int(math.Floor(p.X/d.TileWidth + 0.5)),
		Y: int(math.Floor(p.Y/d.TileHeight + 0.5)),
	}
}

// TileToWorld returns the world position of a tile's anchor
func (d Dimensions) TileToWorld(t TilePos) Vec2 {
	return Vec2{X: float64(t.X) * d.TileWidth, Y: float64(t.Y) * d.TileHeight}
}

// TileSize returns the tile extent as a vector
func (d Dimensions) TileSize() Vec2 {
	return Vec2{X: d.TileWidth, Y: d.TileHeight}
}
