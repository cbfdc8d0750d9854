// Package navmesh keeps a walkable-surface mesh aligned with the streamed
// region and rebuilds it once per completed navigation pass.
package navmesh

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/navigation"
	"github.com/slimedodge/server/internal/tilemap"
)

// Mode is the mesh update mode
type Mode uint8

const (
	// ModePassive keeps the current mesh
	ModePassive Mode = iota
	// ModeOnDemand rebuilds the mesh on the next update
	ModeOnDemand
)

func (m Mode) String() string {
	if m == ModeOnDemand {
		return "on_demand"
	}
	return "passive"
}

// Follower owns the mesh placement and its walkable surface
type Follower struct {
	grid *navigation.Grid
	dims tilemap.Dimensions
	log  zerolog.Logger

	anchor   tilemap.Vec2
	mode     Mode
	version  uint64
	walkable []bool
	placed   bool
}

// NewFollower creates a follower for the grid's footprint
func NewFollower(grid *navigation.Grid, dims tilemap.Dimensions, logger zerolog.Logger) *Follower {
	return &Follower{grid: grid, dims: dims, log: logger}
}

// Reposition anchors the mesh at the bottom-left of the streamed region and
// requests one rebuild. Tile anchors sit at cell centers, so the mesh
// starts half a tile below and left of the region's first tile.
func (f *Follower) Reposition(minChunk tilemap.ChunkCoord) {
	f.anchor = f.dims.ChunkOrigin(minChunk).Sub(f.dims.TileSize().Scale(0.5))
	f.mode = ModeOnDemand
	f.placed = true
}

// Update rebuilds the mesh when a rebuild is pending and returns to passive
// mode. It reports whether a rebuild happened.
func (f *Follower) Update() bool {
	if f.mode != ModeOnDemand {
		return false
	}
	f.walkable = f.grid.Snapshot()
	f.version++
	f.mode = ModePassive
	f.log.Debug().
		Uint64("version", f.version).
		Float64("anchor_x", f.anchor.X).
		Float64("anchor_y", f.anchor.Y).
		Msg("navigation mesh rebuilt")
	return true
}

// Mode returns the update mode
func (f *Follower) Mode() Mode { return f.mode }

// Version returns the number of rebuilds
func (f *Follower) Version() uint64 { return f.version }

// Anchor returns the bottom-left world corner of the mesh
func (f *Follower) Anchor() tilemap.Vec2 { return f.anchor }

// Size returns the world extent of the mesh
func (f *Follower) Size() tilemap.Vec2 {
	return tilemap.Vec2{
		X: float64(f.grid.Width()) * f.dims.TileWidth,
		Y: float64(f.grid.Height()) * f.dims.TileHeight,
	}
}

// Center returns the world position the mesh is logically centered on
func (f *Follower) Center() tilemap.Vec2 {
	return f.anchor.Add(f.Size().Scale(0.5))
}

// Contains reports whether p lies on a walkable part of the last built mesh
func (f *Follower) Contains(p tilemap.Vec2) bool {
	if !f.placed || f.walkable == nil {
		return false
	}
	local := p.Sub(f.anchor)
	x := int(math.Floor(local.X / f.dims.TileWidth))
	y := int(math.Floor(local.Y / f.dims.TileHeight))
	if x < 0 || y < 0 || x >= f.grid.Width() || y >= f.grid.Height() {
		return false
	}
	return f.walkable[y*f.grid.Width()+x]
}
