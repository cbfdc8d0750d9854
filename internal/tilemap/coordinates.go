package tilemap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Vec2 is a world-space position or displacement
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * s
func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

// Len returns the Euclidean length
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// DistanceSquared returns the squared distance between v and o
func (v Vec2) DistanceSquared(o Vec2) float64 {
	dx, dy := v.X-o.X, v.Y-o.Y
	return dx*dx + dy*dy
}

// Normalize returns the unit vector in the direction of v, or zero
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// ChunkCoord is a lattice coordinate in chunk units
type ChunkCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String renders the coordinate as "x_y", the form used for chunk IDs
func (c ChunkCoord) String() string {
	return fmt.Sprintf("%d_%d", c.X, c.Y)
}

// Add offsets the coordinate
func (c ChunkCoord) Add(dx, dy int) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Y: c.Y + dy}
}

// Chebyshev returns the lattice distance used by the square window
func (c ChunkCoord) Chebyshev(o ChunkCoord) int {
	dx, dy := c.X-o.X, c.Y-o.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

// Compare orders coordinates row-major (by Y, then X)
func (c ChunkCoord) Compare(o ChunkCoord) int {
	if c.Y != o.Y {
		if c.Y < o.Y {
			return -1
		}
		return 1
	}
	if c.X != o.X {
		if c.X < o.X {
			return -1
		}
		return 1
	}
	return 0
}

// ParseChunkCoord parses the "x_y" form produced by String
func ParseChunkCoord(id string) (ChunkCoord, error) {
	xs, ys, ok := strings.Cut(id, "_")
	if !ok {
		return ChunkCoord{}, eris.Errorf("invalid chunk id %q", id)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return ChunkCoord{}, eris.Wrapf(err, "invalid chunk x in %q", id)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return ChunkCoord{}, eris.Wrapf(err, "invalid chunk y in %q", id)
	}
	return ChunkCoord{X: x, Y: y}, nil
}

// TilePos is an integer position in tile units, world-anchored
type TilePos struct {
	X int `json:"x"`
	Y int `json:"y"`
}
