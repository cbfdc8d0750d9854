package streaming

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/yohamta/donburi/features/events"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/tilemap"
)

// GenerationRequest asks for one chunk to be synthesized
type GenerationRequest struct {
	Coord    tilemap.ChunkCoord
	Center   tilemap.ChunkCoord
	TileData *tilemap.TileData
	Tick     uint64
}

// GenerationRequested carries generation requests to the chunk generator.
// The controller flushes it before Update returns.
var GenerationRequested = events.NewEventType[GenerationRequest]()

// ChunkDelta describes the chunk changes applied by one update
type ChunkDelta struct {
	Center  tilemap.ChunkCoord
	Added   []tilemap.ChunkCoord
	Removed []tilemap.ChunkCoord
	Current []tilemap.ChunkCoord
}

// Empty reports whether the update changed nothing
func (d *ChunkDelta) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0)
}

// Controller keeps the chunk index equal to the square window around the
// viewpoint chunk
type Controller struct {
	index    *ChunkIndex
	registry *entity.Registry
	source   tilemap.Source
	radius   int
	log      zerolog.Logger

	center   tilemap.ChunkCoord
	tracking bool
	waiting  bool
}

// NewController builds a controller retaining radius chunks around the viewpoint
func NewController(index *ChunkIndex, registry *entity.Registry, source tilemap.Source, radius int, logger zerolog.Logger) *Controller {
	return &Controller{
		index:    index,
		registry: registry,
		source:   source,
		radius:   radius,
		log:      logger,
	}
}

// Radius returns the retain radius
func (c *Controller) Radius() int {
	return c.radius
}

// Center returns the last viewpoint chunk
func (c *Controller) Center() (tilemap.ChunkCoord, bool) {
	return c.center, c.tracking
}

// Update streams chunks for the viewpoint. It returns a nil delta when the
// live set already matches the window. Errors from the tile data source are
// returned unchanged so the caller can retry on the next tick.
func (c *Controller) Update(viewpoint tilemap.Vec2, tick uint64) (*ChunkDelta, error) {
	td, err := c.source.TileData()
	if err != nil {
		c.reportTileData(err)
		return nil, err
	}
	if c.waiting {
		c.log.Info().Msg("tile data loaded, resuming chunk generation")
		c.waiting = false
	}

	center := td.WorldToChunk(viewpoint)
	removedStale := c.pruneStale()
	if c.tracking && center == c.center && !removedStale && c.index.Len() == windowSize(c.radius) {
		return nil, nil
	}

	desired := ComputeChunkWindow(center, c.radius)
	added, removed := diffChunkSets(c.index.Coords(), desired)

	for _, coord := range removed {
		rec, err := c.index.Remove(coord)
		if err != nil {
			return nil, err
		}
		c.registry.Destroy(rec.Entity)
	}

	world := c.registry.World()
	for _, coord := range added {
		GenerationRequested.Publish(world, GenerationRequest{
			Coord:    coord,
			Center:   center,
			TileData: td,
			Tick:     tick,
		})
	}
	GenerationRequested.ProcessEvents(world)

	var generated []tilemap.ChunkCoord
	for _, coord := range added {
		if c.index.Contains(coord) {
			generated = append(generated, coord)
		}
	}
	if len(generated) < len(added) {
		c.log.Warn().Int("requested", len(added)).Int("generated", len(generated)).Msg("chunk generation incomplete, retrying next tick")
	}

	if !c.tracking || center != c.center {
		c.log.Debug().Stringer("from", c.center).Stringer("to", center).Msg("viewpoint changed chunk")
	}
	c.center = center
	c.tracking = true

	c.log.Debug().
		Stringer("center", center).
		Int("added", len(generated)).
		Int("removed", len(removed)).
		Int("live", c.index.Len()).
		Msg("chunk window updated")

	return &ChunkDelta{
		Center:  center,
		Added:   generated,
		Removed: removed,
		Current: desired,
	}, nil
}

// pruneStale drops records whose chunk entity was destroyed elsewhere
func (c *Controller) pruneStale() bool {
	var stale []tilemap.ChunkCoord
	for coord, rec := range c.index.All() {
		if !c.registry.Exists(rec.Entity) {
			stale = append(stale, coord)
		}
	}
	for _, coord := range stale {
		_, _ = c.index.Remove(coord)
		c.log.Warn().Stringer("chunk", coord).Msg("chunk entity vanished, dropping record")
	}
	return len(stale) > 0
}

func (c *Controller) reportTileData(err error) {
	if errors.Is(err, tilemap.ErrTileDataNotReady) {
		if !c.waiting {
			c.log.Warn().Err(err).Msg("could not load tile data, chunk generation paused")
		}
		c.waiting = true
		return
	}
	c.log.Error().Str("error", eris.ToString(err, false)).Msg("tile data unusable, chunk generation paused")
	c.waiting = true
}

func windowSize(radius int) int {
	side := 2*radius + 1
	return side * side
}

// ComputeChunkWindow returns the coordinates within radius of center on the
// square footprint, in row-major order
func ComputeChunkWindow(center tilemap.ChunkCoord, radius int) []tilemap.ChunkCoord {
	if radius < 0 {
		return nil
	}
	window := make([]tilemap.ChunkCoord, 0, windowSize(radius))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			window = append(window, center.Add(dx, dy))
		}
	}
	return window
}

func diffChunkSets[T comparable](previous, next []T) (added []T, removed []T) {
	prevSet := make(map[T]struct{}, len(previous))
	nextSet := make(map[T]struct{}, len(next))

	for _, id := range previous {
		prevSet[id] = struct{}{}
	}
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, exists := prevSet[id]; !exists {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if _, exists := nextSet[id]; !exists {
			removed = append(removed, id)
		}
	}
	return
}
