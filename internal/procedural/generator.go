// Package procedural synthesizes the contents of a chunk: its tiles, the
// characters that roam it and a few static props.
package procedural

import (
	"math/rand"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/yohamta/donburi"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/random"
	"github.com/slimedodge/server/internal/streaming"
	"github.com/slimedodge/server/internal/tilemap"
)

// Options holds per-chunk spawn densities
type Options struct {
	CharactersPerChunk int
	PropsPerChunk      int
}

// Result lists everything spawned for one chunk
type Result struct {
	Coord       tilemap.ChunkCoord
	Chunk       entity.Handle
	Tiles       []entity.Handle
	TileIndices []int
	Characters  []entity.Handle
	Props       []entity.Handle
	Tick        uint64
}

// Generator turns generation requests into entities and chunk records
type Generator struct {
	registry *entity.Registry
	index    *streaming.ChunkIndex
	strategy TileStrategy
	rng      *rand.Rand
	opts     Options
	log      zerolog.Logger

	onGenerated []func(*Result)
}

// NewGenerator creates a generator. rng is the generator's own stream and
// is only used for spawn placement.
func NewGenerator(registry *entity.Registry, index *streaming.ChunkIndex, strategy TileStrategy, rng *rand.Rand, opts Options, logger zerolog.Logger) *Generator {
	return &Generator{
		registry: registry,
		index:    index,
		strategy: strategy,
		rng:      rng,
		opts:     opts,
		log:      logger,
	}
}

// OnGenerated registers a callback run after each successful generation
func (g *Generator) OnGenerated(fn func(*Result)) {
	g.onGenerated = append(g.onGenerated, fn)
}

// Listen consumes generation requests published in world
func (g *Generator) Listen(world donburi.World) {
	streaming.GenerationRequested.Subscribe(world, func(_ donburi.World, req streaming.GenerationRequest) {
		if _, err := g.Generate(req); err != nil {
			g.log.Error().Str("error", eris.ToString(err, false)).Stringer("chunk", req.Coord).Msg("chunk generation failed")
		}
	})
}

// Generate synthesizes the chunk at req.Coord and registers it in the index
func (g *Generator) Generate(req streaming.GenerationRequest) (*Result, error) {
	if req.TileData == nil {
		return nil, eris.Wrapf(tilemap.ErrTileDataNotReady, "generate %s", req.Coord)
	}
	if g.index.Contains(req.Coord) {
		return nil, eris.Wrapf(streaming.ErrChunkExists, "generate %s", req.Coord)
	}

	td := req.TileData
	origin := td.ChunkOrigin(req.Coord)
	chunk := g.registry.Spawn(entity.KindChunk, origin, entity.Null)
	g.registry.SetChunk(chunk, req.Coord)

	res := &Result{Coord: req.Coord, Chunk: chunk, Tick: req.Tick}
	res.TileIndices = g.strategy.Fill(req.Coord, td)
	base := td.ChunkTileOrigin(req.Coord)
	res.Tiles = make([]entity.Handle, 0, len(res.TileIndices))
	for i, idx := range res.TileIndices {
		cell := tilemap.TilePos{X: base.X + i%td.ChunkWidth, Y: base.Y + i/td.ChunkWidth}
		tile := g.registry.Spawn(entity.KindTile, td.TileToWorld(cell), chunk)
		g.registry.SetTile(tile, entity.TileData{Index: idx, Tile: cell})
		res.Tiles = append(res.Tiles, tile)
	}

	offsets := random.Sample(g.rng, td.TilesPerChunk(), g.opts.CharactersPerChunk+g.opts.PropsPerChunk)
	for n, off := range offsets {
		cell := tilemap.TilePos{X: base.X + off%td.ChunkWidth, Y: base.Y + off/td.ChunkWidth}
		pos := td.TileToWorld(cell)
		if n < g.opts.CharactersPerChunk {
			// characters roam freely and are cleaned up by distance
			res.Characters = append(res.Characters, g.registry.Spawn(entity.KindCharacter, pos, entity.Null))
			continue
		}
		res.Props = append(res.Props, g.registry.Spawn(entity.KindProp, pos, chunk))
	}

	if err := g.index.Insert(streaming.ChunkRecord{Coord: req.Coord, Entity: chunk, GeneratedTick: req.Tick}); err != nil {
		g.registry.Destroy(chunk)
		for _, h := range res.Characters {
			g.registry.Destroy(h)
		}
		return nil, err
	}

	g.log.Debug().
		Stringer("chunk", req.Coord).
		Str("strategy", g.strategy.Name()).
		Int("characters", len(res.Characters)).
		Int("props", len(res.Props)).
		Msg("chunk generated")

	for _, fn := range g.onGenerated {
		fn(res)
	}
	return res, nil
}
