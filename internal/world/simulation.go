// Package world sequences the streaming, navigation and pathing subsystems
// into a single deterministic tick.
package world

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/config"
	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/logging"
	"github.com/slimedodge/server/internal/navigation"
	"github.com/slimedodge/server/internal/navmesh"
	"github.com/slimedodge/server/internal/pathing"
	"github.com/slimedodge/server/internal/performance"
	"github.com/slimedodge/server/internal/procedural"
	"github.com/slimedodge/server/internal/random"
	"github.com/slimedodge/server/internal/streaming"
	"github.com/slimedodge/server/internal/tilemap"
)

// Phase is the shared procedural generation state
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseRebuildNavGrid
	PhaseRepositionMesh
	PhaseDespawn
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRebuildNavGrid:
		return "rebuild_nav_grid"
	case PhaseRepositionMesh:
		return "reposition_mesh"
	case PhaseDespawn:
		return "despawn"
	default:
		return "unknown"
	}
}

// Profiler phase names
const (
	metricStream   = "stream"
	metricNavGrid  = "nav_grid"
	metricNavMesh  = "nav_mesh"
	metricDespawn  = "despawn"
	metricPathing  = "pathing"
	metricSnapshot = "snapshot"
)

// Options configures a simulation
type Options struct {
	Seed               string
	RetainRadius       int
	TileStrategy       string
	CharactersPerChunk int
	PropsPerChunk      int
	NavSliceCells      int
	DespawnDistance    float64
	Pathing            pathing.Config
}

// OptionsFromConfig maps the environment configuration onto simulation options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Seed:               cfg.World.Seed,
		RetainRadius:       cfg.World.RetainRadius,
		TileStrategy:       cfg.World.TileStrategy,
		CharactersPerChunk: cfg.World.CharactersPerChunk,
		PropsPerChunk:      cfg.World.PropsPerChunk,
		NavSliceCells:      cfg.World.NavSliceCells,
		DespawnDistance:    cfg.World.DespawnDistance,
		Pathing: pathing.Config{
			Speed:       cfg.Pathing.Speed,
			CooldownMin: cfg.Pathing.CooldownMin,
			CooldownMax: cfg.Pathing.CooldownMax,
		},
	}
}

// Simulation owns every subsystem and runs them once per tick in a fixed
// order. Step must be called from a single goroutine; the input buffer and
// published snapshot are safe for concurrent use.
type Simulation struct {
	opts     Options
	root     zerolog.Logger
	log      zerolog.Logger
	source   tilemap.Source
	profiler *performance.Profiler

	registry   *entity.Registry
	index      *streaming.ChunkIndex
	controller *streaming.Controller
	generator  *procedural.Generator
	strategy   procedural.TileStrategy

	// navigation stack, built once tile data resolves
	dims    tilemap.Dimensions
	nav     *navigation.Maintainer
	mesh    *navmesh.Follower
	machine *pathing.Machine
	// minimum chunk of the window the current sweep covers
	sweepMin tilemap.ChunkCoord

	input     InputBuffer
	phase     Phase
	tick      uint64
	viewpoint tilemap.Vec2
	goal      entity.Handle
	despawned int

	onGenerated []func(*procedural.Result)

	mu       sync.RWMutex
	snapshot *Snapshot
	tiles    map[tilemap.ChunkCoord]ChunkPayload
}

// New builds a simulation. profiler may be nil.
func New(opts Options, source tilemap.Source, profiler *performance.Profiler, logger zerolog.Logger) (*Simulation, error) {
	strategy, err := procedural.NewStrategy(opts.TileStrategy, opts.Seed)
	if err != nil {
		return nil, err
	}
	if opts.Pathing.CooldownMin >= opts.Pathing.CooldownMax {
		return nil, eris.Errorf("invalid cooldown range %v-%v", opts.Pathing.CooldownMin, opts.Pathing.CooldownMax)
	}

	s := &Simulation{
		opts:     opts,
		root:     logger,
		log:      logging.Component(logger, "world"),
		source:   source,
		profiler: profiler,
		registry: entity.NewRegistry(),
		index:    streaming.NewChunkIndex(),
		strategy: strategy,
		goal:     entity.Null,
		snapshot: &Snapshot{},
		tiles:    make(map[tilemap.ChunkCoord]ChunkPayload),
	}
	s.controller = streaming.NewController(s.index, s.registry, source, opts.RetainRadius, logging.Component(logger, "stream"))
	s.generator = procedural.NewGenerator(
		s.registry,
		s.index,
		strategy,
		random.New(opts.Seed, random.LabelGenerator),
		procedural.Options{CharactersPerChunk: opts.CharactersPerChunk, PropsPerChunk: opts.PropsPerChunk},
		logging.Component(logger, "generator"),
	)
	s.generator.Listen(s.registry.World())
	s.generator.OnGenerated(s.chunkGenerated)
	return s, nil
}

// OnChunkGenerated registers a callback run, on the tick goroutine, for
// every generated chunk
func (s *Simulation) OnChunkGenerated(fn func(*procedural.Result)) {
	s.onGenerated = append(s.onGenerated, fn)
}

// SetViewpoint buffers a viewpoint update for the next tick
func (s *Simulation) SetViewpoint(pos tilemap.Vec2) { s.input.SetViewpoint(pos) }

// SetGoal buffers a goal agent position for the next tick
func (s *Simulation) SetGoal(pos tilemap.Vec2) { s.input.SetGoal(pos) }

// Registry exposes the entity arena
func (s *Simulation) Registry() *entity.Registry { return s.registry }

// Index exposes the chunk index
func (s *Simulation) Index() *streaming.ChunkIndex { return s.index }

// Phase returns the procedural generation phase
func (s *Simulation) Phase() Phase { return s.phase }

// Tick returns the number of completed steps
func (s *Simulation) Tick() uint64 { return s.tick }

// Machine returns the pathing machine, nil until tile data has loaded
func (s *Simulation) Machine() *pathing.Machine { return s.machine }

// Goal returns the goal agent, Null until tile data has loaded
func (s *Simulation) Goal() entity.Handle { return s.goal }

// Step runs one tick
func (s *Simulation) Step(dt time.Duration) error {
	start := time.Now()
	s.tick++

	in := s.input.Drain()
	if in.HasViewpoint {
		s.viewpoint = in.Viewpoint
	}

	if err := s.ensureNavigation(); err != nil {
		return err
	}
	if in.HasGoal && s.goal != entity.Null {
		s.registry.SetPosition(s.goal, in.Goal)
	}

	changed := false
	// chunks stream only once navigation exists to receive them
	if s.phase == PhaseIdle && s.nav != nil {
		op := s.profiler.Start(metricStream)
		delta, err := s.controller.Update(s.viewpoint, s.tick)
		op.End()
		if err != nil && isInvariantViolation(err) {
			return eris.Wrap(err, "chunk streaming")
		}
		if err == nil && !delta.Empty() {
			changed = true
			s.forget(delta.Removed)
			s.beginRebuild(delta.Center)
		}
	}

	if s.phase == PhaseRebuildNavGrid {
		op := s.profiler.Start(metricNavGrid)
		if s.nav.Tick() {
			s.phase = PhaseRepositionMesh
		}
		op.End()
	}

	if s.phase == PhaseRepositionMesh {
		op := s.profiler.Start(metricNavMesh)
		s.mesh.Update()
		s.phase = PhaseDespawn
		op.End()
	}

	if s.phase == PhaseDespawn {
		op := s.profiler.Start(metricDespawn)
		s.despawnFar()
		s.phase = PhaseIdle
		op.End()
	}

	if s.machine != nil {
		op := s.profiler.Start(metricPathing)
		s.machine.Tick(dt)
		op.End()
	}

	op := s.profiler.Start(metricSnapshot)
	s.publish(changed)
	op.End()

	s.profiler.Record(performance.TickMetric, time.Since(start))
	return nil
}

// ensureNavigation builds the grid, mesh and pathing machine the first
// time tile data is available. Until then the step is skipped and retried.
func (s *Simulation) ensureNavigation() error {
	if s.nav != nil {
		return nil
	}
	td, err := s.source.TileData()
	if err != nil {
		return nil
	}
	limits := config.WorldConfig{
		RetainRadius:       s.opts.RetainRadius,
		CharactersPerChunk: s.opts.CharactersPerChunk,
		PropsPerChunk:      s.opts.PropsPerChunk,
		NavSliceCells:      s.opts.NavSliceCells,
	}
	if err := limits.CheckGrid(td.ChunkWidth, td.ChunkHeight); err != nil {
		return err
	}

	grid, err := navigation.NewStreamingGrid(td.Dimensions, s.opts.RetainRadius)
	if err != nil {
		return eris.Wrap(config.ErrGridMismatch, err.Error())
	}
	nav, err := navigation.NewMaintainer(grid, limits.SliceCells(td.ChunkWidth, td.ChunkHeight), navigation.AllPassable, logging.Component(s.root, "nav_grid"))
	if err != nil {
		return eris.Wrap(config.ErrGridMismatch, err.Error())
	}

	s.dims = td.Dimensions
	s.nav = nav
	s.mesh = navmesh.NewFollower(grid, td.Dimensions, logging.Component(s.root, "nav_mesh"))
	nav.OnReady(func() { s.mesh.Reposition(s.sweepMin) })
	s.machine = pathing.NewMachine(
		s.registry,
		nav,
		s.mesh,
		td.Dimensions,
		s.opts.Pathing,
		random.New(s.opts.Seed, random.LabelPathing),
		logging.Component(s.root, "pathing"),
	)
	s.machine.Listen(s.registry.World())

	s.goal = s.registry.Spawn(entity.KindGoal, s.viewpoint, entity.Null)
	s.machine.Add(s.goal, true)

	s.log.Info().
		Int("grid_width", grid.Width()).
		Int("grid_height", grid.Height()).
		Int("slice_cells", limits.SliceCells(td.ChunkWidth, td.ChunkHeight)).
		Float64("despawn_distance", s.despawnDistance()).
		Msg("navigation initialized")
	return nil
}

// beginRebuild starts a grid sweep anchored at the window's minimum chunk.
// The mesh follows once the sweep reports ready.
func (s *Simulation) beginRebuild(center tilemap.ChunkCoord) {
	minChunk := center.Add(-s.opts.RetainRadius, -s.opts.RetainRadius)
	if err := s.nav.Begin(s.dims.ChunkTileOrigin(minChunk)); err != nil {
		s.log.Warn().Err(err).Msg("navigation rebuild already running")
		return
	}
	s.sweepMin = minChunk
	s.phase = PhaseRebuildNavGrid
}

// despawnFar destroys characters and props whose real position lies
// beyond the despawn distance from the viewpoint
func (s *Simulation) despawnFar() {
	limitSq := s.despawnDistance() * s.despawnDistance()
	removed := 0
	for _, kind := range []entity.Kind{entity.KindCharacter, entity.KindProp} {
		for _, h := range s.registry.OfKind(kind) {
			pos, ok := s.registry.Position(h)
			if !ok || pos.DistanceSquared(s.viewpoint) <= limitSq {
				continue
			}
			if s.registry.Destroy(h) {
				removed++
			}
		}
	}
	s.despawned += removed
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("despawned distant entities")
	}
}

// despawnDistance defaults to the diagonal of the retained window plus one
// chunk ring
func (s *Simulation) despawnDistance() float64 {
	if s.opts.DespawnDistance > 0 {
		return s.opts.DespawnDistance
	}
	size := s.dims.ChunkWorldSize()
	return float64(s.opts.RetainRadius+1) * math.Max(size.X, size.Y) * math.Sqrt2
}

func (s *Simulation) chunkGenerated(res *procedural.Result) {
	if s.machine != nil {
		for _, h := range res.Characters {
			s.machine.Add(h, false)
		}
	}

	s.mu.Lock()
	s.tiles[res.Coord] = ChunkPayload{
		Coord:  res.Coord,
		Width:  s.dims.ChunkWidth,
		Height: s.dims.ChunkHeight,
		Tiles:  res.TileIndices,
		Tick:   res.Tick,
	}
	s.mu.Unlock()

	for _, fn := range s.onGenerated {
		fn(res)
	}
}

func (s *Simulation) forget(removed []tilemap.ChunkCoord) {
	if len(removed) == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range removed {
		delete(s.tiles, c)
	}
	s.mu.Unlock()
}

func (s *Simulation) publish(changed bool) {
	center, tracking := s.controller.Center()
	snap := &Snapshot{
		Tick:      s.tick,
		Phase:     s.phase,
		Viewpoint: s.viewpoint,
		Center:    center,
		Tracking:  tracking,
		Changed:   changed,
		Despawned: s.despawned,
	}
	for coord, rec := range s.index.All() {
		snap.Chunks = append(snap.Chunks, ChunkInfo{Coord: coord, ID: coord.String(), GeneratedTick: rec.GeneratedTick})
	}
	if s.machine != nil {
		snap.Agents = s.machine.Views()
		snap.NavReady = s.machine.Ready()
		snap.MeshVersion = s.mesh.Version()
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// Snapshot returns the state published by the last tick
func (s *Simulation) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ChunkTiles returns the tile indices of a live chunk
func (s *Simulation) ChunkTiles(coord tilemap.ChunkCoord) (ChunkPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.tiles[coord]
	return p, ok
}

func isInvariantViolation(err error) bool {
	return errors.Is(err, streaming.ErrChunkExists) || errors.Is(err, streaming.ErrChunkMissing)
}
