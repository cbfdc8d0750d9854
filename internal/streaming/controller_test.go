package streaming

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/yohamta/donburi"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/tilemap"
)

var testTiles = &tilemap.TileData{
	Dimensions:  tilemap.Dimensions{TileWidth: 16, TileHeight: 16, ChunkWidth: 16, ChunkHeight: 16},
	Placeholder: tilemap.PlaceholderTile,
	Palette:     []int{tilemap.PlaceholderTile},
}

type streamFixture struct {
	index      *ChunkIndex
	registry   *entity.Registry
	controller *Controller
	requests   int
}

func newStreamFixture(t *testing.T, radius int, source tilemap.Source) *streamFixture {
	t.Helper()
	f := &streamFixture{index: NewChunkIndex(), registry: entity.NewRegistry()}
	f.controller = NewController(f.index, f.registry, source, radius, zerolog.Nop())
	GenerationRequested.Subscribe(f.registry.World(), func(w donburi.World, req GenerationRequest) {
		f.requests++
		h := f.registry.Spawn(entity.KindChunk, req.TileData.ChunkOrigin(req.Coord), entity.Null)
		f.registry.Spawn(entity.KindTile, req.TileData.ChunkOrigin(req.Coord), h)
		if err := f.index.Insert(ChunkRecord{Coord: req.Coord, Entity: h, GeneratedTick: req.Tick}); err != nil {
			t.Errorf("insert %v: %v", req.Coord, err)
		}
	})
	return f
}

// chunkPos returns a world position inside chunk (x, y)
func chunkPos(x, y int) tilemap.Vec2 {
	return testTiles.ChunkCenter(tilemap.ChunkCoord{X: x, Y: y})
}

func assertWindow(t *testing.T, f *streamFixture, center tilemap.ChunkCoord, radius int) {
	t.Helper()
	want := ComputeChunkWindow(center, radius)
	if f.index.Len() != len(want) {
		t.Fatalf("expected %d live chunks, got %d", len(want), f.index.Len())
	}
	for _, c := range want {
		rec, ok := f.index.Get(c)
		if !ok {
			t.Fatalf("expected chunk %v to be live", c)
		}
		if !f.registry.Exists(rec.Entity) {
			t.Fatalf("chunk %v record points at a dead entity", c)
		}
	}
	if chunks := len(f.registry.OfKind(entity.KindChunk)); chunks != len(want) {
		t.Fatalf("expected %d chunk entities, got %d", len(want), chunks)
	}
}

func TestControllerInitialWindow(t *testing.T) {
	f := newStreamFixture(t, 2, tilemap.StaticSource{Data: testTiles})

	delta, err := f.controller.Update(chunkPos(0, 0), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Added) != 25 || len(delta.Removed) != 0 {
		t.Fatalf("expected 25 added, got %d added %d removed", len(delta.Added), len(delta.Removed))
	}
	assertWindow(t, f, tilemap.ChunkCoord{}, 2)
}

func TestControllerMoveOneChunkEast(t *testing.T) {
	f := newStreamFixture(t, 2, tilemap.StaticSource{Data: testTiles})
	if _, err := f.controller.Update(chunkPos(0, 0), 1); err != nil {
		t.Fatal(err)
	}

	delta, err := f.controller.Update(chunkPos(1, 0), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Removed) != 5 || len(delta.Added) != 5 {
		t.Fatalf("expected 5 removed and 5 added, got %d/%d", len(delta.Removed), len(delta.Added))
	}
	for _, c := range delta.Removed {
		if c.X != -2 {
			t.Errorf("unexpected removal %v", c)
		}
	}
	for _, c := range delta.Added {
		if c.X != 3 {
			t.Errorf("unexpected addition %v", c)
		}
	}
	assertWindow(t, f, tilemap.ChunkCoord{X: 1}, 2)

	// tiles of removed chunks are cascaded
	if tiles := len(f.registry.OfKind(entity.KindTile)); tiles != 25 {
		t.Fatalf("expected 25 tiles after cascade, got %d", tiles)
	}
}

func TestControllerNoOpWithinSameChunk(t *testing.T) {
	f := newStreamFixture(t, 1, tilemap.StaticSource{Data: testTiles})
	if _, err := f.controller.Update(tilemap.Vec2{X: 1, Y: 1}, 1); err != nil {
		t.Fatal(err)
	}
	delta, err := f.controller.Update(tilemap.Vec2{X: 200, Y: 100}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if delta != nil {
		t.Fatalf("expected no-op, got %+v", delta)
	}
	if f.requests != 9 {
		t.Fatalf("expected 9 generation requests, got %d", f.requests)
	}
}

func TestControllerRandomWalkMatchesWindow(t *testing.T) {
	f := newStreamFixture(t, 2, tilemap.StaticSource{Data: testTiles})
	path := []tilemap.ChunkCoord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: -3, Y: 4}, {X: -3, Y: 5}, {X: -2, Y: 4}, {X: 7, Y: -7}, {X: 6, Y: -6}, {X: 6, Y: -6}}
	for i, c := range path {
		if _, err := f.controller.Update(chunkPos(c.X, c.Y), uint64(i)); err != nil {
			t.Fatal(err)
		}
		assertWindow(t, f, c, 2)
	}
}

func TestControllerRetriesUntilTileDataReady(t *testing.T) {
	src := &tilemap.StaticSource{}
	f := newStreamFixture(t, 1, src)

	_, err := f.controller.Update(chunkPos(0, 0), 1)
	if !errors.Is(err, tilemap.ErrTileDataNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if f.index.Len() != 0 {
		t.Fatal("expected no chunks while tile data is missing")
	}

	src.Data = testTiles
	if _, err := f.controller.Update(chunkPos(0, 0), 2); err != nil {
		t.Fatalf("unexpected error after load: %v", err)
	}
	assertWindow(t, f, tilemap.ChunkCoord{}, 1)
}

func TestControllerRegeneratesVanishedChunk(t *testing.T) {
	f := newStreamFixture(t, 1, tilemap.StaticSource{Data: testTiles})
	if _, err := f.controller.Update(chunkPos(0, 0), 1); err != nil {
		t.Fatal(err)
	}
	rec, _ := f.index.Get(tilemap.ChunkCoord{X: 1, Y: 1})
	f.registry.Destroy(rec.Entity)

	delta, err := f.controller.Update(chunkPos(0, 0), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(delta.Added) != 1 || delta.Added[0] != (tilemap.ChunkCoord{X: 1, Y: 1}) {
		t.Fatalf("expected vanished chunk to be regenerated, got %+v", delta)
	}
	assertWindow(t, f, tilemap.ChunkCoord{}, 1)
}

func TestComputeChunkWindow(t *testing.T) {
	window := ComputeChunkWindow(tilemap.ChunkCoord{X: 5, Y: 5}, 2)
	if len(window) != 25 {
		t.Fatalf("expected 25 coords, got %d", len(window))
	}
	if window[0] != (tilemap.ChunkCoord{X: 3, Y: 3}) || window[24] != (tilemap.ChunkCoord{X: 7, Y: 7}) {
		t.Fatalf("unexpected window ordering %v .. %v", window[0], window[24])
	}
	if got := ComputeChunkWindow(tilemap.ChunkCoord{}, 0); len(got) != 1 {
		t.Fatalf("radius 0 should produce the center only, got %v", got)
	}
}
