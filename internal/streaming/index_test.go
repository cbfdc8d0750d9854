package streaming

import (
	"errors"
	"testing"

	"github.com/slimedodge/server/internal/tilemap"
)

func TestChunkIndexContract(t *testing.T) {
	ix := NewChunkIndex()
	c := tilemap.ChunkCoord{X: 2, Y: -1}
	if err := ix.Insert(ChunkRecord{Coord: c}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(ChunkRecord{Coord: c}); !errors.Is(err, ErrChunkExists) {
		t.Fatalf("expected duplicate insert to fail, got %v", err)
	}
	if _, err := ix.Remove(tilemap.ChunkCoord{}); !errors.Is(err, ErrChunkMissing) {
		t.Fatalf("expected missing remove to fail, got %v", err)
	}
	_ = ix.Insert(ChunkRecord{Coord: tilemap.ChunkCoord{X: -4, Y: 3}})

	minC, maxC, ok := ix.Bounds()
	if !ok || minC != (tilemap.ChunkCoord{X: -4, Y: -1}) || maxC != (tilemap.ChunkCoord{X: 2, Y: 3}) {
		t.Fatalf("unexpected bounds %v %v", minC, maxC)
	}

	var seen []tilemap.ChunkCoord
	for coord := range ix.All() {
		seen = append(seen, coord)
	}
	if len(seen) != 2 || seen[0] != c {
		t.Fatalf("expected row-major iteration, got %v", seen)
	}

	if _, err := ix.Remove(c); err != nil {
		t.Fatal(err)
	}
	if ix.Contains(c) || ix.Len() != 1 {
		t.Fatal("expected removal to take effect")
	}
}
