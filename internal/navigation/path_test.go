package navigation

import (
	"errors"
	"testing"

	"github.com/slimedodge/server/internal/tilemap"
)

func TestFindPathOpenGrid(t *testing.T) {
	m := newTestMaintainer(t, 10, 10, 100, nil)
	runPass(t, m, tilemap.TilePos{})

	path, err := m.FindPath(Cell{X: 0, Y: 0}, Cell{X: 5, Y: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 5 {
		t.Fatalf("expected diagonal path of 5 steps, got %v", path)
	}
	if path[len(path)-1] != (Cell{X: 5, Y: 5}) {
		t.Fatalf("path must end at goal, got %v", path)
	}

	path, err = m.FindPath(Cell{X: 2, Y: 2}, Cell{X: 2, Y: 2})
	if err != nil || len(path) != 0 {
		t.Fatalf("expected empty path to self, got %v %v", path, err)
	}
}

func TestFindPathAroundWall(t *testing.T) {
	// wall at x=4 with a gap at y=9
	m := newTestMaintainer(t, 10, 10, 100, func(tile tilemap.TilePos) bool {
		return tile.X != 4 || tile.Y == 9
	})
	runPass(t, m, tilemap.TilePos{})

	path, err := m.FindPath(Cell{X: 0, Y: 0}, Cell{X: 8, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	crossed := false
	prev := Cell{X: 0, Y: 0}
	for _, c := range path {
		if !m.Grid().Passable(c) {
			t.Fatalf("path crosses impassable cell %v", c)
		}
		dx, dy := c.X-prev.X, c.Y-prev.Y
		if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
			t.Fatalf("non-adjacent step %v -> %v", prev, c)
		}
		if dx != 0 && dy != 0 {
			if !m.Grid().Passable(Cell{X: prev.X + dx, Y: prev.Y}) || !m.Grid().Passable(Cell{X: prev.X, Y: prev.Y + dy}) {
				t.Fatalf("diagonal step %v -> %v cuts a corner", prev, c)
			}
		}
		if c == (Cell{X: 4, Y: 9}) {
			crossed = true
		}
		prev = c
	}
	if !crossed {
		t.Fatal("expected path through the gap")
	}
}

func TestFindPathFailures(t *testing.T) {
	m := newTestMaintainer(t, 10, 10, 100, func(tile tilemap.TilePos) bool {
		return tile.X != 4
	})
	runPass(t, m, tilemap.TilePos{})

	if _, err := m.FindPath(Cell{X: 0, Y: 0}, Cell{X: 8, Y: 0}); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected no path across a sealed wall, got %v", err)
	}
	if _, err := m.FindPath(Cell{X: 0, Y: 0}, Cell{X: 4, Y: 0}); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected no path to a wall cell, got %v", err)
	}
	if _, err := m.FindPath(Cell{X: 0, Y: 0}, Cell{X: 10, Y: 0}); !errors.Is(err, ErrOutOfGrid) {
		t.Fatalf("expected out of grid, got %v", err)
	}

	// the nearest passable cell to (4,2) in search order is (5,2)
	path, err := m.FindPath(Cell{X: 4, Y: 2}, Cell{X: 8, Y: 2})
	if err != nil {
		t.Fatalf("impassable start should snap, got %v", err)
	}
	if path[0] != (Cell{X: 5, Y: 2}) || path[len(path)-1] != (Cell{X: 8, Y: 2}) {
		t.Fatalf("unexpected snapped path %v", path)
	}
}

func TestFindPathBlockedDuringSweep(t *testing.T) {
	m := newTestMaintainer(t, 8, 8, 8, nil)
	runPass(t, m, tilemap.TilePos{})
	if err := m.Begin(tilemap.TilePos{X: 8}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.FindPath(Cell{}, Cell{X: 1}); !errors.Is(err, ErrGridNotReady) {
		t.Fatalf("expected not ready during sweep, got %v", err)
	}
}
