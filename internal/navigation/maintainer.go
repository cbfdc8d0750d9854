// Package navigation maintains the passability grid under the streamed
// region and answers path queries against it.
package navigation

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/tilemap"
)

var (
	// ErrSweepInProgress is returned by Begin while a pass is running
	ErrSweepInProgress = eris.New("navigation sweep in progress")
	// ErrGridNotReady is returned by queries before a pass completes
	ErrGridNotReady = eris.New("navigation grid not ready")
)

// SweepState is the rebuild pass state
type SweepState uint8

const (
	SweepIdle SweepState = iota
	SweepSweeping
	SweepComplete
)

func (s SweepState) String() string {
	switch s {
	case SweepIdle:
		return "idle"
	case SweepSweeping:
		return "sweeping"
	case SweepComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// PassabilityFunc decides whether a world tile is walkable. Obstacle
// marking plugs in here.
type PassabilityFunc func(tile tilemap.TilePos) bool

// AllPassable treats every tile as walkable
func AllPassable(tilemap.TilePos) bool { return true }

// Maintainer rebuilds the grid a slice of cells per tick
type Maintainer struct {
	grid   *Grid
	slice  int
	policy PassabilityFunc
	log    zerolog.Logger

	state         SweepState
	cursor        int
	dirty         bool
	lastPassDirty bool

	regions     []int32
	regionCount int
	passes      uint64
	builds      uint64

	onReady []func()
}

// NewMaintainer creates a maintainer visiting sliceCells cells per tick
func NewMaintainer(grid *Grid, sliceCells int, policy PassabilityFunc, logger zerolog.Logger) (*Maintainer, error) {
	if grid == nil {
		return nil, eris.New("navigation grid is required")
	}
	if sliceCells <= 0 {
		return nil, eris.Errorf("invalid slice size %d", sliceCells)
	}
	if policy == nil {
		policy = AllPassable
	}
	return &Maintainer{
		grid:    grid,
		slice:   sliceCells,
		policy:  policy,
		log:     logger,
		regions: make([]int32, grid.Len()),
	}, nil
}

// Grid returns the maintained grid
func (m *Maintainer) Grid() *Grid { return m.grid }

// State returns the pass state
func (m *Maintainer) State() SweepState { return m.state }

// Sweeping reports whether a pass is in progress
func (m *Maintainer) Sweeping() bool { return m.state == SweepSweeping }

// Ready reports whether the last pass completed and no new one started
func (m *Maintainer) Ready() bool { return m.state == SweepComplete }

// Cursor returns the next cell index the sweep will visit
func (m *Maintainer) Cursor() int { return m.cursor }

// LastPassDirty reports whether the most recent completed pass changed a cell
func (m *Maintainer) LastPassDirty() bool { return m.lastPassDirty }

// Passes returns the number of completed passes
func (m *Maintainer) Passes() uint64 { return m.passes }

// Builds returns how many times the region index was rebuilt
func (m *Maintainer) Builds() uint64 { return m.builds }

// SetPolicy replaces the passability policy for future passes
func (m *Maintainer) SetPolicy(policy PassabilityFunc) {
	if policy == nil {
		policy = AllPassable
	}
	m.policy = policy
}

// OnReady registers a callback fired each time a pass completes
func (m *Maintainer) OnReady(fn func()) {
	m.onReady = append(m.onReady, fn)
}

// Begin moves the grid to origin and starts a pass. A pass in progress
// cannot be restarted.
func (m *Maintainer) Begin(origin tilemap.TilePos) error {
	if m.state == SweepSweeping {
		return ErrSweepInProgress
	}
	m.grid.origin = origin
	m.state = SweepSweeping
	m.cursor = 0
	m.dirty = false
	return nil
}

// Tick visits the next slice of cells. It returns true on the tick the
// pass completes.
func (m *Maintainer) Tick() bool {
	if m.state != SweepSweeping {
		return false
	}

	end := min(m.cursor+m.slice, m.grid.Len())
	for i := m.cursor; i < end; i++ {
		tile := m.grid.CellToTile(m.grid.cellAt(i))
		if m.grid.set(i, m.policy(tile)) {
			m.dirty = true
		}
	}
	m.cursor = end

	if m.cursor < m.grid.Len() {
		return false
	}
	m.complete()
	return true
}

func (m *Maintainer) complete() {
	m.passes++
	m.lastPassDirty = m.dirty
	if m.dirty {
		m.buildRegions()
		m.builds++
	}
	m.log.Debug().
		Uint64("pass", m.passes).
		Bool("dirty", m.dirty).
		Int("regions", m.regionCount).
		Int("origin_x", m.grid.origin.X).
		Int("origin_y", m.grid.origin.Y).
		Msg("navigation sweep complete")

	m.cursor = 0
	m.dirty = false
	m.state = SweepComplete
	for _, fn := range m.onReady {
		fn()
	}
}

// buildRegions labels 4-connected passable areas. Diagonal steps require
// both orthogonal neighbours to be passable, so 4-connectivity matches what
// the path search can reach.
func (m *Maintainer) buildRegions() {
	for i := range m.regions {
		m.regions[i] = 0
	}
	var label int32
	queue := make([]int, 0, m.grid.width)
	for start := range m.regions {
		if m.regions[start] != 0 || !m.grid.passable[start] {
			continue
		}
		label++
		m.regions[start] = label
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			c := m.grid.cellAt(idx)
			for _, d := range navNeighborOffsets[:4] {
				n := Cell{X: c.X + d.col, Y: c.Y + d.row}
				if !m.grid.InBounds(n) {
					continue
				}
				ni := m.grid.index(n)
				if m.regions[ni] != 0 || !m.grid.passable[ni] {
					continue
				}
				m.regions[ni] = label
				queue = append(queue, ni)
			}
		}
	}
	m.regionCount = int(label)
}

// Region returns the connected region label of c, zero when impassable
func (m *Maintainer) Region(c Cell) int {
	if !m.grid.InBounds(c) {
		return 0
	}
	return int(m.regions[m.grid.index(c)])
}

// RegionCount returns the number of connected passable regions
func (m *Maintainer) RegionCount() int { return m.regionCount }
