package pathing

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/navigation"
	"github.com/slimedodge/server/internal/navmesh"
	"github.com/slimedodge/server/internal/random"
	"github.com/slimedodge/server/internal/tilemap"
)

var dims = tilemap.Dimensions{TileWidth: 16, TileHeight: 16, ChunkWidth: 8, ChunkHeight: 8}

const dt = 50 * time.Millisecond

type fixture struct {
	registry *entity.Registry
	nav      *navigation.Maintainer
	mesh     *navmesh.Follower
	machine  *Machine
}

// newFixture builds a fully initialized navigation stack covering chunks
// (-1,-1) through (1,1), world tiles -8..15 on both axes
func newFixture(t *testing.T, speed float64) *fixture {
	t.Helper()
	registry := entity.NewRegistry()
	grid, err := navigation.NewStreamingGrid(dims, 1)
	require.NoError(t, err)
	nav, err := navigation.NewMaintainer(grid, grid.Len(), nil, zerolog.Nop())
	require.NoError(t, err)
	mesh := navmesh.NewFollower(grid, dims, zerolog.Nop())

	minChunk := tilemap.ChunkCoord{X: -1, Y: -1}
	require.NoError(t, nav.Begin(dims.ChunkTileOrigin(minChunk)))
	require.True(t, nav.Tick())
	mesh.Reposition(minChunk)
	require.True(t, mesh.Update())

	cfg := Config{Speed: speed, CooldownMin: 500 * time.Millisecond, CooldownMax: time.Second}
	machine := NewMachine(registry, nav, mesh, dims, cfg, random.New("test", random.LabelPathing), zerolog.Nop())
	machine.Listen(registry.World())
	return &fixture{registry: registry, nav: nav, mesh: mesh, machine: machine}
}

func (f *fixture) spawn(pos tilemap.Vec2, goal bool) entity.Handle {
	kind := entity.KindCharacter
	if goal {
		kind = entity.KindGoal
	}
	h := f.registry.Spawn(kind, pos, entity.Null)
	f.machine.Add(h, goal)
	return h
}

func (f *fixture) state(h entity.Handle) State {
	a, _ := f.machine.Agent(h)
	return a.State
}

func (f *fixture) tickUntil(t *testing.T, limit int, done func() bool) int {
	t.Helper()
	for i := 1; i <= limit; i++ {
		f.machine.Tick(dt)
		if done() {
			return i
		}
	}
	t.Fatalf("condition not reached within %d ticks", limit)
	return 0
}

func TestOneAgentLeavesUpdatePositionPerTick(t *testing.T) {
	f := newFixture(t, 40)
	var agents []entity.Handle
	for i := 0; i < 5; i++ {
		agents = append(agents, f.spawn(tilemap.Vec2{X: float64(i * 16)}, false))
	}

	for tick := 1; tick <= len(agents); tick++ {
		f.machine.Tick(dt)
		for i, h := range agents {
			advanced := f.state(h) != StateUpdatePosition
			assert.Equal(t, i < tick, advanced, "tick %d agent %d", tick, i)
		}
	}
}

func TestNothingAdvancesBeforeNavigationReady(t *testing.T) {
	f := newFixture(t, 40)
	h := f.spawn(tilemap.Vec2{}, false)
	require.NoError(t, f.nav.Begin(tilemap.TilePos{X: -8, Y: -8}))

	f.machine.Tick(dt)
	assert.False(t, f.machine.Ready())
	assert.Equal(t, StateUpdatePosition, f.state(h))
}

func TestPathApplicationTerminates(t *testing.T) {
	const speed = 40.0
	f := newFixture(t, speed)
	goal := f.spawn(tilemap.Vec2{X: 96, Y: 96}, true)
	follower := f.spawn(tilemap.Vec2{X: -96, Y: -96}, false)

	f.tickUntil(t, 10, func() bool { return f.state(follower) == StateApplyPath })
	a, _ := f.machine.Agent(follower)
	assert.Equal(t, IntentWalk, a.Intent)

	pathLen := 0.0
	prev := tilemap.Vec2{X: -96, Y: -96}
	for _, wp := range a.Waypoints {
		pathLen += wp.Sub(prev).Len()
		prev = wp
	}
	bound := int(pathLen/(speed*dt.Seconds())) + len(a.Waypoints) + 1

	ticks := f.tickUntil(t, bound, func() bool { return f.state(follower) == StateIdle })
	assert.LessOrEqual(t, ticks, bound)

	pos, _ := f.registry.Position(follower)
	goalPos, _ := f.registry.Position(goal)
	assert.Equal(t, goalPos, pos, "agent snaps onto the goal tile")
	a, _ = f.machine.Agent(follower)
	assert.Equal(t, IntentIdle, a.Intent)
	assert.Empty(t, a.Waypoints)
}

func TestFindPathStartsFromCurrentGridOrigin(t *testing.T) {
	f := newFixture(t, 40)
	f.spawn(tilemap.Vec2{X: 96, Y: 96}, true)
	follower := f.spawn(tilemap.Vec2{}, false)
	f.tickUntil(t, 5, func() bool { return f.state(follower) == StateFindPath })

	// the window slides one chunk up and right before the follower plans
	moved := tilemap.ChunkCoord{}
	require.NoError(t, f.nav.Begin(dims.ChunkTileOrigin(moved)))
	require.True(t, f.nav.Tick())
	f.mesh.Reposition(moved)
	require.True(t, f.mesh.Update())

	f.machine.Tick(dt)
	a, _ := f.machine.Agent(follower)
	require.Equal(t, StateApplyPath, a.State)
	assert.Equal(t, navigation.Cell{}, a.Cell, "world tile 0 is the first cell of the moved grid")

	first, ok := a.Next()
	require.True(t, ok)
	assert.LessOrEqual(t, first.Len(), dims.TileWidth*1.5, "first waypoint is next to the agent")
	dest, _ := a.Destination()
	assert.Equal(t, tilemap.Vec2{X: 96, Y: 96}, dest)
}

func TestGoalMoveWaitsForCooldown(t *testing.T) {
	f := newFixture(t, 10)
	goal := f.spawn(tilemap.Vec2{X: 96, Y: 96}, true)
	follower := f.spawn(tilemap.Vec2{X: -112, Y: -112}, false)

	f.tickUntil(t, 10, func() bool { return f.state(follower) == StateApplyPath })
	a, _ := f.machine.Agent(follower)
	require.GreaterOrEqual(t, a.Cooldown, 500*time.Millisecond)
	require.Less(t, a.Cooldown, time.Second)

	f.registry.SetPosition(goal, tilemap.Vec2{X: 96, Y: 200})

	ticks := f.tickUntil(t, 40, func() bool { return f.state(follower) != StateApplyPath })
	elapsed := time.Duration(ticks) * dt
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.LessOrEqual(t, elapsed, time.Second+dt)
	assert.Equal(t, StateFindPath, f.state(follower))

	goalPos, ok := f.machine.GoalPosition()
	require.True(t, ok)
	assert.Equal(t, tilemap.Vec2{X: 96, Y: 200}, goalPos)

	f.tickUntil(t, 2, func() bool { return f.state(follower) == StateApplyPath })
	a, _ = f.machine.Agent(follower)
	dest, _ := a.Destination()
	assert.Equal(t, dims.TileToWorld(dims.WorldToTile(goalPos)), dest)
}

func TestGoalJitterIsIgnored(t *testing.T) {
	f := newFixture(t, 80)
	goal := f.spawn(tilemap.Vec2{X: 32, Y: 32}, true)
	follower := f.spawn(tilemap.Vec2{X: 0, Y: 0}, false)
	f.tickUntil(t, 100, func() bool { return f.state(follower) == StateIdle })

	f.registry.SetPosition(goal, tilemap.Vec2{X: 37, Y: 30})
	for i := 0; i < 60; i++ {
		f.machine.Tick(dt)
		require.Equal(t, StateIdle, f.state(follower))
	}
	goalPos, _ := f.machine.GoalPosition()
	assert.Equal(t, tilemap.Vec2{X: 32, Y: 32}, goalPos)
}

func TestGoalMovedPromotesRoundRobin(t *testing.T) {
	f := newFixture(t, 200)
	goal := f.spawn(tilemap.Vec2{X: 32, Y: 32}, true)
	followers := []entity.Handle{
		f.spawn(tilemap.Vec2{X: 0, Y: 0}, false),
		f.spawn(tilemap.Vec2{X: 16, Y: 0}, false),
		f.spawn(tilemap.Vec2{X: 0, Y: 16}, false),
	}
	allIdle := func() bool {
		for _, h := range followers {
			if a, _ := f.machine.Agent(h); a.State != StateIdle || a.Cooldown > 0 {
				return false
			}
		}
		return true
	}
	f.tickUntil(t, 200, allIdle)

	promotions := func() []entity.Handle {
		var order []entity.Handle
		f.tickUntil(t, 200, func() bool {
			for _, h := range followers {
				if f.state(h) != StateIdle && !contains(order, h) {
					order = append(order, h)
				}
			}
			return len(order) == len(followers)
		})
		return order
	}

	f.registry.SetPosition(goal, tilemap.Vec2{X: 96, Y: 32})
	assert.Equal(t, followers, promotions())
	for _, h := range followers {
		a, _ := f.machine.Agent(h)
		assert.True(t, a.Settled)
	}

	f.tickUntil(t, 400, allIdle)
	f.registry.SetPosition(goal, tilemap.Vec2{X: 96, Y: 128})
	f.tickUntil(t, 200, func() bool { return f.state(followers[0]) != StateIdle })

	first, _ := f.machine.Agent(followers[0])
	second, _ := f.machine.Agent(followers[1])
	assert.True(t, first.Settled)
	assert.False(t, second.Settled, "settled flags reset once everyone had a turn")
	assert.Equal(t, StateIdle, f.state(followers[2]))
}

func TestDespawnedAgentIsSkipped(t *testing.T) {
	f := newFixture(t, 40)
	f.spawn(tilemap.Vec2{X: 96, Y: 96}, true)
	follower := f.spawn(tilemap.Vec2{X: -96, Y: -96}, false)
	other := f.spawn(tilemap.Vec2{X: -96, Y: 96}, false)

	f.tickUntil(t, 10, func() bool { return f.state(follower) == StateApplyPath })
	f.registry.Destroy(follower)

	assert.NotPanics(t, func() {
		for i := 0; i < 20; i++ {
			f.machine.Tick(dt)
		}
	})
	_, ok := f.machine.Agent(follower)
	assert.False(t, ok)
	assert.Equal(t, 2, f.machine.Len())
	assert.NotEqual(t, StateUpdatePosition, f.state(other))
	assert.Len(t, f.machine.Views(), 2)
}

func TestGoalOutsideMeshLeavesFollowerIdle(t *testing.T) {
	f := newFixture(t, 40)
	f.spawn(tilemap.Vec2{X: 5000, Y: 5000}, true)
	follower := f.spawn(tilemap.Vec2{}, false)

	f.tickUntil(t, 5, func() bool { return f.state(follower) == StateIdle })
	a, _ := f.machine.Agent(follower)
	assert.Empty(t, a.Waypoints)
}

func contains(list []entity.Handle, h entity.Handle) bool {
	for _, v := range list {
		if v == h {
			return true
		}
	}
	return false
}
