// Package pathing drives every mobile agent through the
// update-position / find-path / apply-path cycle toward the goal agent.
package pathing

import (
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/navigation"
	"github.com/slimedodge/server/internal/navmesh"
	"github.com/slimedodge/server/internal/random"
	"github.com/slimedodge/server/internal/tilemap"
)

// GoalMoved is published when the goal agent settles on a new position
type GoalMoved struct {
	Position tilemap.Vec2
}

// GoalMovedEvent carries goal movement to the machine
var GoalMovedEvent = events.NewEventType[GoalMoved]()

// Config holds movement and debounce settings
type Config struct {
	Speed       float64
	CooldownMin time.Duration
	CooldownMax time.Duration
}

// Machine owns the navigation state of all agents
type Machine struct {
	registry *entity.Registry
	nav      *navigation.Maintainer
	mesh     *navmesh.Follower
	dims     tilemap.Dimensions
	cfg      Config
	rng      *rand.Rand
	log      zerolog.Logger

	agents map[entity.Handle]*Agent
	order  []entity.Handle

	goal        entity.Handle
	goalPos     tilemap.Vec2
	hasGoalPos  bool
	goalVersion uint64
}

// NewMachine creates a machine. rng is the pathing subsystem stream.
func NewMachine(registry *entity.Registry, nav *navigation.Maintainer, mesh *navmesh.Follower, dims tilemap.Dimensions, cfg Config, rng *rand.Rand, logger zerolog.Logger) *Machine {
	return &Machine{
		registry: registry,
		nav:      nav,
		mesh:     mesh,
		dims:     dims,
		cfg:      cfg,
		rng:      rng,
		log:      logger,
		agents:   make(map[entity.Handle]*Agent),
		goal:     entity.Null,
	}
}

// Listen subscribes the machine to goal movement published in world
func (m *Machine) Listen(world donburi.World) {
	GoalMovedEvent.Subscribe(world, func(_ donburi.World, ev GoalMoved) {
		m.onGoalMoved(ev)
	})
}

// Add starts tracking h. The goal agent is the one followers path to.
func (m *Machine) Add(h entity.Handle, isGoal bool) {
	if _, ok := m.agents[h]; ok {
		return
	}
	m.agents[h] = &Agent{Handle: h, IsGoal: isGoal, State: StateUpdatePosition}
	m.order = append(m.order, h)
	if isGoal {
		m.goal = h
	}
}

// Remove stops tracking h
func (m *Machine) Remove(h entity.Handle) {
	if _, ok := m.agents[h]; !ok {
		return
	}
	delete(m.agents, h)
	for i, o := range m.order {
		if o == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.goal == h {
		m.goal = entity.Null
	}
}

// Agent returns a copy of the state of h
func (m *Machine) Agent(h entity.Handle) (Agent, bool) {
	a, ok := m.agents[h]
	if !ok {
		return Agent{}, false
	}
	c := *a
	c.Waypoints = append([]tilemap.Vec2(nil), a.Waypoints...)
	return c, true
}

// Len returns the number of tracked agents
func (m *Machine) Len() int { return len(m.order) }

// GoalPosition returns the last goal position followers plan toward
func (m *Machine) GoalPosition() (tilemap.Vec2, bool) { return m.goalPos, m.hasGoalPos }

// Ready reports whether navigation is fully initialized
func (m *Machine) Ready() bool {
	return m.nav.Ready() && m.mesh.Version() > 0
}

// Tick advances every agent by dt
func (m *Machine) Tick(dt time.Duration) {
	m.pruneStale()
	for _, h := range m.order {
		a := m.agents[h]
		if a.Cooldown > 0 {
			a.Cooldown -= dt
		}
	}

	if m.Ready() {
		m.watchGoal()
		m.promote()
		m.findPath()
		m.updatePosition()
		GoalMovedEvent.ProcessEvents(m.registry.World())
	}
	m.applyPath(dt)
}

func (m *Machine) pruneStale() {
	var stale []entity.Handle
	for _, h := range m.order {
		if !m.registry.Exists(h) {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		m.log.Debug().Uint64("agent", uint64(h)).Msg("dropping despawned agent")
		m.Remove(h)
	}
}

// first returns the first agent in stable order matching fn
func (m *Machine) first(fn func(*Agent) bool) *Agent {
	for _, h := range m.order {
		if a := m.agents[h]; fn(a) {
			return a
		}
	}
	return nil
}

// watchGoal sends an idle goal agent back to UpdatePosition once it has
// moved at least one tile from the last broadcast position
func (m *Machine) watchGoal() {
	a, ok := m.agents[m.goal]
	if !ok || a.State != StateIdle {
		return
	}
	pos, ok := m.registry.Position(a.Handle)
	if !ok {
		return
	}
	if !m.hasGoalPos || m.moved(pos, m.goalPos) {
		a.State = StateUpdatePosition
	}
}

// promote sends one follower whose path targets an outdated goal back to
// UpdatePosition. Followers are promoted round-robin through the settled
// flag and each waits out its cooldown first.
func (m *Machine) promote() {
	eligible := func(a *Agent) bool {
		return !a.IsGoal &&
			(a.State == StateIdle || a.State == StateApplyPath) &&
			a.goalVersion < m.goalVersion &&
			a.Cooldown <= 0
	}
	a := m.first(func(a *Agent) bool { return eligible(a) && !a.Settled })
	if a == nil {
		if m.first(eligible) == nil {
			return
		}
		for _, h := range m.order {
			m.agents[h].Settled = false
		}
		a = m.first(eligible)
	}
	a.Settled = true
	a.State = StateUpdatePosition
	a.Cooldown = random.Duration(m.rng, m.cfg.CooldownMin, m.cfg.CooldownMax)
}

func (m *Machine) updatePosition() {
	a := m.first(func(a *Agent) bool { return a.State == StateUpdatePosition })
	if a == nil {
		return
	}
	pos, ok := m.registry.Position(a.Handle)
	if !ok {
		return
	}
	a.Cell = m.nav.Grid().TileToCell(m.dims.WorldToTile(pos))
	if a.IsGoal {
		a.State = StateIdle
		GoalMovedEvent.Publish(m.registry.World(), GoalMoved{Position: pos})
		return
	}
	a.State = StateFindPath
}

func (m *Machine) findPath() {
	a := m.first(func(a *Agent) bool { return a.State == StateFindPath })
	if a == nil {
		return
	}
	a.goalVersion = m.goalVersion
	if !m.hasGoalPos || !m.mesh.Contains(m.goalPos) {
		m.stop(a)
		return
	}

	// the grid may have moved since UpdatePosition
	pos, ok := m.registry.Position(a.Handle)
	if !ok {
		return
	}
	grid := m.nav.Grid()
	a.Cell = grid.TileToCell(m.dims.WorldToTile(pos))
	goalCell := grid.TileToCell(m.dims.WorldToTile(m.goalPos))
	cells, err := m.nav.FindPath(a.Cell, goalCell)
	if errors.Is(err, navigation.ErrGridNotReady) {
		return
	}
	if err != nil {
		m.log.Debug().Err(err).Uint64("agent", uint64(a.Handle)).Msg("no path to goal")
		m.stop(a)
		return
	}
	if len(cells) == 0 {
		m.stop(a)
		return
	}

	a.Waypoints = a.Waypoints[:0]
	for _, c := range cells {
		a.Waypoints = append(a.Waypoints, m.dims.TileToWorld(grid.CellToTile(c)))
	}
	a.State = StateApplyPath
	a.Intent = IntentWalk
	a.Cooldown = random.Duration(m.rng, m.cfg.CooldownMin, m.cfg.CooldownMax)
}

func (m *Machine) applyPath(dt time.Duration) {
	step := m.cfg.Speed * dt.Seconds()
	tileSq := m.dims.TileWidth * m.dims.TileWidth
	for _, h := range m.order {
		a := m.agents[h]
		if a.State != StateApplyPath {
			continue
		}
		pos, ok := m.registry.Position(h)
		if !ok {
			continue
		}
		dest, ok := a.Destination()
		if !ok {
			m.stop(a)
			continue
		}
		if pos.DistanceSquared(dest) <= tileSq {
			m.registry.SetPosition(h, dest)
			m.stop(a)
			continue
		}
		next, _ := a.Next()
		if pos.DistanceSquared(next) <= step*step {
			m.registry.SetPosition(h, next)
			a.Waypoints = a.Waypoints[1:]
			continue
		}
		m.registry.SetPosition(h, pos.Add(next.Sub(pos).Normalize().Scale(step)))
	}
}

func (m *Machine) stop(a *Agent) {
	a.State = StateIdle
	a.Intent = IntentIdle
	a.Waypoints = nil
}

func (m *Machine) onGoalMoved(ev GoalMoved) {
	if m.hasGoalPos && !m.moved(ev.Position, m.goalPos) {
		return
	}
	m.goalPos = ev.Position
	m.hasGoalPos = true
	m.goalVersion++
}

// moved reports a displacement of at least one tile
func (m *Machine) moved(a, b tilemap.Vec2) bool {
	return a.DistanceSquared(b) >= m.dims.TileWidth*m.dims.TileWidth
}

// Views returns snapshot copies of all agents in stable order
func (m *Machine) Views() []View {
	views := make([]View, 0, len(m.order))
	for _, h := range m.order {
		a := m.agents[h]
		pos, ok := m.registry.Position(h)
		if !ok {
			continue
		}
		views = append(views, View{
			ID:        uint64(h),
			Goal:      a.IsGoal,
			State:     a.State.String(),
			Intent:    a.Intent.String(),
			Position:  pos,
			Waypoints: len(a.Waypoints),
		})
	}
	return views
}
