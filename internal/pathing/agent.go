package pathing

import (
	"time"

	"github.com/slimedodge/server/internal/entity"
	"github.com/slimedodge/server/internal/navigation"
	"github.com/slimedodge/server/internal/tilemap"
)

// State is the agent pathing state
type State uint8

const (
	StateUpdatePosition State = iota
	StateFindPath
	StateApplyPath
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateUpdatePosition:
		return "update_position"
	case StateFindPath:
		return "find_path"
	case StateApplyPath:
		return "apply_path"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Intent is the movement intent exposed to animation
type Intent uint8

const (
	IntentIdle Intent = iota
	IntentWalk
)

func (i Intent) String() string {
	if i == IntentWalk {
		return "walk"
	}
	return "idle"
}

// Agent is the navigation state of one mobile entity
type Agent struct {
	Handle    entity.Handle
	IsGoal    bool
	State     State
	Intent    Intent
	Cell      navigation.Cell
	Waypoints []tilemap.Vec2
	Settled   bool
	Cooldown  time.Duration

	// goalVersion is the goal revision the current path was planned for
	goalVersion uint64
}

// Next returns the waypoint the agent is walking toward
func (a *Agent) Next() (tilemap.Vec2, bool) {
	if len(a.Waypoints) == 0 {
		return tilemap.Vec2{}, false
	}
	return a.Waypoints[0], true
}

// Destination returns the final waypoint
func (a *Agent) Destination() (tilemap.Vec2, bool) {
	if len(a.Waypoints) == 0 {
		return tilemap.Vec2{}, false
	}
	return a.Waypoints[len(a.Waypoints)-1], true
}

// View is a read-only copy of an agent for snapshots
type View struct {
	ID        uint64       `json:"id"`
	Goal      bool         `json:"goal,omitempty"`
	State     string       `json:"state"`
	Intent    string       `json:"intent"`
	Position  tilemap.Vec2 `json:"position"`
	Waypoints int          `json:"waypoints"`
}
