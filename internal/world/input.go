package world

import (
	"sync"

	"github.com/slimedodge/server/internal/tilemap"
)

// Input is the player intent drained at the start of a tick
type Input struct {
	Viewpoint    tilemap.Vec2
	Goal         tilemap.Vec2
	HasViewpoint bool
	HasGoal      bool
}

// InputBuffer collects intent from observer connections between ticks.
// Only the latest value of each field is kept.
type InputBuffer struct {
	mu      sync.Mutex
	pending Input
}

// SetViewpoint records the latest viewpoint position
func (b *InputBuffer) SetViewpoint(pos tilemap.Vec2) {
	b.mu.Lock()
	b.pending.Viewpoint = pos
	b.pending.HasViewpoint = true
	b.mu.Unlock()
}

// SetGoal records the latest goal agent position
func (b *InputBuffer) SetGoal(pos tilemap.Vec2) {
	b.mu.Lock()
	b.pending.Goal = pos
	b.pending.HasGoal = true
	b.mu.Unlock()
}

// Drain returns and clears the pending input
func (b *InputBuffer) Drain() Input {
	b.mu.Lock()
	defer b.mu.Unlock()
	in := b.pending
	b.pending = Input{}
	return in
}
