package world

import (
	"github.com/slimedodge/server/internal/pathing"
	"github.com/slimedodge/server/internal/tilemap"
)

// ChunkPayload is a chunk generated during a tick together with its tiles
type ChunkPayload struct {
	Coord  tilemap.ChunkCoord
	Width  int
	Height int
	Tiles  []int
	Tick   uint64
}

// ChunkInfo is a live chunk as listed to observers
type ChunkInfo struct {
	Coord         tilemap.ChunkCoord `json:"coord"`
	ID            string             `json:"id"`
	GeneratedTick uint64             `json:"generated_tick"`
}

// Snapshot is the read-only state published after every tick. Observers
// never touch simulation state directly.
type Snapshot struct {
	Tick        uint64
	Phase       Phase
	Viewpoint   tilemap.Vec2
	Center      tilemap.ChunkCoord
	Tracking    bool
	Chunks      []ChunkInfo
	Changed     bool
	Agents      []pathing.View
	NavReady    bool
	MeshVersion uint64
	Despawned   int
}

// Live returns the coordinates of all live chunks
func (s *Snapshot) Live() []tilemap.ChunkCoord {
	out := make([]tilemap.ChunkCoord, len(s.Chunks))
	for i, c := range s.Chunks {
		out[i] = c.Coord
	}
	return out
}
