package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/auth"
	"github.com/slimedodge/server/internal/compression"
	"github.com/slimedodge/server/internal/pathing"
	"github.com/slimedodge/server/internal/performance"
	"github.com/slimedodge/server/internal/tilemap"
	"github.com/slimedodge/server/internal/world"
)

// WorldStatus is the response of GET /api/world
type WorldStatus struct {
	Tick        uint64             `json:"tick"`
	Phase       string             `json:"phase"`
	Viewpoint   tilemap.Vec2       `json:"viewpoint"`
	Center      tilemap.ChunkCoord `json:"center"`
	Tracking    bool               `json:"tracking"`
	ChunkCount  int                `json:"chunk_count"`
	AgentCount  int                `json:"agent_count"`
	NavReady    bool               `json:"nav_ready"`
	MeshVersion uint64             `json:"mesh_version"`
	Despawned   int                `json:"despawned"`
	Observers   int                `json:"observers"`
}

// ChunkListResponse is the response of GET /api/chunks
type ChunkListResponse struct {
	Tick   uint64            `json:"tick"`
	Chunks []world.ChunkInfo `json:"chunks"`
}

// AgentListResponse is the response of GET /api/agents
type AgentListResponse struct {
	Tick   uint64         `json:"tick"`
	Agents []pathing.View `json:"agents"`
}

// WorldHandlers serves read-only views of the last published tick
type WorldHandlers struct {
	sim      Simulation
	hub      *WebSocketHub
	profiler *performance.Profiler
	log      zerolog.Logger
}

// NewWorldHandlers creates world handlers. hub and profiler may be nil.
func NewWorldHandlers(sim Simulation, hub *WebSocketHub, profiler *performance.Profiler, logger zerolog.Logger) *WorldHandlers {
	return &WorldHandlers{sim: sim, hub: hub, profiler: profiler, log: logger}
}

// GetWorld returns tick, phase and counters
// GET /api/world
func (h *WorldHandlers) GetWorld(w http.ResponseWriter, r *http.Request) {
	snap := h.sim.Snapshot()
	status := WorldStatus{
		Tick:        snap.Tick,
		Phase:       snap.Phase.String(),
		Viewpoint:   snap.Viewpoint,
		Center:      snap.Center,
		Tracking:    snap.Tracking,
		ChunkCount:  len(snap.Chunks),
		AgentCount:  len(snap.Agents),
		NavReady:    snap.NavReady,
		MeshVersion: snap.MeshVersion,
		Despawned:   snap.Despawned,
	}
	if h.hub != nil {
		status.Observers = h.hub.Count()
	}
	h.writeJSON(w, http.StatusOK, status)
}

// ListChunks returns the live chunk set
// GET /api/chunks
func (h *WorldHandlers) ListChunks(w http.ResponseWriter, r *http.Request) {
	snap := h.sim.Snapshot()
	chunks := snap.Chunks
	if chunks == nil {
		chunks = []world.ChunkInfo{}
	}
	h.writeJSON(w, http.StatusOK, ChunkListResponse{Tick: snap.Tick, Chunks: chunks})
}

// GetChunk returns a live chunk with its compressed tiles
// GET /api/chunks/{id}
func (h *WorldHandlers) GetChunk(w http.ResponseWriter, r *http.Request) {
	coord, err := tilemap.ParseChunkCoord(r.PathValue("id"))
	if err != nil {
		auth.WriteError(w, http.StatusBadRequest, "InvalidChunkID", err.Error())
		return
	}
	payload, ok := h.sim.ChunkTiles(coord)
	if !ok {
		auth.WriteError(w, http.StatusNotFound, "ChunkNotFound", "chunk "+coord.String()+" is not live")
		return
	}
	tiles, err := compression.CompressAndFormatTiles(payload.Width, payload.Height, payload.Tiles)
	if err != nil {
		h.log.Error().Err(err).Str("chunk", coord.String()).Msg("failed to compress chunk tiles")
		auth.WriteError(w, http.StatusInternalServerError, "InternalError", "failed to encode chunk")
		return
	}
	h.writeJSON(w, http.StatusOK, ChunkData{
		ID:            coord.String(),
		Coord:         coord,
		GeneratedTick: payload.Tick,
		Tiles:         tiles,
	})
}

// ListAgents returns every tracked agent
// GET /api/agents
func (h *WorldHandlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	snap := h.sim.Snapshot()
	agents := snap.Agents
	if agents == nil {
		agents = []pathing.View{}
	}
	h.writeJSON(w, http.StatusOK, AgentListResponse{Tick: snap.Tick, Agents: agents})
}

// GetPerformance returns the tick profile
// GET /api/performance
func (h *WorldHandlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	if h.profiler == nil {
		auth.WriteError(w, http.StatusNotFound, "ProfilingDisabled", "profiling is disabled")
		return
	}
	report, err := h.profiler.JSONReport()
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "InternalError", "failed to build report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report); err != nil {
		h.log.Debug().Err(err).Msg("failed to write performance report")
	}
}

func (h *WorldHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug().Err(err).Msg("failed to write response")
	}
}
