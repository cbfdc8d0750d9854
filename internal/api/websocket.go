package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/auth"
	"github.com/slimedodge/server/internal/compression"
	"github.com/slimedodge/server/internal/pathing"
	"github.com/slimedodge/server/internal/performance"
	"github.com/slimedodge/server/internal/streaming"
	"github.com/slimedodge/server/internal/tilemap"
	"github.com/slimedodge/server/internal/world"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "slimedodge-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second

	sendBufferSize = 256
)

// Message types
const (
	MessageError             = "error"
	MessagePing              = "ping"
	MessagePong              = "pong"
	MessageAck               = "ack"
	MessageViewpointUpdate   = "viewpoint_update"
	MessageGoalUpdate        = "goal_update"
	MessageStreamSubscribe   = "stream_subscribe"
	MessageStreamAck         = "stream_ack"
	MessageStreamUnsubscribe = "stream_unsubscribe"
	MessageChunkDelta        = "chunk_delta"
	MessageAgentSnapshot     = "agent_snapshot"
)

// Simulation is the part of the world the observer surface reads from and
// feeds input into
type Simulation interface {
	SetViewpoint(pos tilemap.Vec2)
	SetGoal(pos tilemap.Vec2)
	Snapshot() *world.Snapshot
	ChunkTiles(coord tilemap.ChunkCoord) (world.ChunkPayload, bool)
}

// WebSocketConnection represents an active WebSocket connection
type WebSocketConnection struct {
	id         string
	conn       *websocket.Conn
	observerID string
	version    string
	send       chan []byte
	hub        *WebSocketHub
	// closed is guarded by hub.mu
	closed bool

	mu            sync.Mutex
	subscriptions []string
}

// WebSocketHub manages all active WebSocket connections
type WebSocketHub struct {
	connections map[*WebSocketConnection]bool
	broadcast   chan []byte
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	done        chan struct{}
	mu          sync.RWMutex
	log         zerolog.Logger
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PositionData is the payload of viewpoint_update and goal_update
type PositionData struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

// UnsubscribeData is the payload of stream_unsubscribe
type UnsubscribeData struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
}

// ChunkData is a chunk delivered to an observer
type ChunkData struct {
	ID            string                       `json:"id"`
	Coord         tilemap.ChunkCoord           `json:"coord"`
	GeneratedTick uint64                       `json:"generated_tick"`
	Tiles         *compression.CompressedTiles `json:"tiles,omitempty"`
}

// ChunkDeltaData is the payload of chunk_delta
type ChunkDeltaData struct {
	SubscriptionID string      `json:"subscription_id"`
	Tick           uint64      `json:"tick"`
	Center         string      `json:"center"`
	Added          []ChunkData `json:"added,omitempty"`
	Removed        []string    `json:"removed,omitempty"`
}

// AgentSnapshotData is the payload of agent_snapshot
type AgentSnapshotData struct {
	Tick        uint64         `json:"tick"`
	Phase       string         `json:"phase"`
	NavReady    bool           `json:"nav_ready"`
	MeshVersion uint64         `json:"mesh_version"`
	Viewpoint   tilemap.Vec2   `json:"viewpoint"`
	Agents      []pathing.View `json:"agents"`
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		connections: make(map[*WebSocketConnection]bool),
		broadcast:   make(chan []byte, sendBufferSize),
		register:    make(chan *WebSocketConnection),
		unregister:  make(chan *WebSocketConnection),
		done:        make(chan struct{}),
		log:         logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, closing
// every remaining connection.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.connections {
				delete(h.connections, conn)
				conn.closed = true
				close(conn.send)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			h.log.Info().Str("connection", conn.id).Str("observer", conn.observerID).Str("version", conn.version).Msg("websocket connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			if !conn.closed {
				conn.closed = true
				close(conn.send)
			}
			h.mu.Unlock()
			h.log.Info().Str("connection", conn.id).Str("observer", conn.observerID).Msg("websocket connection unregistered")

		case message := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.connections {
				conn.enqueue(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Count returns the number of registered connections
func (h *WebSocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// each runs fn for every registered connection while holding the read
// lock, so sends cannot race the hub closing a channel
func (h *WebSocketHub) each(fn func(*WebSocketConnection)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.connections {
		fn(conn)
	}
}

func (h *WebSocketHub) leave(conn *WebSocketConnection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// WebSocketHandlers handles WebSocket connections
type WebSocketHandlers struct {
	hub           *WebSocketHub
	sim           Simulation
	jwtService    *auth.JWTService
	streamManager *streaming.Manager
	profiler      *performance.Profiler
	validator     *validator.Validate
	upgrader      websocket.Upgrader
	log           zerolog.Logger
}

// NewWebSocketHandlers creates a new WebSocket handlers instance. An empty
// allowedOrigins list falls back to the local development origins.
func NewWebSocketHandlers(sim Simulation, jwtService *auth.JWTService, manager *streaming.Manager, profiler *performance.Profiler, allowedOrigins []string, logger zerolog.Logger) *WebSocketHandlers {
	origins := originsOrDefault(allowedOrigins)
	return &WebSocketHandlers{
		hub:           NewWebSocketHub(logger),
		sim:           sim,
		jwtService:    jwtService,
		streamManager: manager,
		profiler:      profiler,
		validator:     validator.New(),
		log:           logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{ProtocolVersion1},
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range origins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// GetHub returns the connection hub
func (h *WebSocketHandlers) GetHub() *WebSocketHub {
	return h.hub
}

// HandleWebSocket handles WebSocket connection upgrades
// GET /ws
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromRequest(r)
	if !ok {
		h.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket authentication missing")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket token validation failed")
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	if h.negotiateVersion(requestedVersions) == "" {
		h.log.Debug().Str("requested", requestedVersions).Msg("websocket version negotiation failed")
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := &WebSocketConnection{
		id:         uuid.NewString(),
		conn:       conn,
		observerID: claims.ObserverID,
		version:    ProtocolVersion1,
		send:       make(chan []byte, sendBufferSize),
		hub:        h.hub,
	}

	select {
	case h.hub.register <- wsConn:
	case <-h.hub.done:
		_ = conn.Close()
		return
	}

	go wsConn.writePump(h.log)
	go wsConn.readPump(h)
}

// negotiateVersion selects the highest supported protocol version
func (h *WebSocketHandlers) negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	supportedVersions := []string{ProtocolVersion1}
	for _, supported := range supportedVersions {
		for _, version := range strings.Split(requested, ",") {
			if strings.TrimSpace(version) == supported {
				return supported
			}
		}
	}
	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (c *WebSocketConnection) readPump(handlers *WebSocketHandlers) {
	defer func() {
		for _, id := range c.takeSubscriptions() {
			handlers.streamManager.Unsubscribe(id)
		}
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				handlers.log.Debug().Err(err).Str("connection", c.id).Msg("websocket read failed")
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}
		handlers.handleMessage(c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection
func (c *WebSocketConnection) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug().Err(err).Str("connection", c.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a message without blocking. A connection that cannot keep
// up is closed; its read pump then unregisters it.
func (c *WebSocketConnection) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		_ = c.conn.Close()
		return false
	}
}

// deliver queues a message unless the hub has already closed the channel
func (c *WebSocketConnection) deliver(message []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.closed {
		c.enqueue(message)
	}
}

// sendMessage marshals a typed payload and queues it
func (c *WebSocketConnection) sendMessage(msgType, id string, payload any) {
	msg := WebSocketMessage{Type: msgType, ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.sendError(id, "Failed to encode response", "InternalError")
			return
		}
		msg.Data = data
	}
	bytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.deliver(bytes)
}

// sendError sends an error message to the client
func (c *WebSocketConnection) sendError(id, errorMsg, code string) {
	bytes, err := json.Marshal(WebSocketError{
		Type:    MessageError,
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	})
	if err != nil {
		return
	}
	c.deliver(bytes)
}

func (c *WebSocketConnection) addSubscription(id string) {
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, id)
	c.mu.Unlock()
}

func (c *WebSocketConnection) removeSubscription(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subscriptions {
		if s == id {
			c.subscriptions = append(c.subscriptions[:i], c.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

func (c *WebSocketConnection) subscriptionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscriptions...)
}

func (c *WebSocketConnection) takeSubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.subscriptions
	c.subscriptions = nil
	return ids
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(conn *WebSocketConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case MessagePing:
		conn.sendMessage(MessagePong, msg.ID, nil)
	case MessageViewpointUpdate:
		h.handlePosition(conn, msg, h.sim.SetViewpoint)
	case MessageGoalUpdate:
		h.handlePosition(conn, msg, h.sim.SetGoal)
	case MessageStreamSubscribe:
		h.handleStreamSubscribe(conn, msg)
	case MessageStreamUnsubscribe:
		h.handleStreamUnsubscribe(conn, msg)
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

// handlePosition buffers a viewpoint or goal position for the next tick
func (h *WebSocketHandlers) handlePosition(conn *WebSocketConnection, msg *WebSocketMessage, apply func(tilemap.Vec2)) {
	var data PositionData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		conn.sendError(msg.ID, "Invalid "+msg.Type+" payload", "InvalidMessageFormat")
		return
	}
	if err := h.validator.Struct(data); err != nil {
		conn.sendError(msg.ID, "x and y are required", "ValidationFailed")
		return
	}
	apply(tilemap.Vec2{X: *data.X, Y: *data.Y})
	conn.sendMessage(MessageAck, msg.ID, nil)
}

func (h *WebSocketHandlers) handleStreamSubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req streaming.SubscriptionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_subscribe payload", "InvalidMessageFormat")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_subscribe payload", "ValidationFailed")
		return
	}

	op := h.profiler.Start("stream_subscribe")
	plan, err := h.streamManager.PlanSubscription(conn.observerID, req)
	op.End()
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	conn.addSubscription(plan.SubscriptionID)

	h.log.Debug().
		Str("connection", conn.id).
		Str("subscription", plan.SubscriptionID).
		Int("radius", req.Radius).
		Bool("chunks", req.IncludeChunks).
		Bool("agents", req.IncludeAgents).
		Msg("stream subscription registered")

	conn.sendMessage(MessageStreamAck, msg.ID, plan)
}

func (h *WebSocketHandlers) handleStreamUnsubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	var data UnsubscribeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		conn.sendError(msg.ID, "Invalid stream_unsubscribe payload", "InvalidMessageFormat")
		return
	}
	if err := h.validator.Struct(data); err != nil || !conn.removeSubscription(data.SubscriptionID) {
		conn.sendError(msg.ID, "Unknown subscription", "InvalidSubscriptionRequest")
		return
	}
	h.streamManager.Unsubscribe(data.SubscriptionID)
	conn.sendMessage(MessageAck, msg.ID, nil)
}

// PublishSnapshot delivers the state of a finished tick to every subscribed
// observer: chunk deltas relative to what each subscription has seen and,
// when requested, the agent list.
func (h *WebSocketHandlers) PublishSnapshot(snap *world.Snapshot) {
	if snap == nil {
		return
	}
	op := h.profiler.Start("publish")
	defer op.End()

	live := snap.Live()
	var agents []byte
	h.hub.each(func(conn *WebSocketConnection) {
		for _, id := range conn.subscriptionIDs() {
			sub, err := h.streamManager.GetSubscription(id)
			if err != nil {
				continue
			}
			if sub.Request.IncludeChunks {
				if msg := h.chunkDelta(id, snap, live); msg != nil {
					conn.enqueue(msg)
				}
			}
			if sub.Request.IncludeAgents {
				if agents == nil {
					agents = agentSnapshot(snap)
				}
				if agents != nil {
					conn.enqueue(agents)
				}
			}
		}
	})
}

func (h *WebSocketHandlers) chunkDelta(subscriptionID string, snap *world.Snapshot, live []tilemap.ChunkCoord) []byte {
	delta, err := h.streamManager.Sync(subscriptionID, snap.Center, live)
	if err != nil || (len(delta.Added) == 0 && len(delta.Removed) == 0) {
		return nil
	}

	generated := make(map[tilemap.ChunkCoord]uint64, len(snap.Chunks))
	for _, c := range snap.Chunks {
		generated[c.Coord] = c.GeneratedTick
	}

	data := ChunkDeltaData{
		SubscriptionID: subscriptionID,
		Tick:           snap.Tick,
		Center:         snap.Center.String(),
	}
	for _, coord := range delta.Added {
		chunk := ChunkData{ID: coord.String(), Coord: coord, GeneratedTick: generated[coord]}
		if payload, ok := h.sim.ChunkTiles(coord); ok {
			tiles, err := compression.CompressAndFormatTiles(payload.Width, payload.Height, payload.Tiles)
			if err != nil {
				h.log.Warn().Err(err).Str("chunk", chunk.ID).Msg("failed to compress chunk tiles")
			} else {
				chunk.Tiles = tiles
			}
		}
		data.Added = append(data.Added, chunk)
	}
	for _, coord := range delta.Removed {
		data.Removed = append(data.Removed, coord.String())
	}
	return encodeMessage(MessageChunkDelta, data)
}

func agentSnapshot(snap *world.Snapshot) []byte {
	return encodeMessage(MessageAgentSnapshot, AgentSnapshotData{
		Tick:        snap.Tick,
		Phase:       snap.Phase.String(),
		NavReady:    snap.NavReady,
		MeshVersion: snap.MeshVersion,
		Agents:      snap.Agents,
		Viewpoint:   snap.Viewpoint,
	})
}

func encodeMessage(msgType string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	bytes, err := json.Marshal(WebSocketMessage{Type: msgType, Data: data})
	if err != nil {
		return nil
	}
	return bytes
}
