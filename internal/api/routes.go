package api

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/auth"
	"github.com/slimedodge/server/internal/config"
	"github.com/slimedodge/server/internal/logging"
	"github.com/slimedodge/server/internal/performance"
	"github.com/slimedodge/server/internal/streaming"
	"github.com/slimedodge/server/internal/world"
)

// Server is the observer HTTP and websocket surface
type Server struct {
	cfg       *config.Config
	limits    RateLimitConfig
	auth      *auth.AuthHandlers
	websocket *WebSocketHandlers
	world     *WorldHandlers
	log       zerolog.Logger
}

// NewServer wires the handlers for a simulation. profiler may be nil.
func NewServer(cfg *config.Config, sim Simulation, manager *streaming.Manager, profiler *performance.Profiler, limits RateLimitConfig, logger zerolog.Logger) *Server {
	jwtService := auth.NewJWTService(cfg)
	ws := NewWebSocketHandlers(sim, jwtService, manager, profiler, cfg.Server.AllowedOrigins, logging.Component(logger, "websocket"))
	return &Server{
		cfg:       cfg,
		limits:    limits,
		auth:      auth.NewAuthHandlers(jwtService, auth.NewPasswordService(cfg), logging.Component(logger, "auth")),
		websocket: ws,
		world:     NewWorldHandlers(sim, ws.GetHub(), profiler, logger),
		log:       logger,
	}
}

// Hub returns the websocket connection hub
func (s *Server) Hub() *WebSocketHub {
	return s.websocket.GetHub()
}

// Publish forwards the state of a finished tick to subscribed observers
func (s *Server) Publish(snap *world.Snapshot) {
	s.websocket.PublishSnapshot(snap)
}

// Handler returns the routed handler with the shared middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ws", s.websocket.HandleWebSocket)
	SetupAuthRoutes(mux, s.auth, s.limits, s.log)
	SetupWorldRoutes(mux, s.world, s.auth, s.limits, s.log)

	global := RateLimitMiddleware(s.limits.GlobalLimit, s.limits.GlobalWindow, s.log)
	cors := CORSMiddleware(s.cfg.Server.AllowedOrigins)
	security := auth.SecurityHeadersMiddleware(s.cfg.Server.IsProduction())
	return security(cors(global(mux)))
}

// SetupAuthRoutes registers the token endpoint with its own strict limit
func SetupAuthRoutes(mux *http.ServeMux, handlers *auth.AuthHandlers, limits RateLimitConfig, logger zerolog.Logger) {
	authRateLimit := RateLimitMiddleware(limits.AuthLimit, limits.AuthWindow, logger)
	mux.Handle("POST /api/auth/observer", authRateLimit(http.HandlerFunc(handlers.IssueObserverToken)))
}

// SetupWorldRoutes registers the authenticated read-only world routes
func SetupWorldRoutes(mux *http.ServeMux, handlers *WorldHandlers, authHandlers *auth.AuthHandlers, limits RateLimitConfig, logger zerolog.Logger) {
	observerRateLimit := ObserverRateLimitMiddleware(limits.ObserverLimit, limits.ObserverWindow, logger)
	protect := func(fn http.HandlerFunc) http.Handler {
		return authHandlers.AuthMiddleware(observerRateLimit(fn))
	}

	mux.Handle("GET /api/world", protect(handlers.GetWorld))
	mux.Handle("GET /api/chunks", protect(handlers.ListChunks))
	mux.Handle("GET /api/chunks/{id}", protect(handlers.GetChunk))
	mux.Handle("GET /api/agents", protect(handlers.ListAgents))
	mux.Handle("GET /api/performance", protect(handlers.GetPerformance))
}

// healthHandler responds to health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok","service":"slimedodge-server"}`)
}
