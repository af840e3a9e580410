// Package api provides the HTTP API for querying the distance fields.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/flowgrid/internal/engine"
	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/persistence"
	"github.com/talgya/flowgrid/internal/world"
)

const (
	maxStreamConns = 8
	maxWindow      = 128  // Max field window edge, in cells
	maxBuckets     = 1024 // Rate limiter size that triggers a stale-bucket sweep
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Active websocket connection count (atomic).
	streamConns int32

	upgrader websocket.Upgrader
	srv      *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	// Field windows are the expensive read; limit them per IP.
	fieldLimiter := NewRateLimiter(120, time.Minute)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/kinds", s.handleKinds)
	mux.HandleFunc("/api/v1/pathfind", s.handlePathfind)
	mux.HandleFunc("/api/v1/field", RateLimitMiddleware(fieldLimiter, s.handleField))
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Websocket stream of per-tick stats.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/budget", s.adminOnly(s.handleBudget))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Close stops the HTTP server.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no FLOWGRID_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":    "flowgrid",
		"tick":    s.Sim.CurrentTick(),
		"speed":   s.Eng.Speed(),
		"running": s.Eng.Running(),
		"budget":  s.Sim.Budget(),
		"kinds":   s.Sim.Kinds(),
		"colony":  s.Sim.Snapshot(),
	}
	writeJSON(w, status)
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.KindStats())
}

func (s *Server) handlePathfind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := entity.Kind(q.Get("kind"))
	from, err := parseCell(q.Get("x"), q.Get("y"))
	if kind == "" || err != nil {
		http.Error(w, "kind, x and y are required", http.StatusBadRequest)
		return
	}

	dir, ok, err := s.Sim.Route(kind, from)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if !ok {
		http.Error(w, "no route", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"kind":      kind,
		"from":      from,
		"direction": world.DirectionName(dir.Dir),
		"dx":        dir.Dir.X,
		"dy":        dir.Dir.Y,
		"distance":  dir.Distance,
	})
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := entity.Kind(q.Get("kind"))
	origin, err := parseCell(q.Get("x"), q.Get("y"))
	if kind == "" || err != nil {
		http.Error(w, "kind, x and y are required", http.StatusBadRequest)
		return
	}
	width, werr := strconv.Atoi(q.Get("w"))
	height, herr := strconv.Atoi(q.Get("h"))
	if werr != nil || herr != nil || width < 1 || height < 1 || width > maxWindow || height > maxWindow {
		http.Error(w, fmt.Sprintf("w and h must be 1-%d", maxWindow), http.StatusBadRequest)
		return
	}

	rect := world.Rect{Min: origin, Max: world.Cell{X: origin.X + width, Y: origin.Y + height}}
	rows, err := s.Sim.FieldWindow(kind, rect)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"kind":      kind,
		"x":         origin.X,
		"y":         origin.Y,
		"w":         width,
		"h":         height,
		"distances": rows,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.AgentList())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, s.Sim.RecentEvents(limit))
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Budget int `json:"budget"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Budget < 1 || req.Budget > 1_000_000 {
			http.Error(w, "budget must be 1-1000000", http.StatusBadRequest)
			return
		}
		s.Sim.SetBudget(req.Budget)
		slog.Info("relaxation budget changed", "budget", req.Budget)
	}

	writeJSON(w, map[string]int{"budget": s.Sim.Budget()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// handleStream upgrades to a websocket and pushes one TickStats message
// per tick. Slow clients miss ticks instead of stalling the simulation.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.streamConns, 1)
	defer atomic.AddInt32(&s.streamConns, -1)
	if current > maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID, "remote", r.RemoteAddr)

	// Reader: only needed to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case ts, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ts); err != nil {
				return
			}
		case <-heartbeat.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		}
	}
}

func parseCell(xs, ys string) (world.Cell, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return world.Cell{}, err
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return world.Cell{}, err
	}
	return world.Cell{X: x, Y: y}, nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
