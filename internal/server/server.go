// Package server exposes the ingest pipeline and the stored history over
// HTTP, websocket and MQTT.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swing-service/internal/ingest"
	"swing-service/internal/metrics"
	"swing-service/internal/models"
	"swing-service/internal/monitoring"
	"swing-service/internal/store"
)

const Version = "1.0.0"

// History is the query side of the relational store.
type History interface {
	ListSessions(ctx context.Context, limit int) ([]models.SessionSummary, error)
	GetSession(ctx context.Context, id string) (models.SessionSummary, error)
	ListSwings(ctx context.Context, sessionID string, limit int) ([]models.SwingRecord, error)
}

// Cache is the hot view kept in Redis.
type Cache interface {
	GetRecentSwings(ctx context.Context, count int64) ([]models.SwingRecord, error)
	Session(ctx context.Context, id string) (map[string]string, error)
}

// Options tunes transport behaviour.
type Options struct {
	// EndSessionsOnDisconnect ends the sessions a websocket client owns when
	// that client goes away. A session belongs to the connection that fed it
	// last.
	EndSessionsOnDisconnect bool
}

type Server struct {
	router   *mux.Router
	pipeline *ingest.Pipeline
	history  History
	recent   Cache
	opts     Options
	upgrader websocket.Upgrader

	connsMu sync.Mutex
	conns   map[*websocket.Conn]struct{}
	owners  map[string]*websocket.Conn // session id -> last feeding connection
}

// NewServer wires the routes. history and recent may be nil when the
// corresponding store is disabled.
func NewServer(p *ingest.Pipeline, history History, recent Cache, opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		pipeline: p,
		history:  history,
		recent:   recent,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]struct{}),
		owners: make(map[string]*websocket.Conn),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.handle("/", s.rootHandler).Methods("GET")
	s.handle("/api/health", s.healthHandler).Methods("GET")
	s.handle("/api/detector/stats", s.detectorStatsHandler).Methods("GET")
	s.handle("/api/sessions", s.listSessionsHandler).Methods("GET")
	s.handle("/api/sessions/{id}", s.getSessionHandler).Methods("GET")
	s.handle("/api/swings", s.listSwingsHandler).Methods("GET")
	s.handle("/api/swings/recent", s.recentSwingsHandler).Methods("GET")
	s.handle("/ws", s.wsHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handle registers fn with request count and duration metrics labelled by
// route template.
func (s *Server) handle(path string, fn http.HandlerFunc) *mux.Route {
	return s.router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		fn(rec, r)

		duration := time.Since(start).Seconds()
		metrics.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("[http] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":            "swing-service",
		"version":            Version,
		"status":             "running",
		"realtime_detection": s.pipeline.Realtime(),
		"active_sessions":    s.pipeline.Registry().Len(),
		"endpoints": map[string]string{
			"websocket":      "GET /ws",
			"sessions":       "GET /api/sessions",
			"swings":         "GET /api/swings",
			"recent_swings":  "GET /api/swings/recent",
			"detector_stats": "GET /api/detector/stats",
			"metrics":        "GET /metrics",
		},
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC(),
		"version":         Version,
		"active_sessions": s.pipeline.Registry().Len(),
	})
}

func (s *Server) detectorStatsHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Registry().Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": len(snap),
		"sessions":        snap,
	})
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions := []models.SessionSummary{}
	if s.history != nil {
		if sessions, err = s.history.ListSessions(r.Context(), limit); err != nil {
			writeError(w, http.StatusInternalServerError, "database error: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":           len(sessions),
		"sessions":        sessions,
		"active_sessions": s.pipeline.Registry().IDs(),
	})
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if stats, err := s.pipeline.Registry().Statistics(id); err == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session_id": id,
			"status":     models.StatusActive,
			"statistics": stats,
		})
		return
	}

	if s.history != nil {
		summary, err := s.history.GetSession(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, summary)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "database error: "+err.Error())
			return
		}
	}

	// sessions that only reached Redis are served from their cached hash
	if s.recent != nil {
		fields, err := s.recent.Session(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "cache error: "+err.Error())
			return
		}
		if fields != nil {
			doc := map[string]interface{}{"session_id": id}
			for k, v := range fields {
				doc[k] = v
			}
			writeJSON(w, http.StatusOK, doc)
			return
		}
	}
	writeError(w, http.StatusNotFound, "session not found: "+id)
}

func (s *Server) listSwingsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	shots := []models.SwingRecord{}
	if s.history != nil {
		if shots, err = s.history.ListSwings(r.Context(), sessionID, limit); err != nil {
			writeError(w, http.StatusInternalServerError, "database error: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      len(shots),
		"session_id": sessionID,
		"shots":      shots,
	})
}

func (s *Server) recentSwingsHandler(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		writeError(w, http.StatusServiceUnavailable, "recent swings cache is not configured")
		return
	}
	limit, err := parseLimit(r, 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shots, err := s.recent.GetRecentSwings(r.Context(), int64(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cache error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": len(shots),
		"shots": shots,
	})
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeWebsockets)

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Server is ready to handle requests at %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	monitoring.Logf("Server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}
	monitoring.Logf("Server stopped")
	return nil
}
