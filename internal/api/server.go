// Package api serves the dojo over HTTP: JSON endpoints, turn streams as
// server-sent events, and the same turns over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/auth"
	"github.com/DannyMichaels/code-dojo-app/internal/dojo"
	"github.com/DannyMichaels/code-dojo-app/internal/logging"
	"github.com/DannyMichaels/code-dojo-app/internal/metrics"
	"github.com/DannyMichaels/code-dojo-app/internal/orchestrator"
	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// DefaultUserID identifies the learner when authentication is disabled and
// the request names nobody.
const DefaultUserID = "local"

// Config controls the HTTP surface.
type Config struct {
	EnableAuth     bool
	AllowedOrigins []string
}

// Server represents the HTTP API server
type Server struct {
	svc      *dojo.Service
	auth     *auth.Authenticator
	config   Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
	logs     *logging.Buffer
	health   func(ctx context.Context) error
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets the credential verifier used when auth is enabled.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLogBuffer exposes buffered log entries at /api/v1/logs.
func WithLogBuffer(b *logging.Buffer) Option {
	return func(s *Server) { s.logs = b }
}

// WithHealthCheck adds a dependency check to /api/v1/health.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

// NewServer creates a new API server
func NewServer(svc *dojo.Service, cfg Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	s := &Server{
		svc:     svc,
		config:  cfg,
		metrics: metrics.NewMetrics(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.EnableAuth && s.auth == nil {
		return nil, errors.New("authentication is enabled but no authenticator is set")
	}
	s.logger = s.logger.Named("api")
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	s.mux = mux

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/logs", s.handleLogsRecent)

	// Skills
	mux.HandleFunc("POST /api/v1/skills", s.handleEnroll)
	mux.HandleFunc("GET /api/v1/skills", s.handleListSkills)
	mux.HandleFunc("GET /api/v1/skills/{id}", s.handleGetSkill)
	mux.HandleFunc("DELETE /api/v1/skills/{id}", s.handleRemoveSkill)
	mux.HandleFunc("GET /api/v1/skills/{id}/belt-info", s.handleBeltInfo)
	mux.HandleFunc("POST /api/v1/skills/{id}/promote", s.handlePromote)
	mux.HandleFunc("GET /api/v1/skills/{id}/progress", s.handleSkillProgress)
	mux.HandleFunc("GET /api/v1/skills/{id}/focus", s.handleFocus)
	mux.HandleFunc("DELETE /api/v1/skills/{id}/reinforcement/{concept}", s.handleRemoveReinforcement)
	mux.HandleFunc("GET /api/v1/skills/{id}/belt-history", s.handleBeltHistory)

	// Sessions
	mux.HandleFunc("GET /api/v1/skills/{id}/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/v1/skills/{id}/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleAbandonSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/v1/sessions/{id}/ws", s.handleSessionSocket)

	// Aggregates
	mux.HandleFunc("GET /api/v1/progress", s.handleDashboard)
	mux.HandleFunc("GET /api/v1/belt-stats/{skill}", s.handleBeltStats)
	mux.HandleFunc("GET /api/v1/belt-requirements", s.handleBeltRequirements)

	handler := s.authMiddleware(mux)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses JSON request body
func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

// statusFor maps service errors onto HTTP statuses. Anything unrecognized is
// a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrTurnInProgress),
		errors.Is(err, dojo.ErrAlreadyEnrolled):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrSessionNotActive),
		errors.Is(err, models.ErrSessionTerminal),
		errors.Is(err, orchestrator.ErrEmptyContent),
		errors.Is(err, orchestrator.ErrContentTooLong),
		errors.Is(err, dojo.ErrInvalidInput),
		errors.Is(err, dojo.ErrInvalidSessionType):
		return http.StatusBadRequest
	case dojo.IsRejectedPromotion(err),
		errors.Is(err, dojo.ErrAssessmentUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with its mapped status. Server faults are
// logged and hidden from the caller.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.respondError(w, status, "internal error")
		return
	}
	s.respondError(w, status, err.Error())
}

// userID returns the caller set by the auth middleware, or the X-User-ID
// header when authentication is off.
func (s *Server) userID(r *http.Request) string {
	if id := auth.GetUserIDFromRequest(r); id != "" {
		return id
	}
	if id := r.Header.Get(auth.UserIDHeader); id != "" {
		return id
	}
	return DefaultUserID
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
