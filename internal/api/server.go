// Package api exposes the decision core over HTTP/JSON and streams bus
// events over a WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/econcore/internal/advisor"
	"github.com/ocx/econcore/internal/audit"
	"github.com/ocx/econcore/internal/catalog"
	"github.com/ocx/econcore/internal/events"
	"github.com/ocx/econcore/internal/middleware"
	"github.com/ocx/econcore/internal/notify"
	"github.com/ocx/econcore/internal/plan"
	"github.com/ocx/econcore/internal/service"
	"github.com/ocx/econcore/internal/webhooks"
)

// Server routes HTTP requests to a session.
type Server struct {
	session   *service.Session
	hub       *Hub
	metrics   http.Handler
	limiter   *middleware.RateLimiter
	webhooks  *webhooks.Registry
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithHub serves h at /ws/events.
func WithHub(h *Hub) Option { return func(s *Server) { s.hub = h } }

// WithIngestLimiter rate limits POST /api/v1/events/{kind} per producer.
func WithIngestLimiter(rl *middleware.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithWebhooks exposes the webhook registry under /api/v1/webhooks.
func WithWebhooks(reg *webhooks.Registry) Option {
	return func(s *Server) { s.webhooks = reg }
}

func NewServer(sess *service.Session, opts ...Option) *Server {
	s := &Server{session: sess, startedAt: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware, loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}
	if s.hub != nil {
		r.HandleFunc("/ws/events", s.hub.ServeWS)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Enforcement and routing
	v1.HandleFunc("/decisions", s.handleDecide).Methods("POST")
	v1.HandleFunc("/routing", s.handleRoute).Methods("POST")
	v1.HandleFunc("/workflows/route", s.handleRouteWorkflow).Methods("POST")
	v1.HandleFunc("/scores", s.handleScore).Methods("POST")

	// Planning
	v1.HandleFunc("/plans", s.handleComposePlan).Methods("POST")
	v1.HandleFunc("/plans", s.handleListPlans).Methods("GET")
	v1.HandleFunc("/plans/{id}", s.handleGetPlan).Methods("GET")
	v1.HandleFunc("/plans/{id}/revise", s.handleRevisePlan).Methods("POST")
	v1.HandleFunc("/plans/{id}/analysis", s.handleAnalyzePlan).Methods("POST")

	// Catalogs
	v1.HandleFunc("/policies", s.handleListPolicies).Methods("GET")
	v1.HandleFunc("/policies", s.handleSavePolicy).Methods("POST")
	v1.HandleFunc("/policies/{id}/status", s.handleSetPolicyStatus).Methods("PATCH")
	v1.HandleFunc("/policies/{id}/history", s.handlePolicyHistory).Methods("GET")
	v1.HandleFunc("/policies/{id}/rollback", s.handleRollbackPolicy).Methods("POST")
	v1.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	v1.HandleFunc("/profiles", s.handleSaveProfile).Methods("POST")
	v1.HandleFunc("/actions", s.handleListActions).Methods("GET")
	v1.HandleFunc("/catalog/reload", s.handleReload).Methods("POST")

	// Feed
	v1.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")
	v1.HandleFunc("/notifications", s.handleClearNotifications).Methods("DELETE")
	v1.HandleFunc("/notifications/read", s.handleMarkAllRead).Methods("POST")
	v1.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods("POST")
	v1.HandleFunc("/toasts", s.handleListToasts).Methods("GET")
	v1.HandleFunc("/toasts/{id}", s.handleDismissToast).Methods("DELETE")
	v1.HandleFunc("/counters", s.handleCounters).Methods("GET")
	v1.HandleFunc("/counters/{view}", s.handleResetCounter).Methods("DELETE")
	v1.HandleFunc("/faults", s.handleFaults).Methods("GET")
	var ingest http.Handler = http.HandlerFunc(s.handleIngest)
	if s.limiter != nil {
		ingest = s.limiter.Middleware(ingest)
	}
	v1.Handle("/events/{kind}", ingest).Methods("POST")

	// Audit
	RegisterAuditRoutes(v1, s.session.Audit())

	if s.webhooks != nil {
		v1.HandleFunc("/webhooks", s.handleListWebhooks).Methods("GET")
		v1.HandleFunc("/webhooks", s.handleRegisterWebhook).Methods("POST")
		v1.HandleFunc("/webhooks/{id}", s.handleDeleteWebhook).Methods("DELETE")
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"scope":       s.session.Scope(),
		"policies":    s.session.Policies().Len(),
		"subscribers": s.session.Bus().SubscriberCount(),
		"uptime_sec":  int(time.Since(s.startedAt).Seconds()),
	}
	if s.hub != nil {
		resp["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("[API] request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("[API] JSON encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}

// writeRetryable reports an upstream failure the client may retry.
func writeRetryable(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "retryable": true})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError maps core errors onto status codes. Anything
// unrecognised came from a collaborator and is retryable.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation *service.ValidationError
		invalid    *catalog.InvalidPolicyError
		stepCount  *plan.InvalidStepCountError
		syntax     *json.SyntaxError
		typeErr    *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &invalid), errors.As(err, &stepCount),
		errors.As(err, &syntax), errors.As(err, &typeErr),
		errors.Is(err, events.ErrUnknownKind), errors.Is(err, events.ErrNotIngestible):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, notify.ErrNotFound),
		errors.Is(err, audit.ErrNotFound), errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, webhooks.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoProfile), errors.Is(err, plan.ErrNoActions):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, advisor.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeRetryable(w, err)
	}
}
