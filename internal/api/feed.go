package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/econcore/internal/events"
)

const maxIngestBody = 1 << 20

// GET /api/v1/notifications?kind=GUARDRAIL_VIOLATION
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	feed := s.session.Feed()
	kind := events.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"notifications": feed.History(),
			"unread":        feed.UnreadCount(),
		})
		return
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown event kind "+string(kind))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": feed.HistoryByKind(kind),
		"unread":        feed.UnreadCount(),
	})
}

// DELETE /api/v1/notifications
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.session.Feed().ClearAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// POST /api/v1/notifications/read
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"changed": s.session.Feed().MarkAllRead()})
}

// POST /api/v1/notifications/{id}/read
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	changed, err := s.session.Feed().MarkRead(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// GET /api/v1/toasts
func (s *Server) handleListToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Feed().Toasts())
}

// DELETE /api/v1/toasts/{id}
func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	if !s.session.Feed().DismissToast(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "toast not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/counters
func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Counters().Counts())
}

// DELETE /api/v1/counters/{view}
func (s *Server) handleResetCounter(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	writeJSON(w, http.StatusOK, map[string]interface{}{"view": view, "cleared": s.session.Counters().Reset(view)})
}

// GET /api/v1/faults
func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Bus().Faults())
}

// POST /api/v1/events/{kind}
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	ev, err := s.session.Ingest(r.Context(), events.Kind(mux.Vars(r)["kind"]), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ev)
}
