package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/econcore/internal/webhooks"
)

// GET /api/v1/webhooks
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.webhooks.List())
}

// POST /api/v1/webhooks
func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var sub webhooks.Subscription
	if err := decodeBody(r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := s.webhooks.Register(sub)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created.Secret = ""
	writeJSON(w, http.StatusCreated, created)
}

// DELETE /api/v1/webhooks/{id}
func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.webhooks.Unregister(mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
