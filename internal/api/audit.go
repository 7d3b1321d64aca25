package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/econcore/internal/audit"
	"github.com/ocx/econcore/internal/core"
)

// RegisterAuditRoutes adds the enforcement audit query endpoints.
func RegisterAuditRoutes(router *mux.Router, rec *audit.Recorder) {
	router.HandleFunc("/audit/logs", handleQueryAuditLogs(rec)).Methods("GET")
	router.HandleFunc("/audit/logs/{id}", handleGetAuditLog(rec)).Methods("GET")
	router.HandleFunc("/audit/stats", handleAuditStats(rec)).Methods("GET")
}

// GET /api/v1/audit/logs?domain=budget&decision=BLOCK&policy_id=bp_1&start=...&end=...&limit=50&offset=0
func handleQueryAuditLogs(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 || limit > 100 {
			limit = 50
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		if offset < 0 {
			offset = 0
		}

		query := audit.Query{
			Domain:   core.Domain(q.Get("domain")),
			Decision: core.EnforcementDecision(q.Get("decision")),
			PolicyID: q.Get("policy_id"),
			Limit:    limit,
			Offset:   offset,
		}

		if start := q.Get("start"); start != "" {
			t, err := time.Parse(time.RFC3339, start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "start must be RFC3339")
				return
			}
			query.StartTime = t
		}
		if end := q.Get("end"); end != "" {
			t, err := time.Parse(time.RFC3339, end)
			if err != nil {
				writeError(w, http.StatusBadRequest, "end must be RFC3339")
				return
			}
			query.EndTime = t
		}

		writeJSON(w, http.StatusOK, rec.Query(query))
	}
}

// GET /api/v1/audit/logs/{id}
func handleGetAuditLog(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := rec.Get(mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// GET /api/v1/audit/stats
func handleAuditStats(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rec.Stats())
	}
}
