package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/econcore/internal/core"
)

// --- Enforcement and routing ---

type decideRequest struct {
	Domain   core.Domain `json:"domain"`
	MatchKey string      `json:"match_key"`
	Metric   *float64    `json:"metric"`
}

// POST /api/v1/decisions
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Metric == nil {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}
	decision, entry, err := s.session.Decide(r.Context(), req.Domain, req.MatchKey, *req.Metric)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decision": decision, "entry": entry})
}

// POST /api/v1/routing
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskType string `json:"task_type"`
	}
	if err := decodeBody(r, &req); err != nil || req.TaskType == "" {
		writeError(w, http.StatusBadRequest, "task_type is required")
		return
	}
	writeJSON(w, http.StatusOK, s.session.DecideRoute(r.Context(), req.TaskType))
}

// POST /api/v1/workflows/route
func (s *Server) handleRouteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskType       string  `json:"task_type"`
		PotentialValue float64 `json:"potential_value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	route, paths, err := s.session.RouteWorkflow(r.Context(), req.TaskType, req.PotentialValue)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"route": route, "paths": paths})
}

// POST /api/v1/scores
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var action core.AgentAction
	if err := decodeBody(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	score, err := s.session.ScoreAgentAction(r.Context(), action)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// --- Planning ---

// POST /api/v1/plans
func (s *Server) handleComposePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal      string `json:"goal"`
		ProfileID string `json:"profile_id"`
		StepCount *int   `json:"step_count"` // omitted means the scope default
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	steps := s.session.DefaultStepCount()
	if req.StepCount != nil {
		steps = *req.StepCount
	}
	p, err := s.session.ComposePlan(r.Context(), req.Goal, req.ProfileID, steps)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GET /api/v1/plans
func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Plans().List())
}

// GET /api/v1/plans/{id}
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.session.Plans().Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /api/v1/plans/{id}/revise
func (s *Server) handleRevisePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal      string `json:"goal"`
		ProfileID string `json:"profile_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := s.session.RevisePlan(r.Context(), mux.Vars(r)["id"], req.Goal, req.ProfileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /api/v1/plans/{id}/analysis
func (s *Server) handleAnalyzePlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	text, err := s.session.AnalyzePlan(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"plan_id": id, "analysis": text})
}

// --- Catalogs ---

// GET /api/v1/policies?domain=budget
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	if d := r.URL.Query().Get("domain"); d != "" {
		domain := core.Domain(d)
		if !domain.Valid() {
			writeError(w, http.StatusBadRequest, "unknown domain "+d)
			return
		}
		writeJSON(w, http.StatusOK, s.session.Policies().Policies(domain))
		return
	}
	writeJSON(w, http.StatusOK, s.session.Policies().All())
}

// POST /api/v1/policies
func (s *Server) handleSavePolicy(w http.ResponseWriter, r *http.Request) {
	var p core.Policy
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	saved, err := s.session.SavePolicy(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// PATCH /api/v1/policies/{id}/status
func (s *Server) handleSetPolicyStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status core.PolicyStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	updated, err := s.session.SetPolicyStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// GET /api/v1/policies/{id}/history
func (s *Server) handlePolicyHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	history := s.session.Policies().History(id)
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "no history for policy "+id)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// POST /api/v1/policies/{id}/rollback
func (s *Server) handleRollbackPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version int `json:"version"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	restored, err := s.session.RollbackPolicy(r.Context(), mux.Vars(r)["id"], req.Version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

// GET /api/v1/profiles
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Profiles().All())
}

// POST /api/v1/profiles
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var u core.UtilityProfile
	if err := decodeBody(r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	saved, err := s.session.SaveProfile(r.Context(), u)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GET /api/v1/actions?category=storage
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if c := r.URL.Query().Get("category"); c != "" {
		writeJSON(w, http.StatusOK, s.session.Actions().Category(c))
		return
	}
	writeJSON(w, http.StatusOK, s.session.Actions().All())
}

// POST /api/v1/catalog/reload
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reload(r.Context()); err != nil {
		writeRetryable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": s.session.Policies().Len(),
		"profiles": len(s.session.Profiles().All()),
		"actions":  len(s.session.Actions().All()),
	})
}
