package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/econcore/internal/audit"
	"github.com/ocx/econcore/internal/catalog"
	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/datasource"
	"github.com/ocx/econcore/internal/middleware"
	"github.com/ocx/econcore/internal/service"
	"github.com/ocx/econcore/internal/webhooks"
)

const testScope = "org_enterprise_01"

func newTestSession(t *testing.T) *service.Session {
	t.Helper()
	src, err := datasource.LoadFixture("../../configs/fixture.yaml", testScope)
	require.NoError(t, err)
	sess, err := service.New(service.Config{Scope: testScope, DefaultProfileID: "esm_1", Seed: 7}, service.Deps{
		Source: src,
		Clock:  clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.NoError(t, sess.Reload(context.Background()))
	t.Cleanup(sess.Close)
	return sess
}

func newTestServer(t *testing.T) (*service.Session, http.Handler) {
	t.Helper()
	sess := newTestSession(t)
	return sess, NewServer(sess).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, testScope, body["scope"])
	assert.EqualValues(t, 11, body["policies"])
}

func TestDecide(t *testing.T) {
	sess, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/decisions", `{"domain":"throttling","match_key":"budget_proximity","metric":96.4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Decision core.EnforcementDecision `json:"decision"`
		Entry    core.AuditLogEntry       `json:"entry"`
	}
	decode(t, rec, &body)
	assert.Equal(t, core.DecisionThrottle, body.Decision)
	assert.Equal(t, "tp_2", body.Entry.PolicyID)
	assert.Equal(t, 1, sess.Audit().Len())
}

func TestDecide_BadRequests(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing metric", `{"domain":"budget","match_key":"org"}`},
		{"unknown domain", `{"domain":"weather","match_key":"x","metric":1}`},
		{"unknown field", `{"domain":"budget","match_key":"org","metric":1,"extra":true}`},
		{"malformed", `{"domain":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/v1/decisions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]interface{}
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRouting(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/routing", `{"task_type":"reasoning"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var d core.RoutingDecision
	decode(t, rec, &d)
	assert.Equal(t, "gemini-3-pro", d.ChosenTarget)

	rec = do(t, h, "POST", "/api/v1/routing", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteWorkflow(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/workflows/route", `{"task_type":"support","potential_value":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Route core.WorkflowRoute  `json:"route"`
		Paths []core.WorkflowPath `json:"paths"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "path_lite", body.Route.ChosenPathID)
	assert.NotEmpty(t, body.Paths)
}

func TestPlans(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/plans", `{"goal":"cut inference spend","step_count":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID    string        `json:"id"`
		Goal  string        `json:"goal"`
		Steps []interface{} `json:"steps"`
	}
	decode(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Len(t, created.Steps, 2)

	rec = do(t, h, "GET", "/api/v1/plans/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "POST", "/api/v1/plans/"+created.ID+"/revise", `{"goal":"cut spend harder","profile_id":"euf_2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var revised struct {
		ID        string `json:"id"`
		Goal      string `json:"goal"`
		ProfileID string `json:"profile_id"`
	}
	decode(t, rec, &revised)
	assert.Equal(t, created.ID, revised.ID)
	assert.Equal(t, "cut spend harder", revised.Goal)
	assert.Equal(t, "euf_2", revised.ProfileID)

	rec = do(t, h, "GET", "/api/v1/plans", "")
	var list []interface{}
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/v1/plans/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/api/v1/plans/nope/revise", `{"goal":"x"}`).Code)
}

func TestPlans_InvalidStepCount(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, "POST", "/api/v1/plans", `{"goal":"g","step_count":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/v1/plans", `{"goal":"g","step_count":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlans_OmittedStepCountUsesDefault(t *testing.T) {
	sess, h := newTestServer(t)
	rec := do(t, h, "POST", "/api/v1/plans", `{"goal":"g"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Steps []json.RawMessage `json:"steps"`
	}
	decode(t, rec, &created)
	assert.Len(t, created.Steps, sess.DefaultStepCount())
}

func TestAnalyzePlan_AdvisorDisabled(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, "POST", "/api/v1/plans", `{"goal":"g","step_count":1}`)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, rec, &created)

	rec = do(t, h, "POST", "/api/v1/plans/"+created.ID+"/analysis", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPolicies(t *testing.T) {
	sess, h := newTestServer(t)

	rec := do(t, h, "GET", "/api/v1/policies?domain=throttling", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var throttling []core.Policy
	decode(t, rec, &throttling)
	assert.Len(t, throttling, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/v1/policies?domain=weather", "").Code)

	rec = do(t, h, "POST", "/api/v1/policies", `{"name":"Hard cap","domain":"budget","match_key":"team_a","threshold":50,"action":"BLOCK"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved core.Policy
	decode(t, rec, &saved)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, testScope, saved.Scope)
	assert.Equal(t, 12, sess.Policies().Len())

	rec = do(t, h, "POST", "/api/v1/policies", `{"name":"Bad","domain":"budget","match_key":"team_a","threshold":5,"action":"NUKE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPolicyStatusAndRollback(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, "PATCH", "/api/v1/policies/tp_2/status", `{"status":"disabled"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated core.Policy
	decode(t, rec, &updated)
	assert.Equal(t, core.StatusDisabled, updated.Status)

	rec = do(t, h, "GET", "/api/v1/policies/tp_2/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []catalog.PolicyVersion
	decode(t, rec, &history)
	require.Len(t, history, 2)

	rec = do(t, h, "POST", "/api/v1/policies/tp_2/rollback", fmt.Sprintf(`{"version":%d}`, history[0].Version))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var restored core.Policy
	decode(t, rec, &restored)
	assert.Equal(t, core.StatusActive, restored.Status)

	assert.Equal(t, http.StatusNotFound, do(t, h, "PATCH", "/api/v1/policies/nope/status", `{"status":"active"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/v1/policies/nope/history", "").Code)
}

func TestProfilesAndActions(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, "GET", "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profiles []core.UtilityProfile
	decode(t, rec, &profiles)
	assert.NotEmpty(t, profiles)

	rec = do(t, h, "POST", "/api/v1/profiles", `{"name":"Lean","weights":{"value_weight":0.5,"cost_weight":0.5,"risk_weight":0}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, "GET", "/api/v1/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var actions []core.ActionCandidate
	decode(t, rec, &actions)
	assert.Len(t, actions, 5)
}

func TestReload(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, "POST", "/api/v1/catalog/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	decode(t, rec, &body)
	assert.Equal(t, 11, body["policies"])
	assert.Equal(t, 5, body["actions"])
}

func TestFeedEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	require.Equal(t, http.StatusOK, do(t, h, "POST", "/api/v1/decisions", `{"domain":"guardrail","match_key":"max_cost_per_call","metric":2.5}`).Code)

	rec := do(t, h, "GET", "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Notifications []struct {
			ID string `json:"id"`
		} `json:"notifications"`
		Unread int `json:"unread"`
	}
	decode(t, rec, &feed)
	require.Len(t, feed.Notifications, 1)
	assert.Equal(t, 1, feed.Unread)

	rec = do(t, h, "POST", "/api/v1/notifications/"+feed.Notifications[0].ID+"/read", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/api/v1/notifications/nope/read", "").Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/v1/notifications?kind=NOPE", "").Code)

	rec = do(t, h, "GET", "/api/v1/counters", "")
	var counts map[string]int
	decode(t, rec, &counts)
	assert.Equal(t, 1, counts["governance"])

	rec = do(t, h, "DELETE", "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared map[string]int
	decode(t, rec, &cleared)
	assert.Equal(t, 1, cleared["cleared"])
}

func TestIngest(t *testing.T) {
	sess, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/events/MARKET_UPDATE", `{"service_name":"Vector Index","units":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Len(t, sess.Feed().History(), 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/v1/events/NOPE", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/v1/events/PLAN_UPDATE", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/v1/events/MARKET_UPDATE", `{"units":`).Code)
}

func TestAuditEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	for _, body := range []string{
		`{"domain":"budget","match_key":"org","metric":1200}`,
		`{"domain":"budget","match_key":"org","metric":10}`,
		`{"domain":"throttling","match_key":"budget_proximity","metric":96.4}`,
	} {
		require.Equal(t, http.StatusOK, do(t, h, "POST", "/api/v1/decisions", body).Code)
	}

	rec := do(t, h, "GET", "/api/v1/audit/logs?domain=budget", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result audit.QueryResult
	decode(t, rec, &result)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 50, result.Limit)

	rec = do(t, h, "GET", "/api/v1/audit/logs?decision=BLOCK&limit=500", "")
	decode(t, rec, &result)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, 50, result.Limit)

	rec = do(t, h, "GET", "/api/v1/audit/logs/"+result.Entries[0].ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/v1/audit/logs/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/v1/audit/logs?start=yesterday", "").Code)

	rec = do(t, h, "GET", "/api/v1/audit/stats", "")
	var stats audit.Stats
	decode(t, rec, &stats)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.DecisionCounts["THROTTLE"])
}

func TestIngest_RateLimited(t *testing.T) {
	sess := newTestSession(t)
	rl := middleware.NewRateLimiter(1, clock.NewFake(time.Unix(0, 0)))
	h := NewServer(sess, WithIngestLimiter(rl)).Router()

	assert.Equal(t, http.StatusAccepted, do(t, h, "POST", "/api/v1/events/MARKET_UPDATE", `{"service_name":"a","units":1}`).Code)
	rec := do(t, h, "POST", "/api/v1/events/MARKET_UPDATE", `{"service_name":"a","units":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, sess.Feed().History(), 1)
}

func TestWebhookRoutes(t *testing.T) {
	sess := newTestSession(t)
	h := NewServer(sess, WithWebhooks(webhooks.NewRegistry())).Router()

	rec := do(t, h, "POST", "/api/v1/webhooks", `{"url":"https://hooks.example.com/econ","kinds":["ENFORCEMENT_DECISION"],"secret":"s"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created webhooks.Subscription
	decode(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.Secret)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/v1/webhooks", `{"url":"https://x","kinds":["NOPE"]}`).Code)

	rec = do(t, h, "GET", "/api/v1/webhooks", "")
	var list []webhooks.Subscription
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "***", list[0].Secret)

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/api/v1/webhooks/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "DELETE", "/api/v1/webhooks/"+created.ID, "").Code)
}
