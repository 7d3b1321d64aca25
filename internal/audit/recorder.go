// Package audit keeps the bounded, write-once history of enforcement
// decisions observed on the governance bus.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

// ErrNotFound is returned for an unknown audit id.
var ErrNotFound = errors.New("audit entry not found")

// DefaultCapacity bounds the recorder when none is configured.
const DefaultCapacity = 500

// Query filters recorded entries. Zero fields match everything.
type Query struct {
	Domain    core.Domain
	Decision  core.EnforcementDecision
	PolicyID  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// QueryResult is a page of entries, newest first.
type QueryResult struct {
	Entries    []core.AuditLogEntry `json:"entries"`
	Total      int                  `json:"total"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
	ExecutedAt time.Time            `json:"executed_at"`
}

// Stats aggregates the recorded entries.
type Stats struct {
	Total          int            `json:"total_records"`
	DecisionCounts map[string]int `json:"decision_counts"`
	DomainCounts   map[string]int `json:"domain_counts"`
	NoPolicy       int            `json:"no_policy"`
	NonFinite      int            `json:"non_finite_metric"`
}

// Recorder is a bus subscriber for ENFORCEMENT_DECISION events. Entries are
// stored as received and never modified; the oldest is evicted at capacity.
type Recorder struct {
	capacity int

	mu      sync.RWMutex
	entries []core.AuditLogEntry // oldest first
	byID    map[string]int       // id -> absolute sequence
	dropped int
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{capacity: capacity, byID: make(map[string]int)}
}

// Handle is a bus Handler.
func (r *Recorder) Handle(_ context.Context, ev events.Event) error {
	p, ok := ev.Payload.(events.EnforcementDecided)
	if !ok {
		return nil
	}
	r.record(p.Entry)
	return nil
}

func (r *Recorder) record(e core.AuditLogEntry) {
	if len(e.Diagnostics) > 0 {
		e.Diagnostics = append([]string(nil), e.Diagnostics...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[e.ID]; dup {
		return
	}
	r.byID[e.ID] = r.dropped + len(r.entries)
	r.entries = append(r.entries, e)
	if over := len(r.entries) - r.capacity; over > 0 {
		for _, old := range r.entries[:over] {
			delete(r.byID, old.ID)
		}
		r.entries = append(r.entries[:0:0], r.entries[over:]...)
		r.dropped += over
	}
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Recorder) Get(id string) (core.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.byID[id]
	if !ok {
		return core.AuditLogEntry{}, ErrNotFound
	}
	return r.entries[seq-r.dropped], nil
}

// Query returns matching entries newest first, paged by Limit and Offset.
func (r *Recorder) Query(q Query) QueryResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []core.AuditLogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; q.matches(e) {
			matched = append(matched, e)
		}
	}
	res := QueryResult{Total: len(matched), Limit: q.Limit, Offset: q.Offset, ExecutedAt: time.Now().UTC()}
	start := min(max(q.Offset, 0), len(matched))
	end := len(matched)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(matched))
	}
	res.Entries = append([]core.AuditLogEntry{}, matched[start:end]...)
	return res
}

func (q Query) matches(e core.AuditLogEntry) bool {
	switch {
	case q.Domain != "" && e.Domain != q.Domain:
		return false
	case q.Decision != "" && e.Decision != q.Decision:
		return false
	case q.PolicyID != "" && e.PolicyID != q.PolicyID:
		return false
	case !q.StartTime.IsZero() && e.Timestamp.Before(q.StartTime):
		return false
	case !q.EndTime.IsZero() && e.Timestamp.After(q.EndTime):
		return false
	}
	return true
}

// Stats aggregates every retained entry.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Total:          len(r.entries),
		DecisionCounts: make(map[string]int),
		DomainCounts:   make(map[string]int),
	}
	for _, e := range r.entries {
		s.DecisionCounts[string(e.Decision)]++
		s.DomainCounts[string(e.Domain)]++
		if e.HasDiagnostic(core.DiagNoPolicy) {
			s.NoPolicy++
		}
		if e.HasDiagnostic(core.DiagNonFiniteMetric) {
			s.NonFinite++
		}
	}
	return s
}
