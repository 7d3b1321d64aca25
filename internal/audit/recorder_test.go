package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

func decided(id string, domain core.Domain, decision core.EnforcementDecision, diags ...string) events.Event {
	return events.New("org_1", events.EnforcementDecided{Entry: core.AuditLogEntry{
		ID:          id,
		Timestamp:   time.Unix(0, 0).UTC(),
		Domain:      domain,
		Decision:    decision,
		Diagnostics: diags,
	}})
}

func TestRecorder_RecordsOnlyEnforcementEvents(t *testing.T) {
	r := NewRecorder(10)
	bus := events.NewBus()
	bus.Subscribe("audit", r.Handle)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, decided("a", core.DomainBudget, core.DecisionThrottle)))
	require.NoError(t, bus.Emit(ctx, "", events.MarketUpdated{}))

	assert.Equal(t, 1, r.Len())
	e, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionThrottle, e.Decision)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecorder_EvictsOldestAtCapacity(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Handle(context.Background(), decided(fmt.Sprintf("e%d", i), core.DomainBudget, core.DecisionAllow)))
	}

	assert.Equal(t, 3, r.Len())
	_, err := r.Get("e1")
	assert.ErrorIs(t, err, ErrNotFound)
	e, err := r.Get("e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", e.ID)

	res := r.Query(Query{})
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "e4", res.Entries[0].ID)
	assert.Equal(t, "e2", res.Entries[2].ID)
}

func TestRecorder_EntriesAreWriteOnce(t *testing.T) {
	r := NewRecorder(3)
	diags := []string{core.DiagNoPolicy}
	require.NoError(t, r.Handle(context.Background(), decided("x", core.DomainPricing, core.DecisionAllow, diags...)))
	// a second event with the same id does not overwrite
	require.NoError(t, r.Handle(context.Background(), decided("x", core.DomainPricing, core.DecisionBlock)))
	diags[0] = "MUTATED"

	e, err := r.Get("x")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionAllow, e.Decision)
	assert.Equal(t, []string{core.DiagNoPolicy}, e.Diagnostics)
}

func TestRecorder_QueryAndStats(t *testing.T) {
	r := NewRecorder(10)
	ctx := context.Background()
	require.NoError(t, r.Handle(ctx, decided("1", core.DomainBudget, core.DecisionThrottle)))
	require.NoError(t, r.Handle(ctx, decided("2", core.DomainBudget, core.DecisionAllow, core.DiagNoPolicy)))
	require.NoError(t, r.Handle(ctx, decided("3", core.DomainRouting, core.DecisionRoute, core.DiagNonFiniteMetric)))

	res := r.Query(Query{Domain: core.DomainBudget})
	assert.Equal(t, 2, res.Total)

	page := r.Query(Query{Limit: 1, Offset: 1})
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "2", page.Entries[0].ID)
	assert.Equal(t, 3, page.Total)

	assert.Empty(t, r.Query(Query{Offset: 10}).Entries)

	stats := r.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.DomainCounts["budget"])
	assert.Equal(t, 1, stats.DecisionCounts["ROUTE"])
	assert.Equal(t, 1, stats.NoPolicy)
	assert.Equal(t, 1, stats.NonFinite)
}
