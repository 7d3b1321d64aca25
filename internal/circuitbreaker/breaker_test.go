package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/econcore/internal/clock"
)

var errBackend = errors.New("backend down")

func fail(context.Context) (int, error) { return 0, errBackend }
func ok(context.Context) (int, error)   { return 1, nil }

func newTestBreaker(clk clock.Clock) *Breaker {
	cfg := DefaultConfig("catalog")
	cfg.OnStateChange = nil
	return New(cfg, clk)
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	b := newTestBreaker(clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Do(ctx, b, fail)
		assert.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, StateOpen, b.State())

	_, err := Do(ctx, b, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := newTestBreaker(clock.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	Do(ctx, b, fail)
	Do(ctx, b, fail)
	Do(ctx, b, ok)
	Do(ctx, b, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	b := newTestBreaker(clk)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		Do(ctx, b, fail)
	}

	clk.Advance(30 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	_, err := Do(ctx, b, fail)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateOpen, b.State())

	clk.Advance(30 * time.Second)
	v, err := Do(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	b := newTestBreaker(clock.NewFake(time.Unix(0, 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := Do(ctx, b, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().TotalFailures)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cfg := DefaultConfig("catalog")
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	}
	b := New(cfg, clock.NewFake(time.Unix(0, 0)))
	for i := 0; i < 3; i++ {
		Do(context.Background(), b, fail)
	}
	assert.Equal(t, []string{"catalog:CLOSED->OPEN"}, transitions)
}
