package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/econcore/internal/clock"
)

func TestRateLimiter_Window(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rl := NewRateLimiter(2, clk)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	clk.Advance(time.Minute)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiter_SweepsStaleWindows(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	rl := NewRateLimiter(5, clk)
	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.ActiveWindows())

	clk.Advance(3 * time.Minute)
	rl.Allow("c")
	assert.Equal(t, 1, rl.ActiveWindows())
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, clock.NewFake(time.Unix(0, 0)))
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(producer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/events/MARKET_UPDATE", nil)
		req.Header.Set("X-Producer-ID", producer)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusAccepted, send("billing").Code)
	rec := send("billing")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusAccepted, send("market").Code)
}
