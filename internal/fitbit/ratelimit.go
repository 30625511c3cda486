package fitbit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rannmann/health-lens/internal/metrics"
)

// Defaults applied when Fitbit omits rate limit headers
const (
	defaultRateLimit        = 150
	defaultRateResetSeconds = 3600
)

// rateLimitState tracks the remote quota for one user
type rateLimitState struct {
	limit     int
	remaining int
	resetTime time.Time
	updatedAt time.Time
}

// RateLimiter tracks per-user Fitbit API rate limits. State is process
// local and safe to lose on restart.
type RateLimiter struct {
	mu    sync.Mutex
	users map[string]*rateLimitState
}

// RateLimitStatus is a read-only snapshot of one user's quota
type RateLimitStatus struct {
	Limit     int
	Remaining int
	ResetTime time.Time
	UpdatedAt time.Time
}

// NewRateLimiter creates a new per-user rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		users: make(map[string]*rateLimitState),
	}
}

// Wait suspends the caller until the user's reset time when the quota is
// exhausted. Returns early if the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, userID string) error {
	rl.mu.Lock()
	state, ok := rl.users[userID]
	var wait time.Duration
	if ok && state.remaining <= 0 {
		wait = time.Until(state.resetTime)
	}
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	metrics.RateLimitWaitsTotal.Inc()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Update refreshes a user's quota from response headers
func (rl *RateLimiter) Update(userID string, headers http.Header) {
	limit := headerInt(headers, "Fitbit-Rate-Limit-Limit", defaultRateLimit)
	remaining := headerInt(headers, "Fitbit-Rate-Limit-Remaining", 0)
	resetSeconds := headerInt(headers, "Fitbit-Rate-Limit-Reset", defaultRateResetSeconds)

	now := time.Now()
	rl.mu.Lock()
	rl.users[userID] = &rateLimitState{
		limit:     limit,
		remaining: remaining,
		resetTime: now.Add(time.Duration(resetSeconds) * time.Second),
		updatedAt: now,
	}
	rl.mu.Unlock()

	metrics.RateLimitRemaining.Set(float64(remaining))
}

// MarkLimited records an exhausted quota after a 429 and returns the
// reset window the caller should wait out
func (rl *RateLimiter) MarkLimited(userID string, headers http.Header) time.Duration {
	resetSeconds := headerInt(headers, "Fitbit-Rate-Limit-Reset", defaultRateResetSeconds)

	now := time.Now()
	rl.mu.Lock()
	rl.users[userID] = &rateLimitState{
		limit:     defaultRateLimit,
		remaining: 0,
		resetTime: now.Add(time.Duration(resetSeconds) * time.Second),
		updatedAt: now,
	}
	rl.mu.Unlock()

	metrics.RateLimitRemaining.Set(0)

	return time.Duration(resetSeconds) * time.Second
}

// Status returns a snapshot of one user's quota
func (rl *RateLimiter) Status(userID string) (RateLimitStatus, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.users[userID]
	if !ok {
		return RateLimitStatus{}, false
	}
	return RateLimitStatus{
		Limit:     state.limit,
		Remaining: state.remaining,
		ResetTime: state.resetTime,
		UpdatedAt: state.updatedAt,
	}, true
}

func headerInt(headers http.Header, key string, defaultValue int) int {
	value := headers.Get(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return n
}
