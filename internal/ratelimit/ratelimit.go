package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles requests per target host.
type Limiter interface {
	Wait(ctx context.Context, host string) error
}

const (
	// a host that keeps failing is slowed down to at most 1/maxSlowdown of the
	// base rate
	maxSlowdown      = 8
	recoverAfterHits = 5
)

type hostState struct {
	limiter   *rate.Limiter
	slowdown  int
	successes int
	lastUsed  time.Time
}

// HostLimiter is a token bucket per host. Errors reported for a host halve its
// rate; a run of successes restores it step by step.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	rate  rate.Limit
	burst int
}

// NewHostLimiter allows perSecond requests per host with the given burst.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		hosts: make(map[string]*hostState),
		rate:  rate.Limit(perSecond),
		burst: burst,
	}
}

func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.state(host).limiter.Wait(ctx)
}

func (h *HostLimiter) RecordSuccess(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.lookup(host)
	if state.slowdown <= 1 {
		return
	}

	state.successes++
	if state.successes >= recoverAfterHits {
		state.successes = 0
		state.slowdown /= 2
		state.limiter.SetLimit(h.rate / rate.Limit(state.slowdown))
	}
}

func (h *HostLimiter) RecordError(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.lookup(host)
	state.successes = 0
	if state.slowdown >= maxSlowdown {
		return
	}

	state.slowdown *= 2
	state.limiter.SetLimit(h.rate / rate.Limit(state.slowdown))
}

// Limit returns the current rate for host.
func (h *HostLimiter) Limit(host string) rate.Limit {
	return h.state(host).limiter.Limit()
}

// Prune forgets hosts that have not been used for idle.
func (h *HostLimiter) Prune(idle time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for host, state := range h.hosts {
		if state.lastUsed.Before(cutoff) {
			delete(h.hosts, host)
			removed++
		}
	}
	return removed
}

func (h *HostLimiter) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

func (h *HostLimiter) state(host string) *hostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookup(host)
}

// lookup must be called with mu held.
func (h *HostLimiter) lookup(host string) *hostState {
	host = strings.ToLower(host)
	state, ok := h.hosts[host]
	if !ok {
		state = &hostState{
			limiter:  rate.NewLimiter(h.rate, h.burst),
			slowdown: 1,
		}
		h.hosts[host] = state
	}
	state.lastUsed = time.Now()
	return state
}
