package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// InProcessLimiter is a fixed-window limiter that counts requests per
// subject and tier in memory.
type InProcessLimiter struct {
	tiers      map[string]int
	defaultRPM int
	window     time.Duration
	now        func() time.Time

	mu       sync.Mutex
	counters map[string]*window
}

type window struct {
	count   int
	started time.Time
}

// NewInProcessLimiter creates a limiter from requests-per-minute settings
// keyed by tier name. Tiers missing from the map use defaultRPM; a value
// of zero or less disables limiting for that tier.
func NewInProcessLimiter(tiers map[string]int, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		window:     time.Minute,
		now:        time.Now,
		counters:   make(map[string]*window),
	}
}

// Allow returns ErrTooManyRequests once the identity exceeds its tier's limit
// within the current window.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	rpm := l.defaultRPM
	if v, ok := l.tiers[tier]; ok {
		rpm = v
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.counters[key]
	if !ok || now.Sub(w.started) >= l.window {
		l.counters[key] = &window{count: 1, started: now}
		return nil
	}

	w.count++
	if w.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}
