// Package ratelimit paces outbound calls to the public rate APIs, which
// throttle aggressively on free tiers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines rate limiting parameters for a provider source.
type Config struct {
	RequestsPerSecond int
	Burst             int
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		tokens: float64(cfg.Burst),
		last:   time.Now(),
		rate:   float64(cfg.RequestsPerSecond),
		burst:  float64(cfg.Burst),
	}
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	if l.tokens >= 1 {
		l.tokens -= 1
		return true
	}
	return false
}

// Wait blocks until a token becomes available or the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Manager holds one limiter per provider source.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

// NewManager creates a manager that lazily builds limiters with defaults.
func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

// GetLimiter returns the limiter for a source, creating it on first use.
func (m *Manager) GetLimiter(source string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[source]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[source]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[source] = lim
	return lim
}

// Wait ensures rate limit compliance for a given source.
func (m *Manager) Wait(ctx context.Context, source string) error {
	return m.GetLimiter(source).Wait(ctx)
}
