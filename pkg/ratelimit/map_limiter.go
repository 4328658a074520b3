// Package ratelimit throttles outbound calls per key (one key per external system).
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const logPrefix = "ratelimit:map_limiter"

// MapLimiter applies a token bucket per string key and periodically evicts idle entries.
// Keys may carry their own limit; others use the limiter's default.
type MapLimiter struct {
	limit     rate.Limit
	burst     int
	mu        sync.Mutex
	byKey     map[string]*entry
	overrides map[string]keyLimit
	hits      uint64
	idleTTL   time.Duration
}

type keyLimit struct {
	limit rate.Limit
	burst int
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a key-based limiter; returns nil if args are invalid.
// A nil *MapLimiter allows everything.
func New(rps float64, burst int, idleTTL time.Duration) *MapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MapLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		byKey:     make(map[string]*entry),
		overrides: make(map[string]keyLimit),
		idleTTL:   idleTTL,
	}
}

// SetKeyLimit gives key its own rate. A non-positive rps removes the bound for key.
func (l *MapLimiter) SetKeyLimit(key string, rps float64, burst int) {
	if l == nil {
		return
	}
	key = strings.TrimSpace(key)
	if burst <= 0 {
		burst = 1
	}
	kl := keyLimit{limit: rate.Limit(rps), burst: burst}
	if rps <= 0 {
		kl = keyLimit{limit: rate.Inf, burst: burst}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = kl
	delete(l.byKey, key)
}

// Allow reports whether one token can be consumed for the key at now.
func (l *MapLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entryLocked(key, now).limiter.AllowN(now, 1)
}

// Wait blocks until a token is available for key or ctx is done.
func (l *MapLimiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	l.mu.Lock()
	lim := l.entryLocked(key, time.Now()).limiter
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("%s - rate limit wait for %s: %w", logPrefix, key, err)
	}
	return nil
}

// Len returns the number of tracked keys.
func (l *MapLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (l *MapLimiter) entryLocked(key string, now time.Time) *entry {
	e, ok := l.byKey[key]
	if !ok {
		limit, burst := l.limit, l.burst
		if kl, ok := l.overrides[key]; ok {
			limit, burst = kl.limit, kl.burst
		}
		e = &entry{
			limiter:  rate.NewLimiter(limit, burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if k != key && v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return e
}
