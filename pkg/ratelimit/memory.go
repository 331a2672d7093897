package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local fixed-window limiter used when Redis is unavailable.
type MemoryLimiter struct {
	mu           sync.Mutex
	limit        int
	window       time.Duration
	entries      map[string]*entry
	lastCleanup  time.Time
	cleanupEvery time.Duration
}

type entry struct {
	count int
	reset time.Time
}

// NewMemory creates an in-memory limiter allowing limit calls per window.
func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:        limit,
		window:       window,
		entries:      map[string]*entry{},
		cleanupEvery: window,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= l.cleanupEvery {
		for k, v := range l.entries {
			if now.After(v.reset) {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[key]
	if !ok || now.After(e.reset) {
		l.entries[key] = &entry{count: 1, reset: now.Add(l.window)}
		return true, 0, nil
	}

	if e.count >= l.limit {
		retryAfter := e.reset.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	e.count++
	return true, 0, nil
}
