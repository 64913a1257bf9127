package ratelimit

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter counts requests per key in process memory. Counters expire
// with their window, so the first request of a window starts a new count.
type MemoryLimiter struct {
	window Window
	c      *gocache.Cache
}

func NewMemoryLimiter(w Window) *MemoryLimiter {
	return &MemoryLimiter{
		window: w,
		c:      gocache.New(w.Period, time.Minute),
	}
}

// Allow reports whether key still has budget in the current window
func (m *MemoryLimiter) Allow(ctx context.Context, key string) bool {
	if err := m.c.Add(key, 1, m.window.Period); err == nil {
		return m.window.Max >= 1
	}
	n, err := m.c.IncrementInt(key, 1)
	if err != nil {
		// expired between Add and Increment; start over
		m.c.Set(key, 1, m.window.Period)
		return m.window.Max >= 1
	}
	return n <= m.window.Max
}
