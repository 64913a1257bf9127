// Package ratelimit provides fixed-window request limiters for the auth API.
// MemoryLimiter suits a single instance; RedisLimiter shares counters across
// instances.
package ratelimit

import (
	"time"
)

// Window is a fixed-window limit: at most Max requests per Period per key
type Window struct {
	Max    int
	Period time.Duration
}

// Limits applied to the auth API
var (
	AuthWindow    = Window{Max: 5, Period: 15 * time.Minute}
	GeneralWindow = Window{Max: 20, Period: 15 * time.Minute}
)
