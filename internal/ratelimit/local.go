// Package ratelimit throttles sensitive operations with fixed-window
// counters. The distributed counter performs one atomic increment-and-check
// round trip against Redis; the local counter is its in-process fallback, so
// store unavailability degrades protection to per-process instead of failing
// closed or open.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // unix seconds when the window rolls over
	Count     int64 `json:"count"`
}

type window struct {
	start time.Time
	count int64
}

// LocalCounter is a per-process fixed-window counter. It offers no
// cross-process guarantee and exists only as a degraded fallback for the
// distributed counter. Safe for concurrent use.
type LocalCounter struct {
	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check increments the identifier's counter for the current window and
// reports whether the request stays within limit. The window resets only once
// it has fully elapsed.
func (c *LocalCounter) Check(identifier string, limit, windowSeconds int) Result {
	now := c.now()
	windowDur := time.Duration(windowSeconds) * time.Second

	c.mu.Lock()
	w, ok := c.windows[identifier]
	if !ok || !now.Before(w.start.Add(windowDur)) {
		w = &window{start: now}
		c.windows[identifier] = w
	}
	w.count++
	count := w.count
	reset := w.start.Add(windowDur).Unix()
	c.mu.Unlock()

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		Reset:     reset,
		Count:     count,
	}
}
