package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"security-service/internal/metrics"
	"security-service/internal/util"
)

// StoreResult is what the coordination store returns from one atomic
// increment-and-check round trip.
type StoreResult struct {
	Allowed      bool
	CurrentCount int64
	ResetAt      int64 // unix seconds
}

// StoreCounter is the atomic increment-and-check contract the coordination
// store must provide. A read-then-write across two round trips reintroduces
// the race this design exists to prevent.
type StoreCounter interface {
	CheckFixedWindow(ctx context.Context, key string, limit, windowSeconds int) (*StoreResult, error)
}

// EventSink receives the rate_limit_exceeded event for every blocked check.
// Implementations must never propagate failures.
type EventSink interface {
	RecordRateLimitExceeded(ctx context.Context, identifier string) bool
}

// DistributedCounter checks limits against the coordination store and falls
// back to a process-local counter whenever the store misbehaves.
type DistributedCounter struct {
	store   StoreCounter
	local   *LocalCounter
	events  EventSink
	timeout time.Duration
	logger  *zap.Logger
}

func NewDistributedCounter(store StoreCounter, events EventSink, logger *zap.Logger) *DistributedCounter {
	return &DistributedCounter{
		store:   store,
		local:   NewLocalCounter(),
		events:  events,
		timeout: 3 * time.Second,
		logger:  logger,
	}
}

// Check performs one atomic increment-and-check for the identifier. Any store
// error or empty result falls back to the local counter with identical
// arguments. Every blocked check feeds the anomaly pipeline.
func (c *DistributedCounter) Check(ctx context.Context, identifier string, limit, windowSeconds int) Result {
	result, ok := c.checkStore(ctx, identifier, limit, windowSeconds)
	if !ok {
		metrics.RateLimitFallbacks.Inc()
		result = c.local.Check(identifier, limit, windowSeconds)
	}

	if result.Allowed {
		metrics.RateLimitChecks.WithLabelValues("allowed").Inc()
	} else {
		metrics.RateLimitChecks.WithLabelValues("blocked").Inc()
		if c.events != nil {
			c.events.RecordRateLimitExceeded(ctx, identifier)
		}
	}

	return result
}

// CheckProfile checks a named profile for a caller-supplied key, namespacing
// the counter by profile so distinct operations never share windows.
func (c *DistributedCounter) CheckProfile(ctx context.Context, profile Profile, key string) Result {
	return c.Check(ctx, profile.Name+":"+key, profile.Limit, profile.WindowSeconds)
}

func (c *DistributedCounter) checkStore(ctx context.Context, identifier string, limit, windowSeconds int) (Result, bool) {
	if c.store == nil {
		return Result{}, false
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.store.CheckFixedWindow(storeCtx, identifier, limit, windowSeconds)
	if err != nil || res == nil {
		c.logger.Warn("Rate limit store unavailable, using local fallback",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return Result{}, false
	}

	remaining := int64(limit) - res.CurrentCount
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   res.Allowed,
		Limit:     limit,
		Remaining: int(remaining),
		Reset:     res.ResetAt,
		Count:     res.CurrentCount,
	}, true
}
