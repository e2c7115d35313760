package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"security-service/internal/models"
)

type fakeCounter struct {
	mu    sync.Mutex
	count uint64
	err   error
	calls int
}

func (c *fakeCounter) CountSince(ctx context.Context, eventType models.EventType, scopeKey string, since time.Time) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.count, c.err
}

type fakeClaimer struct {
	claimed bool
	err     error
	calls   int
}

func (c *fakeClaimer) ClaimBreachWindow(ctx context.Context, eventType models.EventType, scopeKey string, windowStart int64, ttl time.Duration) (bool, error) {
	c.calls++
	return c.claimed, c.err
}

type fakeEscalator struct {
	mu          sync.Mutex
	escalations []uint64
	err         error
}

func (e *fakeEscalator) Escalate(ctx context.Context, event *models.SecurityEvent, eventCount uint64, threshold models.AnomalyThreshold) (*models.BreachRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.escalations = append(e.escalations, eventCount)
	return &models.BreachRecord{}, nil
}

func (e *fakeEscalator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.escalations)
}

func testEvent(eventType models.EventType) *models.SecurityEvent {
	return &models.SecurityEvent{
		EventType:   eventType,
		Severity:    models.SeverityWarning,
		ScopeKey:    "tenant-1|10.0.0.1",
		Description: "test",
	}
}

func TestThresholdTable(t *testing.T) {
	cases := []struct {
		eventType models.EventType
		count     int64
		minutes   int
	}{
		{models.EventAuthFailure, 10, 15},
		{models.EventRateLimitExceeded, 20, 60},
		{models.EventUnauthorizedAccess, 5, 30},
		{models.EventShareBruteForce, 5, 10},
		{models.EventOAuthAnomaly, 3, 60},
		{models.EventTokenCompromise, 1, 1},
		{models.EventBulkDataAccess, 3, 60},
	}

	for _, tc := range cases {
		threshold, ok := ThresholdFor(tc.eventType)
		require.True(t, ok, "%s should have a threshold", tc.eventType)
		assert.Equal(t, tc.count, threshold.Count)
		assert.Equal(t, tc.minutes, threshold.WindowMinutes)
	}

	for _, eventType := range []models.EventType{models.EventSuspiciousIP, models.EventDataExport, models.EventAdminEscalation} {
		_, ok := ThresholdFor(eventType)
		assert.False(t, ok, "%s should never auto-escalate", eventType)
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	counter := &fakeCounter{count: 9}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, nil, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventAuthFailure, "tenant-1|10.0.0.1", testEvent(models.EventAuthFailure))

	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, 0, escalator.count())
}

func TestEvaluateAtThresholdEscalates(t *testing.T) {
	counter := &fakeCounter{count: 10}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, nil, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventAuthFailure, "tenant-1|10.0.0.1", testEvent(models.EventAuthFailure))

	require.Equal(t, 1, escalator.count())
	assert.Equal(t, uint64(10), escalator.escalations[0])
}

func TestEvaluateTokenCompromiseSingleEvent(t *testing.T) {
	counter := &fakeCounter{count: 1}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, nil, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventTokenCompromise, "tenant-1|10.0.0.1", testEvent(models.EventTokenCompromise))

	assert.Equal(t, 1, escalator.count())
}

func TestEvaluateSkipsNonThresholdedTypes(t *testing.T) {
	counter := &fakeCounter{count: 1_000_000}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, nil, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventDataExport, "tenant-1|10.0.0.1", testEvent(models.EventDataExport))

	assert.Equal(t, 0, counter.calls, "informational types should not even be counted")
	assert.Equal(t, 0, escalator.count())
}

func TestEvaluateCounterErrorSkipsEscalation(t *testing.T) {
	counter := &fakeCounter{err: errors.New("store down")}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, nil, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventAuthFailure, "tenant-1|10.0.0.1", testEvent(models.EventAuthFailure))

	assert.Equal(t, 0, escalator.count())
}

func TestEvaluateDeduplicatesClaimedWindows(t *testing.T) {
	counter := &fakeCounter{count: 10}
	claims := &fakeClaimer{claimed: false}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, claims, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventAuthFailure, "tenant-1|10.0.0.1", testEvent(models.EventAuthFailure))

	assert.Equal(t, 1, claims.calls)
	assert.Equal(t, 0, escalator.count(), "an already-claimed window suppresses the duplicate breach")
}

func TestEvaluateClaimErrorEscalatesAnyway(t *testing.T) {
	counter := &fakeCounter{count: 10}
	claims := &fakeClaimer{err: errors.New("claim store down")}
	escalator := &fakeEscalator{}
	e := NewAnomalyEvaluator(counter, claims, escalator, zap.NewNop())

	e.Evaluate(context.Background(), models.EventAuthFailure, "tenant-1|10.0.0.1", testEvent(models.EventAuthFailure))

	assert.Equal(t, 1, escalator.count(), "a broken claim store must not suppress the breach record")
}

func TestEvaluateEscalationFailureIsContained(t *testing.T) {
	counter := &fakeCounter{count: 10}
	escalator := &fakeEscalator{err: errors.New("insert failed")}
	e := NewAnomalyEvaluator(counter, nil, escalator, zap.NewNop())

	// Must not panic or propagate.
	e.Evaluate(context.Background(), models.EventAuthFailure, "tenant-1|10.0.0.1", testEvent(models.EventAuthFailure))
}
