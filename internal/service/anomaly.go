package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"go.uber.org/zap"

	"security-service/internal/metrics"
	"security-service/internal/models"
	"security-service/internal/util"
)

// anomalyThresholds maps each escalating event type to its trigger. Types
// absent here (suspicious_ip, data_export, admin_escalation) are
// informational and never auto-escalate.
var anomalyThresholds = map[models.EventType]models.AnomalyThreshold{
	models.EventAuthFailure:        {Count: 10, WindowMinutes: 15},
	models.EventRateLimitExceeded:  {Count: 20, WindowMinutes: 60},
	models.EventUnauthorizedAccess: {Count: 5, WindowMinutes: 30},
	models.EventShareBruteForce:    {Count: 5, WindowMinutes: 10},
	models.EventOAuthAnomaly:       {Count: 3, WindowMinutes: 60},
	models.EventTokenCompromise:    {Count: 1, WindowMinutes: 1},
	models.EventBulkDataAccess:     {Count: 3, WindowMinutes: 60},
}

// ThresholdFor returns the escalation threshold for an event type, if any.
func ThresholdFor(eventType models.EventType) (models.AnomalyThreshold, bool) {
	threshold, ok := anomalyThresholds[eventType]
	return threshold, ok
}

// EventCounter serves windowed same-type event counts per scope.
type EventCounter interface {
	CountSince(ctx context.Context, eventType models.EventType, scopeKey string, since time.Time) (uint64, error)
}

// WindowClaimer claims the single automated escalation slot for a window.
// Best-effort: an error never suppresses escalation.
type WindowClaimer interface {
	ClaimBreachWindow(ctx context.Context, eventType models.EventType, scopeKey string, windowStart int64, ttl time.Duration) (bool, error)
}

// Escalator turns a threshold crossing into a breach record.
type Escalator interface {
	Escalate(ctx context.Context, event *models.SecurityEvent, eventCount uint64, threshold models.AnomalyThreshold) (*models.BreachRecord, error)
}

// AnomalyEvaluator compares recent matching-event counts against the
// per-type thresholds and escalates crossings. All failures end here; nothing
// propagates to the request that recorded the triggering event.
type AnomalyEvaluator struct {
	counter   EventCounter
	claims    WindowClaimer
	escalator Escalator
	logger    *zap.Logger

	// Collapses concurrent in-process evaluations of one (type, scope).
	group singleflight.Group
}

func NewAnomalyEvaluator(counter EventCounter, claims WindowClaimer, escalator Escalator, logger *zap.Logger) *AnomalyEvaluator {
	return &AnomalyEvaluator{
		counter:   counter,
		claims:    claims,
		escalator: escalator,
		logger:    logger,
	}
}

// Evaluate checks whether the scope's recent events of this type crossed the
// threshold, escalating at most once per call. Satisfies AnomalyDispatcher.
func (a *AnomalyEvaluator) Evaluate(ctx context.Context, eventType models.EventType, scopeKey string, event *models.SecurityEvent) {
	threshold, ok := ThresholdFor(eventType)
	if !ok {
		metrics.AnomalyEvaluations.WithLabelValues("skipped").Inc()
		return
	}

	flightKey := string(eventType) + "|" + scopeKey
	_, _, _ = a.group.Do(flightKey, func() (interface{}, error) {
		a.evaluateLocked(ctx, eventType, scopeKey, event, threshold)
		return nil, nil
	})
}

func (a *AnomalyEvaluator) evaluateLocked(ctx context.Context, eventType models.EventType, scopeKey string, event *models.SecurityEvent, threshold models.AnomalyThreshold) {
	since := time.Now().UTC().Add(-threshold.Window())

	count, err := a.counter.CountSince(ctx, eventType, scopeKey, since)
	if err != nil {
		a.logger.Warn("Anomaly evaluation skipped, event store unavailable",
			util.String("event_type", string(eventType)),
			util.String("scope_key", scopeKey),
			util.ErrorField(err))
		metrics.AnomalyEvaluations.WithLabelValues("failed").Inc()
		return
	}

	if count < uint64(threshold.Count) {
		metrics.AnomalyEvaluations.WithLabelValues("below_threshold").Inc()
		return
	}

	if !a.claimWindow(ctx, eventType, scopeKey, threshold) {
		metrics.AnomalyEvaluations.WithLabelValues("deduplicated").Inc()
		return
	}

	if _, err := a.escalator.Escalate(ctx, event, count, threshold); err != nil {
		a.logger.Error("Breach escalation failed",
			util.String("event_type", string(eventType)),
			util.String("scope_key", scopeKey),
			util.Int64("event_count", int64(count)),
			util.ErrorField(err))
		metrics.AnomalyEvaluations.WithLabelValues("failed").Inc()
		return
	}

	metrics.AnomalyEvaluations.WithLabelValues("escalated").Inc()
}

// claimWindow suppresses duplicate escalations for the same threshold window
// across processes. Claims are advisory: if the claim store is down or
// absent, escalation proceeds, since at-least-once beats a missed regulatory
// record.
func (a *AnomalyEvaluator) claimWindow(ctx context.Context, eventType models.EventType, scopeKey string, threshold models.AnomalyThreshold) bool {
	if a.claims == nil {
		return true
	}

	windowStart := time.Now().UTC().Truncate(threshold.Window()).Unix()
	claimed, err := a.claims.ClaimBreachWindow(ctx, eventType, scopeKey, windowStart, threshold.Window())
	if err != nil {
		a.logger.Warn("Breach window claim unavailable, escalating anyway",
			util.String("event_type", string(eventType)),
			util.String("scope_key", scopeKey),
			util.ErrorField(err))
		return true
	}
	if !claimed {
		a.logger.Debug("Breach window already claimed",
			util.String("event_type", string(eventType)),
			util.String("scope_key", scopeKey),
			util.String("window", fmt.Sprintf("%d", windowStart)))
	}
	return claimed
}
