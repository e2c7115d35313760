package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"security-service/internal/bucketing"
	"security-service/internal/metrics"
	"security-service/internal/models"
	"security-service/internal/util"
)

const bulkAccessCriticalThreshold = 1000

// EventStore persists security events.
type EventStore interface {
	Insert(ctx context.Context, event *models.SecurityEvent) error
}

// EventIndexer mirrors events into the investigation search index.
type EventIndexer interface {
	IndexEvent(ctx context.Context, event *models.SecurityEvent) error
}

// AnomalyDispatcher receives the post-insert evaluation trigger.
type AnomalyDispatcher interface {
	Evaluate(ctx context.Context, eventType models.EventType, scopeKey string, event *models.SecurityEvent)
}

// Recorder normalizes and persists security events. It never propagates a
// failure to its caller: audit visibility degrades silently rather than
// breaking the operation that triggered the event.
type Recorder struct {
	store     EventStore
	indexer   EventIndexer
	evaluator AnomalyDispatcher
	buckets   *bucketing.Manager
	logger    *zap.Logger
	timeout   time.Duration
}

func NewRecorder(store EventStore, indexer EventIndexer, evaluator AnomalyDispatcher, buckets *bucketing.Manager, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:     store,
		indexer:   indexer,
		evaluator: evaluator,
		buckets:   buckets,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// Record persists one event, reporting success. On success the anomaly
// evaluation for (eventType, scopeKey) is dispatched off the caller's path.
func (r *Recorder) Record(ctx context.Context, event *models.SecurityEvent) bool {
	if event == nil {
		return false
	}
	if err := r.normalize(event); err != nil {
		r.logger.Error("Rejecting malformed security event", util.ErrorField(err))
		metrics.EventRecordFailures.Inc()
		return false
	}

	insertCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.Insert(insertCtx, event); err != nil {
		r.logger.Error("Failed to record security event",
			util.String("event_type", string(event.EventType)),
			util.String("scope_key", event.ScopeKey),
			util.ErrorField(err))
		metrics.EventRecordFailures.Inc()
		return false
	}

	metrics.EventsRecorded.WithLabelValues(string(event.EventType), string(event.Severity)).Inc()

	r.dispatchIndex(event)
	r.dispatchEvaluation(event)

	return true
}

func (r *Recorder) normalize(event *models.SecurityEvent) error {
	if !event.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
	if !event.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", event.Severity)
	}
	if event.ScopeKey == "" {
		return fmt.Errorf("scope key is required")
	}

	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	event.EventBucket = r.buckets.EventBucket(event.ScopeKey)

	// Empty optional strings become explicit NULLs, never empty values.
	for _, field := range []**string{
		&event.TenantID, &event.UserID, &event.IPAddress,
		&event.UserAgent, &event.ResourceType, &event.ResourceID,
	} {
		if *field != nil && **field == "" {
			*field = nil
		}
	}

	return nil
}

// dispatchIndex mirrors the event into the search index without waiting.
func (r *Recorder) dispatchIndex(event *models.SecurityEvent) {
	if r.indexer == nil {
		return
	}
	go func() {
		defer r.recoverPanic("event indexing")
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.indexer.IndexEvent(ctx, event); err != nil {
			r.logger.Warn("Failed to index security event",
				util.String("event_type", string(event.EventType)),
				util.ErrorField(err))
		}
	}()
}

// dispatchEvaluation fires the anomaly check so its latency never lands on
// the triggering request.
func (r *Recorder) dispatchEvaluation(event *models.SecurityEvent) {
	if r.evaluator == nil {
		return
	}
	go func() {
		defer r.recoverPanic("anomaly evaluation")
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.evaluator.Evaluate(ctx, event.EventType, event.ScopeKey, event)
	}()
}

func (r *Recorder) recoverPanic(operation string) {
	if rec := recover(); rec != nil {
		r.logger.Error("Recovered panic in background dispatch",
			util.String("operation", operation),
			util.Any("panic", rec))
	}
}
