package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"security-service/internal/metrics"
	"security-service/internal/models"
	"security-service/internal/util"
)

// BreachStore persists breach records.
type BreachStore interface {
	Insert(ctx context.Context, record *models.BreachRecord) error
}

// BreachPublisher hands created records to the external alerting
// collaborator.
type BreachPublisher interface {
	PublishBreach(ctx context.Context, record *models.BreachRecord) error
}

// BreachTypeFor maps an event type to its regulatory breach classification.
// Total: unrecognized types fall back to unauthorized_access, the most
// conservative category.
func BreachTypeFor(eventType models.EventType) models.BreachType {
	switch eventType {
	case models.EventAuthFailure, models.EventShareBruteForce, models.EventUnauthorizedAccess:
		return models.BreachUnauthorizedAccess
	case models.EventBulkDataAccess, models.EventDataExport:
		return models.BreachUnauthorizedDisclosure
	case models.EventTokenCompromise, models.EventOAuthAnomaly, models.EventAdminEscalation:
		return models.BreachSystemCompromise
	default:
		return models.BreachUnauthorizedAccess
	}
}

// DataTypesFor maps an event type to the data categories a breach of that
// kind exposes. Total: unrecognized types report "unknown".
func DataTypesFor(eventType models.EventType) []string {
	switch eventType {
	case models.EventAuthFailure, models.EventShareBruteForce:
		return []string{"email", "credentials"}
	case models.EventBulkDataAccess, models.EventDataExport:
		return []string{"financial_transactions", "supplier_names", "addresses"}
	case models.EventTokenCompromise, models.EventOAuthAnomaly:
		return []string{"oauth_tokens", "financial_transactions"}
	case models.EventUnauthorizedAccess:
		return []string{"financial_transactions"}
	case models.EventAdminEscalation:
		return []string{"system_configuration", "user_data"}
	default:
		return []string{"unknown"}
	}
}

// BreachEscalator builds and persists the breach record classifying an
// anomaly, then hands it to the alerting collaborator. Failed escalations are
// logged, not retried.
type BreachEscalator struct {
	store     BreachStore
	publisher BreachPublisher
	logger    *zap.Logger
	timeout   time.Duration
}

func NewBreachEscalator(store BreachStore, publisher BreachPublisher, logger *zap.Logger) *BreachEscalator {
	return &BreachEscalator{
		store:     store,
		publisher: publisher,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// Escalate creates the breach record for a threshold crossing. Records from
// this path always carry detected_by = "automated", distinguishing them from
// manually filed breaches.
func (e *BreachEscalator) Escalate(ctx context.Context, event *models.SecurityEvent, eventCount uint64, threshold models.AnomalyThreshold) (*models.BreachRecord, error) {
	record := buildBreachRecord(event, eventCount, threshold)

	insertCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.store.Insert(insertCtx, record); err != nil {
		return nil, fmt.Errorf("failed to persist breach record: %w", err)
	}

	metrics.BreachesCreated.WithLabelValues(string(record.BreachType)).Inc()
	e.logger.Warn("Automated breach record created",
		util.String("breach_id", record.ID.String()),
		util.String("breach_type", string(record.BreachType)),
		util.String("event_type", string(event.EventType)),
		util.Int64("event_count", int64(eventCount)))

	e.publish(record)

	return record, nil
}

func buildBreachRecord(event *models.SecurityEvent, eventCount uint64, threshold models.AnomalyThreshold) *models.BreachRecord {
	ip := "unknown"
	if event.IPAddress != nil {
		ip = *event.IPAddress
	}
	tenant := "N/A"
	var affectedTenants []string
	if event.TenantID != nil {
		tenant = *event.TenantID
		affectedTenants = []string{tenant}
	}

	return &models.BreachRecord{
		ID:         uuid.New(),
		BreachType: BreachTypeFor(event.EventType),
		Title:      fmt.Sprintf("Automated detection: %s anomaly", event.EventType),
		Description: fmt.Sprintf(
			"Detected %d %s events within %d minutes (threshold: %d). Source IP: %s. Tenant: %s. Latest event: %s",
			eventCount, event.EventType, threshold.WindowMinutes, threshold.Count,
			ip, tenant, event.Description),
		AffectedTenantIDs: affectedTenants,
		AffectedDataTypes: DataTypesFor(event.EventType),
		DetectedBy:        models.DetectedByAutomated,
		Metadata: map[string]string{
			"event_type":     string(event.EventType),
			"event_count":    fmt.Sprintf("%d", eventCount),
			"threshold":      fmt.Sprintf("%d", threshold.Count),
			"window_minutes": fmt.Sprintf("%d", threshold.WindowMinutes),
			"scope_key":      event.ScopeKey,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// publish hands the record to the alerting topic. Best-effort: the breach is
// already durable, the alert is a courtesy.
func (e *BreachEscalator) publish(record *models.BreachRecord) {
	if e.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.publisher.PublishBreach(ctx, record); err != nil {
			e.logger.Warn("Failed to publish breach record",
				util.String("breach_id", record.ID.String()),
				util.ErrorField(err))
		}
	}()
}
