package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"security-service/internal/client"
	"security-service/internal/models"
	"security-service/internal/util"
)

// EventRepository persists the append-only security event stream and serves
// the windowed counts the anomaly evaluator needs.
//
// Expected table:
//
//	CREATE TABLE security_events (
//	    event_bucket  UInt16,
//	    event_type    LowCardinality(String),
//	    severity      LowCardinality(String),
//	    scope_key     String,
//	    tenant_id     Nullable(String),
//	    user_id       Nullable(String),
//	    ip_address    Nullable(String),
//	    user_agent    Nullable(String),
//	    resource_type Nullable(String),
//	    resource_id   Nullable(String),
//	    description   String,
//	    metadata      Map(String, String),
//	    recorded_at   DateTime64(3, 'UTC')
//	) ENGINE = MergeTree
//	PARTITION BY toYYYYMM(recorded_at)
//	ORDER BY (event_type, scope_key, recorded_at)
type EventRepository struct {
	client *client.ClickHouseClient
	logger *zap.Logger
}

func NewEventRepository(client *client.ClickHouseClient, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		client: client,
		logger: logger,
	}
}

const insertEventQuery = `
    INSERT INTO security_events (
        event_bucket, event_type, severity, scope_key,
        tenant_id, user_id, ip_address, user_agent,
        resource_type, resource_id, description, metadata, recorded_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert writes one event row.
func (r *EventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	err := r.client.Exec(ctx, insertEventQuery,
		uint16(event.EventBucket),
		string(event.EventType),
		string(event.Severity),
		event.ScopeKey,
		event.TenantID,
		event.UserID,
		event.IPAddress,
		event.UserAgent,
		event.ResourceType,
		event.ResourceID,
		event.Description,
		event.Metadata,
		event.RecordedAt,
	)
	if err != nil {
		util.Error("Failed to insert security event",
			zap.String("event_type", string(event.EventType)),
			zap.String("scope_key", event.ScopeKey),
			zap.Error(err))
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}

// CountSince returns how many events of one type were recorded for a scope
// after the given instant. Satisfies service.EventCounter.
func (r *EventRepository) CountSince(ctx context.Context, eventType models.EventType, scopeKey string, since time.Time) (uint64, error) {
	var count uint64
	row := r.client.QueryRow(ctx, `
        SELECT count()
        FROM security_events
        WHERE event_type = ? AND scope_key = ? AND recorded_at >= ?`,
		string(eventType), scopeKey, since)

	if err := row.Scan(&count); err != nil {
		util.Error("Failed to count security events",
			zap.String("event_type", string(eventType)),
			zap.String("scope_key", scopeKey),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}

	return count, nil
}
