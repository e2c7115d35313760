package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"security-service/internal/bucketing"
	"security-service/internal/models"
	"security-service/internal/util"
)

// BreachRepository stores regulatory breach records.
//
// Expected table:
//
//	CREATE TABLE security_breaches (
//	    date_bucket         text,
//	    created_at          timestamp,
//	    id                  uuid,
//	    breach_type         text,
//	    title               text,
//	    description         text,
//	    affected_tenant_ids set<text>,
//	    affected_data_types set<text>,
//	    detected_by         text,
//	    metadata            map<text, text>,
//	    PRIMARY KEY (date_bucket, created_at, id)
//	) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)
type BreachRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
	logger  *zap.Logger
}

func NewBreachRepository(client *ScyllaClient, buckets *bucketing.Manager, logger *zap.Logger) *BreachRepository {
	return &BreachRepository{
		client:  client,
		buckets: buckets,
		logger:  logger,
	}
}

// Insert writes one breach record. Satisfies service.BreachStore.
func (r *BreachRepository) Insert(ctx context.Context, record *models.BreachRecord) error {
	query := r.client.Prepared.CreateBreach.WithContext(ctx).Bind(
		r.buckets.DateBucket(record.CreatedAt),
		record.CreatedAt,
		gocql.UUID(record.ID),
		string(record.BreachType),
		record.Title,
		record.Description,
		record.AffectedTenantIDs,
		record.AffectedDataTypes,
		record.DetectedBy,
		record.Metadata,
	)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to insert breach record",
			zap.String("breach_id", record.ID.String()),
			zap.String("breach_type", string(record.BreachType)),
			zap.Error(err))
		return fmt.Errorf("failed to insert breach record: %w", err)
	}

	return nil
}

// RecentForDate returns breach records for one UTC date partition, newest
// first.
func (r *BreachRepository) RecentForDate(ctx context.Context, dateBucket string, limit int) ([]*models.BreachRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	iter := r.client.Prepared.GetRecentBreaches.WithContext(ctx).
		Bind(dateBucket, limit).Iter()

	var records []*models.BreachRecord
	for {
		record := &models.BreachRecord{}
		var bucket string
		var breachType string
		var id gocql.UUID
		if !iter.Scan(&bucket, &record.CreatedAt, &id, &breachType,
			&record.Title, &record.Description,
			&record.AffectedTenantIDs, &record.AffectedDataTypes,
			&record.DetectedBy, &record.Metadata) {
			break
		}
		record.ID = uuid.UUID(id)
		record.BreachType = models.BreachType(breachType)
		records = append(records, record)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to query recent breaches: %w", err)
	}

	return records, nil
}
