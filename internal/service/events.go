package service

import (
	"context"
	"fmt"

	"security-service/internal/models"
	"security-service/internal/util"
)

// Convenience constructors assembling fully populated events from minimal
// caller arguments. Each returns the recorder's success flag and never an
// error.

// AuthFailureInput describes a failed authentication attempt.
type AuthFailureInput struct {
	TenantID  string
	UserID    string
	IPAddress string
	UserAgent string
	Reason    string
}

// RecordAuthFailure logs a failed login. Always severity warning.
func (r *Recorder) RecordAuthFailure(ctx context.Context, in AuthFailureInput) bool {
	description := in.Reason
	if description == "" {
		description = "Authentication failed"
	}

	return r.Record(ctx, &models.SecurityEvent{
		EventType:   models.EventAuthFailure,
		Severity:    models.SeverityWarning,
		ScopeKey:    models.ScopeKey(in.TenantID, in.IPAddress),
		TenantID:    optional(in.TenantID),
		UserID:      optional(in.UserID),
		IPAddress:   optional(in.IPAddress),
		UserAgent:   optional(in.UserAgent),
		Description: description,
	})
}

// BulkDataAccessInput describes a large read of tenant data.
type BulkDataAccessInput struct {
	TenantID     string
	UserID       string
	IPAddress    string
	ResourceType string
	RecordCount  int
}

// RecordBulkDataAccess logs a bulk read. Severity escalates to critical only
// beyond 1000 records; exactly 1000 stays warning.
func (r *Recorder) RecordBulkDataAccess(ctx context.Context, in BulkDataAccessInput) bool {
	severity := models.SeverityWarning
	if in.RecordCount > bulkAccessCriticalThreshold {
		severity = models.SeverityCritical
	}

	resourceType := in.ResourceType
	if resourceType == "" {
		resourceType = "transactions"
	}

	return r.Record(ctx, &models.SecurityEvent{
		EventType:    models.EventBulkDataAccess,
		Severity:     severity,
		ScopeKey:     models.ScopeKey(in.TenantID, in.IPAddress),
		TenantID:     optional(in.TenantID),
		UserID:       optional(in.UserID),
		IPAddress:    optional(in.IPAddress),
		ResourceType: optional(resourceType),
		Description:  fmt.Sprintf("Bulk data access: %d %s records", in.RecordCount, resourceType),
		Metadata:     map[string]string{"record_count": fmt.Sprintf("%d", in.RecordCount)},
	})
}

// ShareBruteForceInput describes repeated password failures on a protected
// share link.
type ShareBruteForceInput struct {
	TenantID  string
	IPAddress string
	UserAgent string
	Token     string
}

// RecordShareBruteForce logs a share-link password failure. The resource ID
// keeps the full token for correlation; the description carries only its
// first 8 characters so the secret never leaks into log pipelines.
func (r *Recorder) RecordShareBruteForce(ctx context.Context, in ShareBruteForceInput) bool {
	return r.Record(ctx, &models.SecurityEvent{
		EventType:    models.EventShareBruteForce,
		Severity:     models.SeverityWarning,
		ScopeKey:     models.ScopeKey(in.TenantID, in.IPAddress),
		TenantID:     optional(in.TenantID),
		IPAddress:    optional(in.IPAddress),
		UserAgent:    optional(in.UserAgent),
		ResourceType: optional("share_link"),
		ResourceID:   optional(in.Token),
		Description:  fmt.Sprintf("Repeated password failures on share link %s", util.TruncateSecret(in.Token, 8)),
	})
}

// DataExportInput describes a report or transaction export.
type DataExportInput struct {
	TenantID     string
	UserID       string
	IPAddress    string
	ResourceType string
	RecordCount  int
}

// RecordDataExport logs an export. Always severity info: exports are expected
// activity, audited so volume-based escalation can still catch abuse through
// bulk_data_access.
func (r *Recorder) RecordDataExport(ctx context.Context, in DataExportInput) bool {
	resourceType := in.ResourceType
	if resourceType == "" {
		resourceType = "report"
	}

	return r.Record(ctx, &models.SecurityEvent{
		EventType:    models.EventDataExport,
		Severity:     models.SeverityInfo,
		ScopeKey:     models.ScopeKey(in.TenantID, in.IPAddress),
		TenantID:     optional(in.TenantID),
		UserID:       optional(in.UserID),
		IPAddress:    optional(in.IPAddress),
		ResourceType: optional(resourceType),
		Description:  fmt.Sprintf("Data export: %d %s records", in.RecordCount, resourceType),
		Metadata:     map[string]string{"record_count": fmt.Sprintf("%d", in.RecordCount)},
	})
}

// RecordRateLimitExceeded logs a blocked rate limit check. The identifier is
// the throttled counter key and doubles as the scope key: it already names
// the actor being counted. Satisfies ratelimit.EventSink.
func (r *Recorder) RecordRateLimitExceeded(ctx context.Context, identifier string) bool {
	return r.Record(ctx, &models.SecurityEvent{
		EventType:   models.EventRateLimitExceeded,
		Severity:    models.SeverityWarning,
		ScopeKey:    identifier,
		Description: fmt.Sprintf("Rate limit exceeded for %s", identifier),
		Metadata:    map[string]string{"identifier": identifier},
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
