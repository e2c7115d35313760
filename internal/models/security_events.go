package models

import (
	"fmt"
	"time"
)

// EventType classifies a security event. The set is closed: every type listed
// here must carry a breach-type and data-category classification in the
// service layer, which a test enforces.
type EventType string

const (
	EventAuthFailure        EventType = "auth_failure"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventShareBruteForce    EventType = "share_brute_force"
	EventOAuthAnomaly       EventType = "oauth_anomaly"
	EventTokenCompromise    EventType = "token_compromise"
	EventBulkDataAccess     EventType = "bulk_data_access"
	EventSuspiciousIP       EventType = "suspicious_ip"
	EventDataExport         EventType = "data_export"
	EventAdminEscalation    EventType = "admin_escalation"
)

// AllEventTypes lists every known event type, for exhaustiveness checks.
var AllEventTypes = []EventType{
	EventAuthFailure,
	EventRateLimitExceeded,
	EventUnauthorizedAccess,
	EventShareBruteForce,
	EventOAuthAnomaly,
	EventTokenCompromise,
	EventBulkDataAccess,
	EventSuspiciousIP,
	EventDataExport,
	EventAdminEscalation,
}

func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity of a security event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// SecurityEvent is one immutable row in the security event stream. Optional
// attributes are pointers so the store receives explicit NULLs rather than
// empty strings.
type SecurityEvent struct {
	EventBucket  int               `json:"event_bucket"`
	EventType    EventType         `json:"event_type"`
	Severity     Severity          `json:"severity"`
	ScopeKey     string            `json:"scope_key"`
	TenantID     *string           `json:"tenant_id"`
	UserID       *string           `json:"user_id"`
	IPAddress    *string           `json:"ip_address"`
	UserAgent    *string           `json:"user_agent"`
	ResourceType *string           `json:"resource_type"`
	ResourceID   *string           `json:"resource_id"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// ScopeKey composes the "same actor" identity used for anomaly counting.
// Either side may be empty, never both.
func ScopeKey(tenantID, ipAddress string) string {
	return fmt.Sprintf("%s|%s", tenantID, ipAddress)
}
