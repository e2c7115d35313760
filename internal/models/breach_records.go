package models

import (
	"time"

	"github.com/google/uuid"
)

// BreachType is the regulatory classification of a breach record.
type BreachType string

const (
	BreachUnauthorizedAccess     BreachType = "unauthorized_access"
	BreachUnauthorizedDisclosure BreachType = "unauthorized_disclosure"
	BreachSystemCompromise       BreachType = "system_compromise"
	BreachLossOfData             BreachType = "loss_of_data"
)

const (
	DetectedByAutomated = "automated"
	DetectedByManual    = "manual"
)

// BreachRecord is a structured, regulatory-notifiable incident record,
// distinct from the raw security-event stream. Records created through the
// anomaly pipeline always carry DetectedBy = "automated".
type BreachRecord struct {
	ID                uuid.UUID         `json:"id"`
	BreachType        BreachType        `json:"breach_type"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	AffectedTenantIDs []string          `json:"affected_tenant_ids"`
	AffectedDataTypes []string          `json:"affected_data_types"`
	DetectedBy        string            `json:"detected_by"`
	Metadata          map[string]string `json:"metadata"`
	CreatedAt         time.Time         `json:"created_at"`
}
