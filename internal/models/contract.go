package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pactline/backend/internal/content"
	"github.com/pactline/backend/internal/fingerprint"
)

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	StatusDraft   ContractStatus = "draft"
	StatusPending ContractStatus = "pending"
	StatusSigned  ContractStatus = "signed"
)

// InitialVersion is the version assigned on creation and on duplication.
const InitialVersion = 1

// Contract is the unit of agreement.
type Contract struct {
	ID             uuid.UUID          `json:"id"`
	OrganizationID *uuid.UUID         `json:"organization_id,omitempty"` // nil for system-wide templates
	CreatedBy      *uuid.UUID         `json:"created_by,omitempty"`
	Title          string             `json:"title"`
	Content        content.Content    `json:"content"`
	CurrentHash    fingerprint.Digest `json:"current_hash"`
	Status         ContractStatus     `json:"status"`
	Version        int                `json:"version"`
	IsTemplate     bool               `json:"is_template"`
	RevisionOf     *uuid.UUID         `json:"revision_of,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// IsSystemTemplate reports whether c is an unscoped template.
func (c *Contract) IsSystemTemplate() bool {
	return c.IsTemplate && c.OrganizationID == nil
}

// OwnedBy reports whether c belongs to orgID.
func (c *Contract) OwnedBy(orgID uuid.UUID) bool {
	return c.OrganizationID != nil && *c.OrganizationID == orgID
}

// ContractSummary is the list view of a contract.
type ContractSummary struct {
	ID             uuid.UUID          `json:"id"`
	OrganizationID *uuid.UUID         `json:"organization_id,omitempty"`
	Title          string             `json:"title"`
	Status         ContractStatus     `json:"status"`
	Version        int                `json:"version"`
	CurrentHash    fingerprint.Digest `json:"current_hash"`
	IsTemplate     bool               `json:"is_template"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Summary returns the list view of c.
func (c *Contract) Summary() ContractSummary {
	return ContractSummary{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		Title:          c.Title,
		Status:         c.Status,
		Version:        c.Version,
		CurrentHash:    c.CurrentHash,
		IsTemplate:     c.IsTemplate,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ContractDetail is a contract joined with its signature requests and ledger.
type ContractDetail struct {
	Contract
	Requests   []SignatureRequest `json:"signature_requests"`
	Signatures []SignatureView    `json:"signatures"`
}

// Contract event types recorded in the audit trail.
const (
	EventCreated             = "contract.created"
	EventUpdated             = "contract.updated"
	EventDuplicated          = "contract.duplicated"
	EventRevised             = "contract.revised"
	EventSignaturesRequested = "contract.signatures_requested"
	EventSigned              = "contract.signature_recorded"
	EventStatusChanged       = "contract.status_changed"
	EventIntegrityFailed     = "contract.integrity_failed"
)

// ContractEvent is an append-only audit entry.
type ContractEvent struct {
	ID         int64          `json:"id"`
	ContractID uuid.UUID      `json:"contract_id"`
	Type       string         `json:"type"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
