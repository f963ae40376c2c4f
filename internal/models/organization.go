package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanFree is the plan tier assigned to self-provisioned organizations.
const PlanFree = "free"

// Organization is the tenancy boundary that owns contracts.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	PlanTier  string    `json:"plan_tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrganizationUserRole is the role of a user in an organization.
const (
	OrgRoleOwner  = "owner"
	OrgRoleMember = "member"
)

// OrganizationUser links a user to an organization with a role.
type OrganizationUser struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// OperationContext is the caller identity resolved once at the request boundary
// and passed explicitly into every core operation.
type OperationContext struct {
	ActorID        uuid.UUID
	ActorEmail     string
	OrganizationID uuid.UUID
}

// HasOrganization reports whether the caller resolved to an organization scope.
func (o OperationContext) HasOrganization() bool {
	return o.OrganizationID != uuid.Nil
}
