// Package organizations resolves the tenancy scope of a caller and provisions
// personal organizations for new accounts.
package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
)

// Store is the persistence the gate needs.
type Store interface {
	FindForUser(ctx context.Context, userID uuid.UUID) (*models.Organization, error)
	EnsureForUser(ctx context.Context, userID uuid.UUID, name string) (*models.Organization, bool, error)
}

// Gate resolves and provisions organization scope.
type Gate struct {
	store  Store
	logger *zap.Logger
}

// NewGate creates a Gate.
func NewGate(store Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, logger: logger}
}

// EnsureOrganization is the idempotent provisioning command run at account
// creation and login. It is never called from a read path.
func (g *Gate) EnsureOrganization(ctx context.Context, userID uuid.UUID, displayName string) (*models.Organization, error) {
	if userID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "Personal"
	}
	org, created, err := g.store.EnsureForUser(ctx, userID, name+"'s organization")
	if err != nil {
		g.logger.Error("ensure organization", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("ensure organization: %w", err)
	}
	if created {
		g.logger.Info("organization provisioned",
			zap.String("user_id", userID.String()),
			zap.String("organization_id", org.ID.String()),
		)
	}
	return org, nil
}

// Resolve builds the OperationContext for an authenticated user. A user
// without an organization resolves to an empty scope rather than an error.
func (g *Gate) Resolve(ctx context.Context, userID uuid.UUID, email string) (models.OperationContext, error) {
	if userID == uuid.Nil {
		return models.OperationContext{}, apperr.ErrUnauthorized
	}
	op := models.OperationContext{ActorID: userID, ActorEmail: strings.ToLower(email)}
	org, err := g.store.FindForUser(ctx, userID)
	switch {
	case err == nil:
		op.OrganizationID = org.ID
	case errors.Is(err, apperr.ErrNotFound):
		g.logger.Warn("user has no organization", zap.String("user_id", userID.String()))
	default:
		return models.OperationContext{}, fmt.Errorf("resolve organization: %w", err)
	}
	return op, nil
}

// Current returns the organization in op's scope.
func (g *Gate) Current(ctx context.Context, op models.OperationContext) (*models.Organization, error) {
	if !op.HasOrganization() {
		return nil, apperr.ErrNotFound
	}
	return g.store.FindForUser(ctx, op.ActorID)
}
