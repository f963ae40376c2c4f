package organizations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
)

// Repository handles organization and organization_user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// membership prefers the oldest owner row so a user with several memberships
// always resolves to the same scope.
const selectForUser = `SELECT o.id, o.name, o.plan_tier, o.created_at, o.updated_at
	FROM organizations o
	INNER JOIN organization_users ou ON ou.organization_id = o.id
	WHERE ou.user_id = $1
	ORDER BY (ou.role = 'owner') DESC, ou.created_at ASC
	LIMIT 1`

// FindForUser returns the organization the user acts in.
func (r *Repository) FindForUser(ctx context.Context, userID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := r.pool.QueryRow(ctx, selectForUser, userID).
		Scan(&org.ID, &org.Name, &org.PlanTier, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// EnsureForUser returns the user's organization, creating it together with an
// owner membership if none exists. A per-user advisory lock serializes
// concurrent first logins.
func (r *Repository) EnsureForUser(ctx context.Context, userID uuid.UUID, name string) (*models.Organization, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "org:"+userID.String()); err != nil {
		return nil, false, fmt.Errorf("lock: %w", err)
	}

	var org models.Organization
	err = tx.QueryRow(ctx, selectForUser, userID).
		Scan(&org.ID, &org.Name, &org.PlanTier, &org.CreatedAt, &org.UpdatedAt)
	if err == nil {
		return &org, false, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	const insertOrg = `INSERT INTO organizations (name, plan_tier)
		VALUES ($1, $2)
		RETURNING id, name, plan_tier, created_at, updated_at`
	if err := tx.QueryRow(ctx, insertOrg, name, models.PlanFree).
		Scan(&org.ID, &org.Name, &org.PlanTier, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("insert organization: %w", err)
	}
	const insertMember = `INSERT INTO organization_users (organization_id, user_id, role) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, insertMember, org.ID, userID, models.OrgRoleOwner); err != nil {
		return nil, false, fmt.Errorf("insert membership: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return &org, true, nil
}
