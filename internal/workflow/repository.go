package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pactline/backend/internal/contracts"
	"github.com/pactline/backend/internal/models"
)

// Repository persists signature requests and status transitions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a workflow repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OpenForSignature implements Store.
func (r *Repository) OpenForSignature(ctx context.Context, orgID, id uuid.UUID, emails []string, fn OpenFunc) (*models.Contract, []string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := contracts.ScanContract(tx.QueryRow(ctx,
		`SELECT `+contracts.Columns+` FROM contracts WHERE id = $1 AND organization_id = $2 FOR UPDATE`, id, orgID))
	if err != nil {
		return nil, nil, err
	}

	ev, err := fn(c)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, `INSERT INTO signature_requests (contract_id, signer_email)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (contract_id, signer_email) DO NOTHING
		RETURNING signer_email`, id, emails)
	if err != nil {
		return nil, nil, fmt.Errorf("insert signature requests: %w", err)
	}
	added := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			rows.Close()
			return nil, nil, err
		}
		added = append(added, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.QueryRow(ctx, `UPDATE contracts SET status = $1, updated_at = now()
		WHERE id = $2 AND organization_id = $3 RETURNING updated_at`, c.Status, id, orgID).Scan(&c.UpdatedAt); err != nil {
		return nil, nil, fmt.Errorf("update status: %w", err)
	}
	if ev != nil {
		if err := contracts.InsertEvent(ctx, tx, *ev); err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return c, added, nil
}
