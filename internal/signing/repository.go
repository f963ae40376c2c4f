package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/contracts"
	"github.com/pactline/backend/internal/models"
)

// Repository handles signer authorization lookups and signing tokens.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a signing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SignerFacts implements Store.
func (r *Repository) SignerFacts(ctx context.Context, contractID uuid.UUID, email string) (*SignerFacts, error) {
	const q = `SELECT c.status,
			EXISTS (SELECT 1 FROM signature_requests sr WHERE sr.contract_id = c.id AND sr.signer_email = $2),
			COALESCE(u.email, ''),
			EXISTS (SELECT 1 FROM organization_users ou WHERE ou.organization_id = c.organization_id AND ou.user_id = c.created_by)
		FROM contracts c
		LEFT JOIN users u ON u.id = c.created_by
		WHERE c.id = $1 AND NOT c.is_template AND c.organization_id IS NOT NULL`
	var f SignerFacts
	err := r.pool.QueryRow(ctx, q, contractID, email).Scan(&f.Status, &f.Invited, &f.CreatorEmail, &f.CreatorIsMember)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// IssueToken implements Store.
func (r *Repository) IssueToken(ctx context.Context, tok *models.SigningToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const supersede = `UPDATE signing_tokens SET superseded_at = now()
		WHERE contract_id = $1 AND email = $2 AND consumed_at IS NULL AND superseded_at IS NULL`
	if _, err := tx.Exec(ctx, supersede, tok.ContractID, tok.Email); err != nil {
		return fmt.Errorf("supersede tokens: %w", err)
	}
	const ins = `INSERT INTO signing_tokens (id, contract_id, email, token_hash, return_path, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	if err := tx.QueryRow(ctx, ins, tok.ID, tok.ContractID, tok.Email, tok.TokenHash, tok.ReturnPath, tok.ExpiresAt).
		Scan(&tok.CreatedAt); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return tx.Commit(ctx)
}

const tokenColumns = `id, contract_id, email, token_hash, return_path, expires_at, consumed_at, superseded_at, created_at`

func scanToken(row pgx.Row) (*models.SigningToken, error) {
	var t models.SigningToken
	err := row.Scan(&t.ID, &t.ContractID, &t.Email, &t.TokenHash, &t.ReturnPath, &t.ExpiresAt,
		&t.ConsumedAt, &t.SupersededAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ConsumeToken implements Store. The single UPDATE makes redemption race-free.
func (r *Repository) ConsumeToken(ctx context.Context, tokenHash string, now time.Time) (*models.SigningToken, error) {
	q := `UPDATE signing_tokens SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND superseded_at IS NULL AND expires_at > $2
		RETURNING ` + tokenColumns
	return scanToken(r.pool.QueryRow(ctx, q, tokenHash, now))
}

// FindToken implements Store.
func (r *Repository) FindToken(ctx context.Context, tokenHash string) (*models.SigningToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM signing_tokens WHERE token_hash = $1`
	return scanToken(r.pool.QueryRow(ctx, q, tokenHash))
}

// SigningView implements Store. It is only reached after Authorize.
func (r *Repository) SigningView(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	q := `SELECT ` + contracts.Columns + ` FROM contracts WHERE id = $1 AND NOT is_template`
	return contracts.ScanContract(r.pool.QueryRow(ctx, q, contractID))
}

// HasSigned implements Store.
func (r *Repository) HasSigned(ctx context.Context, contractID uuid.UUID, email string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM signatures WHERE contract_id = $1 AND signer_email = $2)`,
		contractID, email).Scan(&ok)
	return ok, err
}
