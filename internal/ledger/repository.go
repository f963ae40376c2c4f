package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/contracts"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/internal/workflow"
)

const uniqueSigner = "signatures_contract_signer_key"

const signatureColumns = `id, contract_id, signer_email, first_name, last_name, phone_number, date_of_birth, ssn,
	address, postal_code, city, signature_image, image_content_type, signed_at, version_signed, content_hash`

// Repository is the Postgres ledger. The signatures table rejects UPDATE and
// DELETE through a trigger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append implements Store.
func (r *Repository) Append(ctx context.Context, contractID uuid.UUID, fn AppendFunc) (*models.Signature, *models.Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := contracts.ScanContract(tx.QueryRow(ctx,
		`SELECT `+contracts.Columns+` FROM contracts WHERE id = $1 AND NOT is_template FOR UPDATE`, contractID))
	if err != nil {
		return nil, nil, err
	}
	snap := &workflow.Snapshot{Contract: c}
	if snap.Requested, err = emails(ctx, tx, `SELECT signer_email FROM signature_requests WHERE contract_id = $1`, contractID); err != nil {
		return nil, nil, err
	}
	if snap.Signed, err = emails(ctx, tx, `SELECT signer_email FROM signatures WHERE contract_id = $1`, contractID); err != nil {
		return nil, nil, err
	}
	from := c.Status

	sig, events, err := fn(snap)
	if err != nil {
		return nil, nil, err
	}

	const ins = `INSERT INTO signatures (id, contract_id, signer_email, first_name, last_name, phone_number, date_of_birth, ssn,
		address, postal_code, city, signature_image, image_content_type, signed_at, version_signed, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	d := sig.Details
	if _, err := tx.Exec(ctx, ins, sig.ID, sig.ContractID, sig.SignerEmail, d.FirstName, d.LastName, d.PhoneNumber,
		d.DateOfBirth, d.NationalID, d.Address, d.PostalCode, d.City, sig.Image, sig.ImageContentType,
		sig.SignedAt, sig.VersionSigned, sig.ContentHash); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == uniqueSigner {
			return nil, nil, ErrAlreadySigned
		}
		return nil, nil, fmt.Errorf("insert signature: %w", err)
	}

	if c.Status != from {
		if err := tx.QueryRow(ctx, `UPDATE contracts SET status = $1, updated_at = now()
			WHERE id = $2 RETURNING updated_at`, c.Status, c.ID).Scan(&c.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("update status: %w", err)
		}
	}
	for _, ev := range events {
		if err := contracts.InsertEvent(ctx, tx, ev); err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return sig, c, nil
}

func emails(ctx context.Context, tx pgx.Tx, q string, contractID uuid.UUID) ([]string, error) {
	rows, err := tx.Query(ctx, q, contractID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Get returns one signature including its image.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Signature, error) {
	s, err := scanSignature(r.pool.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return s, err
}

// RecordArchive stores where a signature image was archived. Repeats are ignored.
func (r *Repository) RecordArchive(ctx context.Context, a models.SignatureArchive) error {
	const q = `INSERT INTO signature_archives (signature_id, bucket, object_key)
		VALUES ($1, $2, $3) ON CONFLICT (signature_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, a.SignatureID, a.Bucket, a.ObjectKey); err != nil {
		return fmt.Errorf("record archive: %w", err)
	}
	return nil
}

func scanSignature(row pgx.Row) (*models.Signature, error) {
	var s models.Signature
	d := &s.Details
	err := row.Scan(&s.ID, &s.ContractID, &s.SignerEmail, &d.FirstName, &d.LastName, &d.PhoneNumber,
		&d.DateOfBirth, &d.NationalID, &d.Address, &d.PostalCode, &d.City, &s.Image, &s.ImageContentType,
		&s.SignedAt, &s.VersionSigned, &s.ContentHash)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
