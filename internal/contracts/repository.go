package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
)

// Repository handles contract persistence. Every org-scoped statement carries
// organization_id in its WHERE clause.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a contracts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Columns is the select list ScanContract expects.
const Columns = `id, organization_id, created_by, title, content, current_hash, status, version, is_template, revision_of, created_at, updated_at`

// ScanContract reads one row selected with Columns.
func ScanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	var raw []byte
	err := row.Scan(&c.ID, &c.OrganizationID, &c.CreatedBy, &c.Title, &raw, &c.CurrentHash,
		&c.Status, &c.Version, &c.IsTemplate, &c.RevisionOf, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.Content); err != nil {
		return nil, fmt.Errorf("decode content of %s: %w", c.ID, err)
	}
	return &c, nil
}

// Create inserts a contract and its audit events in one transaction.
func (r *Repository) Create(ctx context.Context, c *models.Contract, events ...models.ContractEvent) error {
	body, err := json.Marshal(c.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `INSERT INTO contracts (id, organization_id, created_by, title, content, current_hash, status, version, is_template, revision_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, q, c.ID, c.OrganizationID, c.CreatedBy, c.Title, body, c.CurrentHash,
		c.Status, c.Version, c.IsTemplate, c.RevisionOf).Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	for _, ev := range events {
		if err := InsertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get returns a contract owned by orgID.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Contract, error) {
	q := `SELECT ` + Columns + ` FROM contracts WHERE id = $1 AND organization_id = $2`
	return ScanContract(r.pool.QueryRow(ctx, q, id, orgID))
}

// GetTemplate returns a template visible to orgID: system-wide or the org's own.
func (r *Repository) GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*models.Contract, error) {
	q := `SELECT ` + Columns + ` FROM contracts
		WHERE id = $1 AND is_template AND (organization_id IS NULL OR organization_id = $2)`
	return ScanContract(r.pool.QueryRow(ctx, q, id, orgID))
}

// List returns contract summaries. Non-templates are confined to orgID;
// templates are the union of system-wide and orgID's own.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, isTemplate bool) ([]models.ContractSummary, error) {
	const cols = `id, organization_id, title, status, version, current_hash, is_template, created_at, updated_at`
	var (
		rows pgx.Rows
		err  error
	)
	if isTemplate {
		rows, err = r.pool.Query(ctx, `SELECT `+cols+` FROM contracts
			WHERE is_template AND (organization_id IS NULL OR organization_id = $1)
			ORDER BY organization_id NULLS FIRST, title`, orgID)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+cols+` FROM contracts
			WHERE NOT is_template AND organization_id = $1
			ORDER BY updated_at DESC`, orgID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ContractSummary{}
	for rows.Next() {
		var s models.ContractSummary
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Title, &s.Status, &s.Version, &s.CurrentHash,
			&s.IsTemplate, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Mutate locks the contract row, lets fn modify it and persists the result.
// The UPDATE re-checks the version read under the lock.
func (r *Repository) Mutate(ctx context.Context, orgID, id uuid.UUID, fn MutateFunc) (*models.Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `SELECT ` + Columns + ` FROM contracts WHERE id = $1 AND organization_id = $2 FOR UPDATE`
	c, err := ScanContract(tx.QueryRow(ctx, q, id, orgID))
	if err != nil {
		return nil, err
	}
	readVersion := c.Version

	ev, err := fn(c)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(c.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	const upd = `UPDATE contracts
		SET title = $1, content = $2, current_hash = $3, version = $4, is_template = $5, status = $6, updated_at = now()
		WHERE id = $7 AND organization_id = $8 AND version = $9
		RETURNING updated_at`
	err = tx.QueryRow(ctx, upd, c.Title, body, c.CurrentHash, c.Version, c.IsTemplate, c.Status,
		id, orgID, readVersion).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("contract was modified concurrently")
		}
		return nil, fmt.Errorf("update contract: %w", err)
	}
	if ev != nil {
		if err := InsertEvent(ctx, tx, *ev); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// Detail returns a contract owned by orgID with its requests and signatures.
func (r *Repository) Detail(ctx context.Context, orgID, id uuid.UUID) (*models.ContractDetail, error) {
	c, err := r.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	d := &models.ContractDetail{Contract: *c, Requests: []models.SignatureRequest{}, Signatures: []models.SignatureView{}}

	rows, err := r.pool.Query(ctx, `SELECT contract_id, signer_email, created_at
		FROM signature_requests WHERE contract_id = $1 ORDER BY created_at, signer_email`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sr models.SignatureRequest
		if err := rows.Scan(&sr.ContractID, &sr.SignerEmail, &sr.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		d.Requests = append(d.Requests, sr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, signer_email, first_name, last_name, city, signed_at, version_signed, content_hash
		FROM signatures WHERE contract_id = $1 ORDER BY signed_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s models.SignatureView
		if err := rows.Scan(&s.ID, &s.SignerEmail, &s.FirstName, &s.LastName, &s.City, &s.SignedAt,
			&s.VersionSigned, &s.ContentHash); err != nil {
			return nil, err
		}
		d.Signatures = append(d.Signatures, s)
	}
	return d, rows.Err()
}

// Events returns the audit trail of a contract owned by orgID, oldest first.
func (r *Repository) Events(ctx context.Context, orgID, id uuid.UUID) ([]models.ContractEvent, error) {
	const q = `SELECT e.id, e.contract_id, e.type, e.actor, e.payload, e.occurred_at
		FROM contract_events e
		INNER JOIN contracts c ON c.id = e.contract_id
		WHERE e.contract_id = $1 AND c.organization_id = $2
		ORDER BY e.id`
	rows, err := r.pool.Query(ctx, q, id, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ContractEvent{}
	for rows.Next() {
		var ev models.ContractEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.ContractID, &ev.Type, &ev.Actor, &payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// AppendEvent records an audit event outside any other write.
func (r *Repository) AppendEvent(ctx context.Context, ev models.ContractEvent) error {
	return InsertEvent(ctx, r.pool, ev)
}
