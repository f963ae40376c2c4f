package emaillogs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pactline/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log row and fills in its id and created_at.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (contract_id, recipient_email, email_type, subject, status, attempt)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, el.ContractID, el.RecipientEmail, el.EmailType, el.Subject,
		el.Status, el.Attempt).Scan(&el.ID, &el.CreatedAt); err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = $1, sent_at = now(), error_message = NULL WHERE id = $2`,
		models.EmailLogStatusSent, id)
	return err
}

// MarkFailed records a failed delivery attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = $1, error_message = $2 WHERE id = $3`,
		models.EmailLogStatusFailed, reason, id)
	return err
}

// ListByContract returns email logs for a contract, newest first.
func (r *Repository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, contract_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at
		FROM email_logs
		WHERE contract_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var errMsg *string
		if err := rows.Scan(&el.ID, &el.ContractID, &el.EmailType, &el.RecipientEmail, &el.Subject, &el.Status,
			&el.Attempt, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
