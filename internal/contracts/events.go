package contracts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pactline/backend/internal/models"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertEvent appends an audit row. Callers pass their transaction so the
// event commits or rolls back with the change it describes.
func InsertEvent(ctx context.Context, db Execer, ev models.ContractEvent) error {
	var payload []byte
	if len(ev.Payload) > 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = b
	}
	const q = `INSERT INTO contract_events (contract_id, type, actor, payload) VALUES ($1, $2, $3, $4)`
	if _, err := db.Exec(ctx, q, ev.ContractID, ev.Type, ev.Actor, payload); err != nil {
		return fmt.Errorf("insert contract event: %w", err)
	}
	return nil
}
