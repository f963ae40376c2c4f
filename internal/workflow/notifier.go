package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/pactline/backend/internal/models"
)

// Invalidator drops cached contract views.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID, id uuid.UUID)
}

// Broadcaster pushes a contract's new state to live subscribers.
type Broadcaster interface {
	PublishContract(c *models.Contract)
}

// Fanout is the Notifier used in production: it invalidates the view cache and
// broadcasts the change. Either side may be nil.
type Fanout struct {
	Cache  Invalidator
	Events Broadcaster
}

// ContractChanged implements Notifier.
func (f Fanout) ContractChanged(ctx context.Context, c *models.Contract) {
	if f.Cache != nil && c.OrganizationID != nil {
		f.Cache.Invalidate(ctx, *c.OrganizationID, c.ID)
	}
	if f.Events != nil {
		f.Events.PublishContract(c)
	}
}
