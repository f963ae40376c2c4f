// Package cache keeps assembled contract views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/models"
)

const keyPrefix = "contracts:view:"

// ViewCache stores contract details keyed by organization and contract.
// Failures are logged and treated as misses.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewViewCache creates a view cache. A non-positive ttl disables caching.
func NewViewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ViewCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewCache{client: client, ttl: ttl, logger: logger}
}

// Key returns the Redis key for a contract view.
func Key(orgID, id uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, orgID, id)
}

func (v *ViewCache) enabled() bool { return v != nil && v.client != nil && v.ttl > 0 }

// Get returns the cached view, if any.
func (v *ViewCache) Get(ctx context.Context, orgID, id uuid.UUID) (*models.ContractDetail, bool) {
	if !v.enabled() {
		return nil, false
	}
	raw, err := v.client.Get(ctx, Key(orgID, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			v.logger.Warn("view cache get", zap.String("contract_id", id.String()), zap.Error(err))
		}
		return nil, false
	}
	var d models.ContractDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		v.logger.Warn("view cache decode", zap.String("contract_id", id.String()), zap.Error(err))
		return nil, false
	}
	return &d, true
}

// Set stores d under orgID.
func (v *ViewCache) Set(ctx context.Context, orgID uuid.UUID, d *models.ContractDetail) {
	if !v.enabled() {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		v.logger.Warn("view cache encode", zap.String("contract_id", d.ID.String()), zap.Error(err))
		return
	}
	if err := v.client.Set(ctx, Key(orgID, d.ID), raw, v.ttl).Err(); err != nil {
		v.logger.Warn("view cache set", zap.String("contract_id", d.ID.String()), zap.Error(err))
	}
}

// Invalidate drops the cached view of a contract.
func (v *ViewCache) Invalidate(ctx context.Context, orgID, id uuid.UUID) {
	if !v.enabled() {
		return
	}
	if err := v.client.Del(ctx, Key(orgID, id)).Err(); err != nil {
		v.logger.Warn("view cache invalidate", zap.String("contract_id", id.String()), zap.Error(err))
	}
}
