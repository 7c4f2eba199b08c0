package redis

import (
	"context"
	"encoding/json"
	"time"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
)

var _ repository.PaymentCache = (*StatusCache)(nil)

// StatusCache stores terminal payments so repeated status polls skip the database.
// Non-terminal payments are never written: their status can still move.
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewStatusCache(client RedisClient, ttl time.Duration) *StatusCache {
	return &StatusCache{
		client: client,
		ttl:    ttl,
	}
}

func statusKey(transactionID string) string { return "deposit_status:" + transactionID }

func (c *StatusCache) Put(ctx context.Context, p *model.Payment) error {
	if !p.IsTerminal() {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKey(p.TransactionID), data, c.ttl)
}

func (c *StatusCache) Get(ctx context.Context, transactionID string) (*model.Payment, error) {
	data, err := c.client.Get(ctx, statusKey(transactionID))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var p model.Payment
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		_ = c.client.Del(ctx, statusKey(transactionID))
		return nil, domain.ErrNotFound
	}
	return &p, nil
}
