package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetLedgerPrefix = "reset_token:consumed:"

// ResetTokenLedger remembers which password-reset tokens have been used.
type ResetTokenLedger interface {
	// Consume marks tokenID as used. It returns false when the token was
	// already consumed.
	Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	// Release forgets a consumed token so it can be presented again.
	Release(ctx context.Context, tokenID string) error
}

type redisResetTokenLedger struct {
	client *redis.Client
}

func NewResetTokenLedger(client *redis.Client) ResetTokenLedger {
	return &redisResetTokenLedger{client: client}
}

func (l *redisResetTokenLedger) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	// The entry only has to outlive the token itself.
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := l.client.SetNX(ctx, resetLedgerPrefix+tokenID, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record reset token: %w", err)
	}

	return ok, nil
}

func (l *redisResetTokenLedger) Release(ctx context.Context, tokenID string) error {
	if err := l.client.Del(ctx, resetLedgerPrefix+tokenID).Err(); err != nil {
		return fmt.Errorf("failed to release reset token: %w", err)
	}

	return nil
}
