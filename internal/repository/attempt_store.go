package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// AttemptStore keeps checkout attempts in Redis until they are reconciled or
// the TTL runs out.
type AttemptStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAttemptStore(rdb *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{rdb: rdb, ttl: ttl}
}

func (s *AttemptStore) Save(ctx context.Context, attempt *models.CheckoutAttempt) error {
	if attempt.SessionID == "" {
		return errors.New("attempt has no session id")
	}
	b, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal checkout attempt: %w", err)
	}
	if err := s.rdb.Set(ctx, attemptKey(attempt.SessionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkout attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, sessionID string) (*models.CheckoutAttempt, error) {
	b, err := s.rdb.Get(ctx, attemptKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout attempt: %w", err)
	}
	var attempt models.CheckoutAttempt
	if err := json.Unmarshal(b, &attempt); err != nil {
		return nil, fmt.Errorf("unmarshal checkout attempt: %w", err)
	}
	return &attempt, nil
}

func (s *AttemptStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, attemptKey(sessionID)).Err()
}
