package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// CartStore holds each customer's cart as one JSON value.
type CartStore struct {
	rdb *redis.Client
}

func NewCartStore(rdb *redis.Client) *CartStore {
	return &CartStore{rdb: rdb}
}

// Get returns an empty cart for a customer who has none.
func (s *CartStore) Get(ctx context.Context, userID string) ([]models.CartItem, error) {
	b, err := s.rdb.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var items []models.CartItem
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return items, nil
}

func (s *CartStore) Set(ctx context.Context, userID string, items []models.CartItem) error {
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	return s.rdb.Set(ctx, cartKey(userID), b, 0).Err()
}

// Clear is idempotent.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
