package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargeflow/backend/services/charging-service/internal/models"
)

// Store manages the active session cache, one entry per user.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(userID string) string {
	return fmt.Sprintf("sessions:active:user:%s", userID)
}

// Save caches session under its user.
func (s *Store) Save(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.UserID), data, s.ttl).Err()
}

// Get returns the cached session of userID, or nil on a miss.
func (s *Store) Get(ctx context.Context, userID string) (*models.Session, error) {
	result, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(result, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes the cached session of userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}
