// Package memory holds in-process stores used when no database is configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

// SessionRepository is an in-memory session store. It enforces the same one-active-session
// rules as the database indexes.
type SessionRepository struct {
	mu   sync.RWMutex
	data map[string]*models.Session
}

// NewSessionRepository constructs a repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{data: make(map[string]*models.Session)}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.Status == models.SessionStatusActive {
		for _, s := range r.data {
			if s.Status != models.SessionStatusActive {
				continue
			}
			if s.UserID == session.UserID {
				return service.ErrDuplicateActiveSession
			}
			if s.PointID == session.PointID {
				return service.ErrPointUnavailable
			}
		}
	}
	r.data[session.ID] = session.Clone()
	return nil
}

// Update overwrites a stored session while it is still active. Completed and failed sessions
// are final.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[session.ID]
	if !ok {
		return service.ErrSessionNotFound
	}
	if stored.Status != models.SessionStatusActive {
		return service.ErrSessionNotActive
	}
	r.data[session.ID] = session.Clone()
	return nil
}

// Get loads a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return nil, service.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// ActiveByUser returns the active session of a user.
func (r *SessionRepository) ActiveByUser(ctx context.Context, userID string) (*models.Session, error) {
	return r.findActive(ctx, func(s *models.Session) bool { return s.UserID == userID })
}

// ActiveByPoint returns the active session on a point.
func (r *SessionRepository) ActiveByPoint(ctx context.Context, pointID string) (*models.Session, error) {
	return r.findActive(ctx, func(s *models.Session) bool { return s.PointID == pointID })
}

// ListByUser returns last N sessions for user, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	result := make([]models.Session, 0)
	for _, s := range r.data {
		if s.UserID == userID {
			result = append(result, *s.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.After(result[j].StartTime) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *SessionRepository) findActive(ctx context.Context, match func(*models.Session) bool) (*models.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.data {
		if s.Status == models.SessionStatusActive && match(s) {
			return s.Clone(), nil
		}
	}
	return nil, service.ErrSessionNotFound
}
