package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/db"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// UserStore holds platform identities. Name updates are buffered in a
// changelog and written by Flush; reads do not flush implicitly, so callers
// that must observe pending writes flush first.
type UserStore struct {
	q *db.Queries

	mu      sync.Mutex
	pending map[string]string // userID -> userName
	order   []string
}

// NewUserStore creates a user store over loaded queries.
func NewUserStore(q *db.Queries) *UserStore {
	return &UserStore{q: q, pending: make(map[string]string)}
}

// Upsert queues a userID/userName pair. The last name queued for an ID wins.
func (s *UserStore) Upsert(userID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[userID]; !ok {
		s.order = append(s.order, userID)
	}
	s.pending[userID] = userName
}

// Pending returns the number of queued writes.
func (s *UserStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes queued changes in one transaction. On failure the batch is
// requeued ahead of anything queued meanwhile.
func (s *UserStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch, order := s.pending, s.order
	s.pending, s.order = make(map[string]string), nil
	s.mu.Unlock()

	err := s.q.Tx(ctx, func(tx *db.TxQueries) error {
		for _, id := range order {
			if _, err := tx.ExecContext(ctx, "upsert-user-name", id, batch[id]); err != nil {
				return fmt.Errorf("upsert-user-name %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		s.mu.Lock()
		requeued := make([]string, 0, len(order))
		for _, id := range order {
			if _, ok := s.pending[id]; ok {
				continue
			}
			s.pending[id] = batch[id]
			requeued = append(requeued, id)
		}
		s.order = append(requeued, s.order...)
		s.mu.Unlock()
		return err
	}
	return nil
}

// FindByID returns the identity with userID or ErrUserNotFound.
func (s *UserStore) FindByID(ctx context.Context, userID string) (*types.Identity, error) {
	return s.get(ctx, "get-user-by-id", userID)
}

// FindByName returns the identity named userName (case-insensitive) or ErrUserNotFound.
func (s *UserStore) FindByName(ctx context.Context, userName string) (*types.Identity, error) {
	return s.get(ctx, "get-user-by-name", userName)
}

func (s *UserStore) get(ctx context.Context, query, arg string) (*types.Identity, error) {
	var u types.Identity
	err := s.q.GetContext(ctx, query, &u, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	return &u, nil
}

// Put writes a full identity immediately.
func (s *UserStore) Put(ctx context.Context, u types.Identity) error {
	_, err := s.q.ExecContext(ctx, "upsert-user",
		u.UserID, u.UserName, u.IsOnline, u.IsModerator, u.IsSubscriber, u.IsVIP)
	if err != nil {
		return fmt.Errorf("upsert-user: %w", err)
	}
	return nil
}

// SetAllOffline flushes pending writes and marks every user offline.
func (s *UserStore) SetAllOffline(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, "set-all-users-offline"); err != nil {
		return fmt.Errorf("set-all-users-offline: %w", err)
	}
	return nil
}
