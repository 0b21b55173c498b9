// Package memory is an in-process UserRepository. Tests use it in place of a
// real database, and STORE_DRIVER=memory runs the server without one.
// Semantics match the SQL and Mongo stores: xid ids, unique email,
// ErrInvalidID before ErrNotFound.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[xid.ID]model.StoredUser
	byEmail map[string]xid.ID
	now     func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[xid.ID]model.StoredUser),
		byEmail: make(map[string]xid.ID),
		now:     time.Now,
	}
}

func (s *UserStore) Create(ctx context.Context, user *model.StoredUser) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return apperror.DuplicateKey("user", "email")
	}

	user.ID = repository.NewID()
	user.CreatedAt = s.now().UTC()

	s.byID[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*model.StoredUser, error) {
	native, err := repository.ParseID(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[native]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.StoredUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	u := s.byID[id]
	return &u, nil
}

// Delete removes a user. It is not part of UserRepository; tests use it to
// simulate an account disappearing after a token was issued.
func (s *UserStore) Delete(id xid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byID[id]; ok {
		delete(s.byEmail, u.Email)
		delete(s.byID, id)
	}
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *UserStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *UserStore) Close() error { return nil }
