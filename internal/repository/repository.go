// Package repository declares the storage capability the service layer
// depends on, and owns the mapping between the store's native id and the
// string id the rest of the application sees.
//
// Backends live in sub-packages (memory, sqlite, postgres, mongo). Each one
// assigns an xid on Create, enforces a unique email, and reports failures
// with apperror.ErrNotFound, apperror.ErrInvalidID or apperror.ErrDuplicateKey.
package repository

import (
	"context"

	"github.com/rs/xid"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/model"
)

// UserRepository is a collection of users keyed by a unique id.
//
// Implementations must be safe for concurrent use. Every method is a single
// atomic store operation; there are no multi-document transactions.
type UserRepository interface {
	// Create inserts user, assigning user.ID and user.CreatedAt in place.
	// Returns apperror.ErrDuplicateKey if the email is already stored.
	Create(ctx context.Context, user *model.StoredUser) error

	// FindByID parses id into the native type first: apperror.ErrInvalidID
	// if that fails, apperror.ErrNotFound if no record matches.
	FindByID(ctx context.Context, id string) (*model.StoredUser, error)

	// FindByEmail returns apperror.ErrNotFound if no record matches.
	FindByEmail(ctx context.Context, email string) (*model.StoredUser, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// NewID returns a fresh native id.
func NewID() xid.ID {
	return xid.New()
}

// ParseID converts a string id from a token or URL into the native id.
func ParseID(id string) (xid.ID, error) {
	native, err := xid.FromString(id)
	if err != nil {
		return xid.NilID(), apperror.InvalidID("user", id)
	}
	return native, nil
}

// ToPublic projects a stored user onto what callers may see.
//
// This is the only place a native id becomes a string. xid's text form is
// a fixed-length base32 encoding of all 12 bytes, so distinct ids always
// yield distinct strings and ParseID(ToPublic(u).ID) == u.ID.
func ToPublic(u *model.StoredUser) model.PublicUser {
	return model.PublicUser{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		PhoneNumber: u.PhoneNumber,
	}
}
