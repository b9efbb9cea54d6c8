package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("users: record not found")
	// ErrUsernameTaken is returned by stores when the username belongs to another user.
	ErrUsernameTaken = errors.New("users: username taken")
	// ErrNoRowReturned is returned when a write yields no row for a reason other
	// than a username conflict.
	ErrNoRowReturned = errors.New("users: write returned no row")
)

// Store persists users. Implementations must be safe for concurrent use and
// must make username uniqueness checks atomic with the write that claims it.
type Store interface {
	List(ctx context.Context, filter Filter) ([]User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	// FindByUsername returns every user holding username; more than one is an
	// integrity defect left for the caller to report.
	FindByUsername(ctx context.Context, username string) ([]User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, patch Patch) (User, error)
	Delete(ctx context.Context, id uuid.UUID) (User, error)
}
