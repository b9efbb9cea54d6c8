package users

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultName is assigned when a user is created without a name.
	DefaultName = "User"

	DefaultLimit = 20
	MaxLimit     = 100

	MaxUsernameLength = 64
	MaxNameLength     = 128

	entityUser = "User"
)

// User is the stored and returned shape of a user account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  *string   `json:"username"`
	Name      string    `json:"name"`
	Premium   bool      `json:"premium"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPage is one page of a filtered listing. Count is the size of this page.
type UserPage struct {
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Users  []User `json:"users"`
}

// DeletedUser is returned by the delete endpoint.
type DeletedUser struct {
	Deleted bool `json:"deleted"`
	User    User `json:"user"`
}

// ListParams holds the list filters and pagination window.
type ListParams struct {
	ID       *uuid.UUID `json:"id"`
	Username *string    `json:"username" validate:"omitnil,max=64"`
	Limit    int        `json:"limit" validate:"gte=1,lte=100"`
	Offset   int        `json:"offset" validate:"gte=0"`
}

// CreateRequest carries the client-supplied fields of a new user.
type CreateRequest struct {
	Username *string `json:"username" validate:"required,min=1,max=64"`
	Name     *string `json:"name" validate:"omitnil,max=128"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	ID       *uuid.UUID `json:"id" validate:"required"`
	Username *string    `json:"username" validate:"omitnil,min=1,max=64"`
	Name     *string    `json:"name" validate:"omitnil,max=128"`
}

// DeleteRequest identifies the user to delete.
type DeleteRequest struct {
	ID *uuid.UUID `json:"id" validate:"required"`
}

// Filter is the store-level form of ListParams.
type Filter struct {
	ID       *uuid.UUID
	Username *string
	Limit    int
	Offset   int
}

// Patch is the store-level form of UpdateRequest.
type Patch struct {
	ID        uuid.UUID
	Username  *string
	Name      *string
	UpdatedAt time.Time
}

// apply overwrites the supplied fields of u. UpdatedAt never moves before CreatedAt.
func (p Patch) apply(u User) User {
	if p.Username != nil {
		username := *p.Username
		u.Username = &username
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	u.UpdatedAt = p.UpdatedAt
	if u.UpdatedAt.Before(u.CreatedAt) {
		u.UpdatedAt = u.CreatedAt
	}
	return u
}

func usernameOf(u User) string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}
