package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/users-service/internal/shared"
)

// Service validates requests and runs them against a Store.
type Service struct {
	store     Store
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides user id generation.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService builds Service instance.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		validator: NewValidator(),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one page of users matching the filters.
func (s *Service) List(ctx context.Context, params ListParams) (UserPage, error) {
	if err := s.validator.Struct(params); err != nil {
		return UserPage{}, err
	}
	users, err := s.store.List(ctx, Filter(params))
	if err != nil {
		return UserPage{}, s.storeError(err, "")
	}
	if users == nil {
		users = []User{}
	}
	return UserPage{Count: len(users), Limit: params.Limit, Offset: params.Offset, Users: users}, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := s.store.Get(ctx, id)
	if err != nil {
		return User{}, s.storeError(err, "")
	}
	return user, nil
}

// GetByUsername returns the single user holding username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	matches, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return User{}, s.storeError(err, username)
	}
	switch len(matches) {
	case 0:
		return User{}, shared.NotFound(entityUser)
	case 1:
		return matches[0], nil
	default:
		s.logger.Error("username uniqueness violated", slog.String("username", username), slog.Int("matches", len(matches)))
		return User{}, shared.Internal(fmt.Errorf("%d users share username %q", len(matches), username))
	}
}

// Create stores a new user with a generated id and timestamps.
func (s *Service) Create(ctx context.Context, req CreateRequest) (User, error) {
	req.Username = trimmed(req.Username)
	req.Name = trimmed(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return User{}, err
	}

	now := s.timestamp()
	user := User{
		ID:        s.newID(),
		Username:  req.Username,
		Name:      DefaultName,
		Premium:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Name != nil && *req.Name != "" {
		user.Name = *req.Name
	}

	created, err := s.store.Create(ctx, user)
	if err != nil {
		return User{}, s.storeError(err, *req.Username)
	}
	return created, nil
}

// Update overwrites the supplied fields and refreshes updated_at.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (User, error) {
	req.Username = trimmed(req.Username)
	req.Name = trimmed(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return User{}, err
	}
	if req.Name != nil && *req.Name == "" {
		req.Name = nil
	}

	updated, err := s.store.Update(ctx, Patch{
		ID:        *req.ID,
		Username:  req.Username,
		Name:      req.Name,
		UpdatedAt: s.timestamp(),
	})
	if err != nil {
		username := ""
		if req.Username != nil {
			username = *req.Username
		}
		return User{}, s.storeError(err, username)
	}
	return updated, nil
}

// Delete removes the user and returns the deleted record.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (User, error) {
	if err := s.validator.Struct(req); err != nil {
		return User{}, err
	}
	deleted, err := s.store.Delete(ctx, *req.ID)
	if err != nil {
		return User{}, s.storeError(err, "")
	}
	return deleted, nil
}

// timestamp is truncated to the precision PostgreSQL stores.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) storeError(err error, username string) error {
	var appErr *shared.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrNotFound):
		return shared.NotFound(entityUser)
	case errors.Is(err, ErrUsernameTaken):
		return shared.BusyUsername(username)
	case errors.Is(err, ErrNoRowReturned):
		s.logger.Error("write returned no row without a username conflict", slog.Any("error", err))
		return shared.Internal(err)
	default:
		return shared.Database(err)
	}
}
