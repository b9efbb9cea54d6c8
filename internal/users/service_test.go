package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/users-service/internal/shared"
)

// countingStore records how many calls reach the wrapped store.
type countingStore struct {
	Store
	calls atomic.Int32
}

func (c *countingStore) List(ctx context.Context, f Filter) ([]User, error) {
	c.calls.Add(1)
	return c.Store.List(ctx, f)
}

func (c *countingStore) Create(ctx context.Context, u User) (User, error) {
	c.calls.Add(1)
	return c.Store.Create(ctx, u)
}

func (c *countingStore) Update(ctx context.Context, p Patch) (User, error) {
	c.calls.Add(1)
	return c.Store.Update(ctx, p)
}

func (c *countingStore) Delete(ctx context.Context, id uuid.UUID) (User, error) {
	c.calls.Add(1)
	return c.Store.Delete(ctx, id)
}

// stubStore fails every call with err, or returns matches from FindByUsername.
type stubStore struct {
	err     error
	matches []User
}

func (s stubStore) List(context.Context, Filter) ([]User, error)    { return nil, s.err }
func (s stubStore) Get(context.Context, uuid.UUID) (User, error)    { return User{}, s.err }
func (s stubStore) Create(context.Context, User) (User, error)      { return User{}, s.err }
func (s stubStore) Update(context.Context, Patch) (User, error)     { return User{}, s.err }
func (s stubStore) Delete(context.Context, uuid.UUID) (User, error) { return User{}, s.err }
func (s stubStore) FindByUsername(context.Context, string) ([]User, error) {
	return s.matches, s.err
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *countingStore, *fakeClock) {
	t.Helper()
	store := &countingStore{Store: NewMemoryStore()}
	clock := &fakeClock{now: baseTime.Add(123456789 * time.Nanosecond)}
	return NewService(store, quietLogger(), WithClock(clock.Now)), store, clock
}

func requireKind(t *testing.T, err error, kind shared.Kind) *shared.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *shared.Error
	require.True(t, errors.As(err, &appErr), "expected *shared.Error, got %T", err)
	require.Equal(t, kind, appErr.Kind, appErr.Error())
	return appErr
}

func TestServiceCreateAssignsDefaults(t *testing.T) {
	svc, _, clock := newTestService(t)

	u, err := svc.Create(context.Background(), CreateRequest{Username: strPtr("  ada  ")})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "ada", *u.Username)
	assert.Equal(t, DefaultName, u.Name)
	assert.False(t, u.Premium)
	assert.Equal(t, clock.now.UTC().Truncate(time.Microsecond), u.CreatedAt)
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestServiceCreateUsesGeneratedID(t *testing.T) {
	id := uuid.MustParse("6f1c2c1e-6a3b-4f1e-9a44-1d2a3b4c5d6e")
	svc := NewService(NewMemoryStore(), quietLogger(), WithIDGenerator(func() uuid.UUID { return id }))

	u, err := svc.Create(context.Background(), CreateRequest{Username: strPtr("ada"), Name: strPtr("Ada")})
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "Ada", u.Name)

	_, err = svc.Create(context.Background(), CreateRequest{Username: strPtr("grace")})
	requireKind(t, err, shared.KindInternal)
}

func TestServiceCreateBusyUsername(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), CreateRequest{Username: strPtr("ada")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateRequest{Username: strPtr("ada")})
	appErr := requireKind(t, err, shared.KindBusyUsername)
	assert.Equal(t, "Username `ada` is busy, try another", appErr.Error())
}

func TestServiceRejectsInvalidInputWithoutTouchingStore(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	cases := []struct {
		name  string
		call  func() error
		field string
	}{
		{"create without username", func() error {
			_, err := svc.Create(ctx, CreateRequest{})
			return err
		}, "username"},
		{"create blank username", func() error {
			_, err := svc.Create(ctx, CreateRequest{Username: strPtr("   ")})
			return err
		}, "username"},
		{"create long username", func() error {
			_, err := svc.Create(ctx, CreateRequest{Username: strPtr(strings.Repeat("a", MaxUsernameLength+1))})
			return err
		}, "username"},
		{"create long name", func() error {
			_, err := svc.Create(ctx, CreateRequest{Username: strPtr("ada"), Name: strPtr(strings.Repeat("n", MaxNameLength+1))})
			return err
		}, "name"},
		{"update without id", func() error {
			_, err := svc.Update(ctx, UpdateRequest{Name: strPtr("Ada")})
			return err
		}, "id"},
		{"update blank username", func() error {
			_, err := svc.Update(ctx, UpdateRequest{ID: &id, Username: strPtr("")})
			return err
		}, "username"},
		{"delete without id", func() error {
			_, err := svc.Delete(ctx, DeleteRequest{})
			return err
		}, "id"},
		{"list zero limit", func() error {
			_, err := svc.List(ctx, ListParams{Limit: 0})
			return err
		}, "limit"},
		{"list limit too large", func() error {
			_, err := svc.List(ctx, ListParams{Limit: MaxLimit + 1})
			return err
		}, "limit"},
		{"list negative offset", func() error {
			_, err := svc.List(ctx, ListParams{Limit: 10, Offset: -1})
			return err
		}, "offset"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := requireKind(t, tc.call(), shared.KindInvalidField)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}
	assert.Zero(t, store.calls.Load())
}

func TestServiceUpdateRefreshesUpdatedAt(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, CreateRequest{Username: strPtr("ada")})
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	updated, err := svc.Update(ctx, UpdateRequest{ID: &u.ID, Name: strPtr("Ada Lovelace")})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Name)
	assert.Equal(t, "ada", *updated.Username)
	assert.Equal(t, u.CreatedAt, updated.CreatedAt)
	assert.Equal(t, u.CreatedAt.Add(90*time.Second), updated.UpdatedAt)
}

func TestServiceUpdateIgnoresBlankName(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, CreateRequest{Username: strPtr("ada"), Name: strPtr("Ada")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, UpdateRequest{ID: &u.ID, Name: strPtr("  ")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name)
}

func TestServiceUpdateErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateRequest{Username: strPtr("ada")})
	require.NoError(t, err)
	grace, err := svc.Create(ctx, CreateRequest{Username: strPtr("grace")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, UpdateRequest{ID: &grace.ID, Username: strPtr("ada")})
	requireKind(t, err, shared.KindBusyUsername)

	missing := uuid.New()
	_, err = svc.Update(ctx, UpdateRequest{ID: &missing, Name: strPtr("Ghost")})
	appErr := requireKind(t, err, shared.KindNotFound)
	assert.Equal(t, "User was not found", appErr.Error())
}

func TestServiceRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{Username: strPtr("ada")})
	require.NoError(t, err)

	byName, err := svc.GetByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, u, byName)

	page, err := svc.List(ctx, ListParams{Limit: DefaultLimit})
	require.NoError(t, err)
	assert.Equal(t, UserPage{Count: 1, Limit: DefaultLimit, Users: []User{u}}, page)

	deleted, err := svc.Delete(ctx, DeleteRequest{ID: &u.ID})
	require.NoError(t, err)
	assert.Equal(t, u, deleted)

	_, err = svc.Get(ctx, u.ID)
	requireKind(t, err, shared.KindNotFound)
	_, err = svc.GetByUsername(ctx, "ada")
	requireKind(t, err, shared.KindNotFound)
	_, err = svc.Delete(ctx, DeleteRequest{ID: &u.ID})
	requireKind(t, err, shared.KindNotFound)

	page, err = svc.List(ctx, ListParams{Limit: DefaultLimit})
	require.NoError(t, err)
	assert.NotNil(t, page.Users)
	assert.Zero(t, page.Count)
}

func TestServiceGetByUsernameAmbiguous(t *testing.T) {
	matches := []User{newTestUser("ada", 0), newTestUser("ada", 1)}
	svc := NewService(stubStore{matches: matches}, quietLogger())

	_, err := svc.GetByUsername(context.Background(), "ada")
	requireKind(t, err, shared.KindInternal)
}

func TestServiceMapsStoreFailures(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	svc := NewService(stubStore{err: ErrNoRowReturned}, quietLogger())
	_, err := svc.Create(ctx, CreateRequest{Username: strPtr("ada")})
	requireKind(t, err, shared.KindInternal)

	boom := errors.New("connection reset by peer")
	svc = NewService(stubStore{err: boom}, quietLogger())
	_, err = svc.Get(ctx, id)
	appErr := requireKind(t, err, shared.KindDatabase)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Database Error connection reset by peer", appErr.Error())

	_, err = svc.List(ctx, ListParams{Limit: 1})
	requireKind(t, err, shared.KindDatabase)

	svc = NewService(stubStore{err: shared.NotFound("Thing")}, quietLogger())
	_, err = svc.Delete(ctx, DeleteRequest{ID: &id})
	appErr = requireKind(t, err, shared.KindNotFound)
	assert.Equal(t, "Thing", appErr.Entity)
}
