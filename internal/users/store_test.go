package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTestUser(username string, offset int) User {
	at := baseTime.Add(time.Duration(offset) * time.Second)
	u := User{ID: uuid.New(), Name: DefaultName, CreatedAt: at, UpdatedAt: at}
	if username != "" {
		u.Username = strPtr(username)
	}
	return u
}

func mustCreate(t *testing.T, s Store, u User) User {
	t.Helper()
	created, err := s.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateThenGet", func(t *testing.T) {
		s := newStore(t)
		u := newTestUser("ada", 0)
		assert.Equal(t, u, mustCreate(t, s, u))

		got, err := s.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u, got)

		_, err = s.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreateDuplicateUsername", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, newTestUser("ada", 0))

		_, err := s.Create(ctx, newTestUser("ada", 1))
		assert.ErrorIs(t, err, ErrUsernameTaken)

		all, err := s.List(ctx, Filter{Limit: MaxLimit})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("CreateWithoutUsername", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, newTestUser("", 0))
		mustCreate(t, s, newTestUser("", 1))

		all, err := s.List(ctx, Filter{Limit: MaxLimit})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("FindByUsername", func(t *testing.T) {
		s := newStore(t)
		u := mustCreate(t, s, newTestUser("ada", 0))

		found, err := s.FindByUsername(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, []User{u}, found)

		found, err = s.FindByUsername(ctx, "grace")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("ListFiltersAndPages", func(t *testing.T) {
		s := newStore(t)
		var all []User
		for i := 0; i < 5; i++ {
			all = append(all, mustCreate(t, s, newTestUser(fmt.Sprintf("user%d", i), i)))
		}

		page, err := s.List(ctx, Filter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, all[1:3], page)

		page, err = s.List(ctx, Filter{Limit: 10, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, page)

		page, err = s.List(ctx, Filter{Username: strPtr("user3"), Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []User{all[3]}, page)

		page, err = s.List(ctx, Filter{ID: &all[2].ID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []User{all[2]}, page)

		page, err = s.List(ctx, Filter{ID: &all[2].ID, Username: strPtr("user3"), Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page)

		page, err = s.List(ctx, Filter{ID: &all[2].ID, Limit: 10, Offset: 1})
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		s := newStore(t)
		u := mustCreate(t, s, newTestUser("ada", 0))
		later := u.CreatedAt.Add(time.Minute)

		updated, err := s.Update(ctx, Patch{ID: u.ID, Name: strPtr("Ada Lovelace"), UpdatedAt: later})
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", updated.Name)
		assert.Equal(t, u.ID, updated.ID)
		assert.Equal(t, u.Username, updated.Username)
		assert.Equal(t, u.CreatedAt, updated.CreatedAt)
		assert.Equal(t, later, updated.UpdatedAt)

		got, err := s.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, updated, got)
	})

	t.Run("UpdateUsernameReleasesOldClaim", func(t *testing.T) {
		s := newStore(t)
		u := mustCreate(t, s, newTestUser("ada", 0))

		updated, err := s.Update(ctx, Patch{ID: u.ID, Username: strPtr("grace"), UpdatedAt: u.CreatedAt.Add(time.Second)})
		require.NoError(t, err)
		assert.Equal(t, "grace", *updated.Username)

		found, err := s.FindByUsername(ctx, "ada")
		require.NoError(t, err)
		assert.Empty(t, found)

		mustCreate(t, s, newTestUser("ada", 2))
	})

	t.Run("UpdateToTakenUsername", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, newTestUser("ada", 0))
		grace := mustCreate(t, s, newTestUser("grace", 1))

		_, err := s.Update(ctx, Patch{ID: grace.ID, Username: strPtr("ada"), UpdatedAt: grace.CreatedAt.Add(time.Second)})
		assert.ErrorIs(t, err, ErrUsernameTaken)

		got, err := s.Get(ctx, grace.ID)
		require.NoError(t, err)
		assert.Equal(t, grace, got)
	})

	t.Run("UpdateKeepsOwnUsername", func(t *testing.T) {
		s := newStore(t)
		u := mustCreate(t, s, newTestUser("ada", 0))

		updated, err := s.Update(ctx, Patch{ID: u.ID, Username: strPtr("ada"), UpdatedAt: u.CreatedAt.Add(time.Second)})
		require.NoError(t, err)
		assert.Equal(t, "ada", *updated.Username)
	})

	t.Run("UpdateNeverMovesBeforeCreated", func(t *testing.T) {
		s := newStore(t)
		u := mustCreate(t, s, newTestUser("ada", 0))

		updated, err := s.Update(ctx, Patch{ID: u.ID, Name: strPtr("Ada"), UpdatedAt: u.CreatedAt.Add(-time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, u.CreatedAt, updated.UpdatedAt)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(ctx, Patch{ID: uuid.New(), Name: strPtr("Ghost"), UpdatedAt: baseTime})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		u := mustCreate(t, s, newTestUser("ada", 0))
		other := mustCreate(t, s, newTestUser("grace", 1))

		deleted, err := s.Delete(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u, deleted)

		_, err = s.Get(ctx, u.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Delete(ctx, u.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := s.List(ctx, Filter{Limit: MaxLimit})
		require.NoError(t, err)
		assert.Equal(t, []User{other}, all)

		mustCreate(t, s, newTestUser("ada", 2))
	})

	t.Run("ConcurrentCreatesClaimUsernameOnce", func(t *testing.T) {
		s := newStore(t)
		const writers = 16
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Create(ctx, newTestUser("contended", i))
			}(i)
		}
		wg.Wait()

		assertSingleWinner(t, errs)
		found, err := s.FindByUsername(ctx, "contended")
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("ConcurrentUpdatesClaimUsernameOnce", func(t *testing.T) {
		s := newStore(t)
		const writers = 16
		ids := make([]uuid.UUID, writers)
		for i := range ids {
			ids[i] = mustCreate(t, s, newTestUser(fmt.Sprintf("racer%d", i), i)).ID
		}

		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Update(ctx, Patch{ID: ids[i], Username: strPtr("winner"), UpdatedAt: baseTime.Add(time.Hour)})
			}(i)
		}
		wg.Wait()

		assertSingleWinner(t, errs)
		found, err := s.FindByUsername(ctx, "winner")
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})
}

func assertSingleWinner(t *testing.T, errs []error) {
	t.Helper()
	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrUsernameTaken):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
}
