package users

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps users in process, ordered by insertion. All access goes
// through mu; returned values are copies.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []uuid.UUID
	byID   map[uuid.UUID]User
	byName map[string]uuid.UUID
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]User),
		byName: make(map[string]uuid.UUID),
	}
}

// List returns the filtered page in insertion order.
func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]User, 0, min(filter.Limit, len(m.order)))
	skipped := 0
	for _, id := range m.order {
		u := m.byID[id]
		if filter.ID != nil && u.ID != *filter.ID {
			continue
		}
		if filter.Username != nil && (u.Username == nil || *u.Username != *filter.Username) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if len(users) == filter.Limit {
			break
		}
		users = append(users, clone(u))
	}
	return users, nil
}

// Get returns the user with id.
func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(u), nil
}

// FindByUsername returns the user holding username, if any.
func (m *MemoryStore) FindByUsername(ctx context.Context, username string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[username]
	if !ok {
		return nil, nil
	}
	return []User{clone(m.byID[id])}, nil
}

// Create inserts user unless its username is already claimed.
func (m *MemoryStore) Create(ctx context.Context, user User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[user.ID]; exists {
		return User{}, ErrNoRowReturned
	}
	if user.Username != nil {
		if _, taken := m.byName[*user.Username]; taken {
			return User{}, ErrUsernameTaken
		}
		m.byName[*user.Username] = user.ID
	}
	user = clone(user)
	m.byID[user.ID] = user
	m.order = append(m.order, user.ID)
	return clone(user), nil
}

// Update applies patch, claiming the new username in the same critical section.
func (m *MemoryStore) Update(ctx context.Context, patch Patch) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[patch.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	if patch.Username != nil {
		if holder, taken := m.byName[*patch.Username]; taken && holder != patch.ID {
			return User{}, ErrUsernameTaken
		}
	}

	updated := patch.apply(current)
	if old := usernameOf(current); old != usernameOf(updated) {
		if current.Username != nil {
			delete(m.byName, old)
		}
		m.byName[*updated.Username] = updated.ID
	}
	m.byID[updated.ID] = updated
	return clone(updated), nil
}

// Delete removes the user with id and returns it.
func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	delete(m.byID, id)
	if u.Username != nil {
		delete(m.byName, *u.Username)
	}
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return clone(u), nil
}

// Len reports the number of stored users.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func clone(u User) User {
	if u.Username != nil {
		username := *u.Username
		u.Username = &username
	}
	return u
}
