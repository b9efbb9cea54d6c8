package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 8

// getter is satisfied by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps each user as a JSON value with a username index key and a
// sorted set ordering users by creation time. Writes that claim a username run
// as optimistic WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a store; keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "users"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) idKey(id uuid.UUID) string      { return s.prefix + ":id:" + id.String() }
func (s *RedisStore) nameKey(username string) string { return s.prefix + ":username:" + username }
func (s *RedisStore) orderKey() string               { return s.prefix + ":order" }

// List pages through the creation-ordered index, or through the single
// candidate when an id or username filter is given.
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]User, error) {
	if filter.ID != nil || filter.Username != nil {
		candidates, err := s.filtered(ctx, filter)
		if err != nil {
			return nil, err
		}
		if filter.Offset >= len(candidates) {
			return []User{}, nil
		}
		candidates = candidates[filter.Offset:]
		return candidates[:min(filter.Limit, len(candidates))], nil
	}

	start := int64(filter.Offset)
	stop := start + int64(filter.Limit) - 1
	ids, err := s.client.ZRange(ctx, s.orderKey(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("users: redis list: %w", err)
	}
	if len(ids) == 0 {
		return []User{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":id:" + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("users: redis list: %w", err)
	}
	users := make([]User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between ZRANGE and MGET.
			continue
		}
		u, err := decodeUser(raw)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *RedisStore) filtered(ctx context.Context, filter Filter) ([]User, error) {
	var candidates []User
	if filter.ID != nil {
		u, err := s.Get(ctx, *filter.ID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		candidates = []User{u}
	} else {
		var err error
		if candidates, err = s.FindByUsername(ctx, *filter.Username); err != nil {
			return nil, err
		}
	}
	if filter.Username == nil {
		return candidates, nil
	}
	out := candidates[:0]
	for _, u := range candidates {
		if usernameOf(u) == *filter.Username && u.Username != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

// Get returns the user with id.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.get(ctx, s.client, id)
}

// FindByUsername resolves the username index.
func (s *RedisStore) FindByUsername(ctx context.Context, username string) ([]User, error) {
	raw, err := s.client.Get(ctx, s.nameKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: redis find by username: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("users: redis username index %q: %w", username, err)
	}
	u, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []User{u}, nil
}

// Create stores user and claims its username atomically.
func (s *RedisStore) Create(ctx context.Context, user User) (User, error) {
	payload, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("users: encode: %w", err)
	}
	idKey := s.idKey(user.ID)
	watch := []string{idKey}
	if user.Username != nil {
		watch = append(watch, s.nameKey(*user.Username))
	}

	err = s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, idKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrNoRowReturned
		}
		if user.Username != nil {
			taken, err := tx.Exists(ctx, s.nameKey(*user.Username)).Result()
			if err != nil {
				return err
			}
			if taken > 0 {
				return ErrUsernameTaken
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, idKey, payload, 0)
			if user.Username != nil {
				p.Set(ctx, s.nameKey(*user.Username), user.ID.String(), 0)
			}
			p.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(user.CreatedAt.UnixMicro()), Member: user.ID.String()})
			return nil
		})
		return err
	}, watch...)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Update applies patch; a new username is claimed in the same transaction.
func (s *RedisStore) Update(ctx context.Context, patch Patch) (User, error) {
	idKey := s.idKey(patch.ID)
	watch := []string{idKey}
	if patch.Username != nil {
		watch = append(watch, s.nameKey(*patch.Username))
	}

	var updated User
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, patch.ID)
		if err != nil {
			return err
		}
		if patch.Username != nil {
			holder, err := tx.Get(ctx, s.nameKey(*patch.Username)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && holder != patch.ID.String() {
				return ErrUsernameTaken
			}
		}

		updated = patch.apply(current)
		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("users: encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, idKey, payload, 0)
			if old := usernameOf(current); old != usernameOf(updated) {
				if current.Username != nil {
					p.Del(ctx, s.nameKey(old))
				}
				p.Set(ctx, s.nameKey(*updated.Username), updated.ID.String(), 0)
			}
			return nil
		})
		return err
	}, watch...)
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// Delete removes the user, its username claim and its ordering entry.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) (User, error) {
	idKey := s.idKey(id)
	var deleted User
	err := s.watch(ctx, func(tx *redis.Tx) error {
		var err error
		deleted, err = s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, idKey)
			if deleted.Username != nil {
				p.Del(ctx, s.nameKey(*deleted.Username))
			}
			p.ZRem(ctx, s.orderKey(), id.String())
			return nil
		})
		return err
	}, idKey)
	if err != nil {
		return User{}, err
	}
	return deleted, nil
}

// watch retries fn while another client modifies a watched key.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("users: redis transaction aborted after %d attempts", redisMaxRetries)
}

func (s *RedisStore) get(ctx context.Context, c getter, id uuid.UUID) (User, error) {
	raw, err := c.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: redis get: %w", err)
	}
	return decodeUser(raw)
}

func decodeUser(raw string) (User, error) {
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("users: decode: %w", err)
	}
	return u, nil
}
