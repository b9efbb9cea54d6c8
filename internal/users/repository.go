package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/users-service/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List runs one filtered, paginated read. Absent filters match every row.
func (r *Repository) List(ctx context.Context, filter Filter) ([]User, error) {
	rows, err := r.pool.Query(ctx, listUsers, pgUUID(filter.ID), pgText(filter.Username), filter.Offset, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, filter.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: list scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return users, nil
}

// Get returns the user with id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, getUser, pgUUID(&id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// FindByUsername returns up to two users holding username.
func (r *Repository) FindByUsername(ctx context.Context, username string) ([]User, error) {
	rows, err := r.pool.Query(ctx, findUsersByUsername, username)
	if err != nil {
		return nil, fmt.Errorf("users: find by username: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: find by username scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: find by username: %w", err)
	}
	return users, nil
}

// Create inserts user with ON CONFLICT DO NOTHING. When no row comes back the
// conflict is confirmed inside the same transaction before reporting
// ErrUsernameTaken; any other cause is ErrNoRowReturned.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = scanUser(tx.QueryRow(ctx, insertUser,
			pgUUID(&user.ID), pgText(user.Username), user.Name, user.Premium,
			pgTime(user.CreatedAt), pgTime(user.UpdatedAt)))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return classifyWriteError(err)
		}
		if user.Username == nil {
			return ErrNoRowReturned
		}
		var taken bool
		if err := tx.QueryRow(ctx, usernameExists, *user.Username).Scan(&taken); err != nil {
			return fmt.Errorf("users: confirm conflict: %w", err)
		}
		if taken {
			return ErrUsernameTaken
		}
		return ErrNoRowReturned
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// Update applies patch in a single conditional write. The unique constraint
// on username rejects a username held by another row.
func (r *Repository) Update(ctx context.Context, patch Patch) (User, error) {
	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = scanUser(tx.QueryRow(ctx, updateUser,
			pgUUID(&patch.ID), pgText(patch.Username), pgText(patch.Name), pgTime(patch.UpdatedAt)))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return classifyWriteError(err)
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// Delete removes the user and returns the deleted row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (User, error) {
	var deleted User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		deleted, err = scanUser(tx.QueryRow(ctx, deleteUser, pgUUID(&id)))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("users: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return deleted, nil
}

func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == usernameConstraint {
		return ErrUsernameTaken
	}
	return fmt.Errorf("users: write: %w", err)
}
