package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, username, name, premium, created_at, updated_at`

const listUsers = `
SELECT ` + userColumns + `
FROM users
WHERE ($1::uuid IS NULL OR id = $1)
  AND ($2::text IS NULL OR username = $2)
ORDER BY created_at, id
OFFSET $3
LIMIT $4
`

const getUser = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

// Limited to two rows: enough to detect a uniqueness violation.
const findUsersByUsername = `
SELECT ` + userColumns + `
FROM users
WHERE username = $1
ORDER BY created_at, id
LIMIT 2
`

const insertUser = `
INSERT INTO users (id, username, name, premium, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (username) DO NOTHING
RETURNING ` + userColumns

const usernameExists = `
SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)
`

const updateUser = `
UPDATE users
SET username   = COALESCE($2, username),
    name       = COALESCE($3, name),
    updated_at = GREATEST($4, created_at)
WHERE id = $1
RETURNING ` + userColumns

const deleteUser = `
DELETE FROM users
WHERE id = $1
RETURNING ` + userColumns

const usernameConstraint = "users_username_key"

type userRow struct {
	ID        pgtype.UUID
	Username  pgtype.Text
	Name      string
	Premium   bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

func scanUser(row pgx.Row) (User, error) {
	var r userRow
	if err := row.Scan(&r.ID, &r.Username, &r.Name, &r.Premium, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return User{}, err
	}
	return r.toUser(), nil
}

func (r userRow) toUser() User {
	u := User{
		ID:      uuid.UUID(r.ID.Bytes),
		Name:    r.Name,
		Premium: r.Premium,
	}
	if r.Username.Valid {
		username := r.Username.String
		u.Username = &username
	}
	if r.CreatedAt.Valid {
		u.CreatedAt = r.CreatedAt.Time.UTC()
	}
	if r.UpdatedAt.Valid {
		u.UpdatedAt = r.UpdatedAt.Time.UTC()
	}
	return u
}

func pgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func pgText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
