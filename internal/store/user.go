package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrack/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewUserRepository(db *sql.DB, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	const query = `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users
		WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// Create inserts a user with a freshly generated ID. A username that is
// already taken yields ErrConflict, even when two registrations race.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		r.dialect.rebind(query),
		user.ID,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(query), arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}
