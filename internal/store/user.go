package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/novaangola/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT id, nome, email, telefone, password, created_at
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByTelefone(ctx context.Context, telefone string) (types.User, error) {
	const query = `
		SELECT id, nome, email, telefone, password, created_at
		FROM users
		WHERE telefone = $1`
	return r.getOne(ctx, query, telefone)
}

// ExistsByEmailOrTelefone reports whether an account already uses either
// identifier.
func (r *UserRepository) ExistsByEmailOrTelefone(ctx context.Context, email, telefone string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE email = $1 OR telefone = $2
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email, telefone).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts the user. A clash on email or telefone returns ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	const query = `
		INSERT INTO users (id, nome, email, telefone, password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Nome,
		user.Email,
		user.Telefone,
		user.PasswordHash,
		user.CreatedAt,
	); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Nome,
		&user.Email,
		&user.Telefone,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
