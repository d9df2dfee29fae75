package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for accounts.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new account together with its public profile.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User, profile models.Profile) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO users (id, email, password_hash, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5)
        `, user.ID, user.Email, user.Password, user.CreatedAt, user.UpdatedAt); err != nil {
			return mapError("insert user", err)
		}

		role := profile.Role
		if role == "" {
			role = models.RoleUser
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO profiles (id, username, display_name, avatar_url, role, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, user.ID, profile.Username, profile.DisplayName, profile.AvatarURL, role, user.CreatedAt); err != nil {
			return mapError("insert profile", err)
		}
		return nil
	})
}

// FindByEmail fetches an account by its email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM users
        WHERE email = $1
    `, strings.ToLower(email))

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, mapError("select user by email", err)
	}

	return user, nil
}
