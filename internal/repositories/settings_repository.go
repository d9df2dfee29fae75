package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/clipverse/backend/internal/db"
)

const (
	// SettingUploadsEnabled gates video uploads.
	SettingUploadsEnabled = "uploads.enabled"
	// SettingCommentsEnabled gates comment posting.
	SettingCommentsEnabled = "comments.enabled"
)

// PostgresSettingsRepository stores platform-wide key/value settings.
type PostgresSettingsRepository struct {
	pool db.Pool
}

// NewPostgresSettingsRepository constructs a settings repository backed by PostgreSQL.
func NewPostgresSettingsRepository(pool db.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

// Get returns the value stored under key.
func (r *PostgresSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var value string
	if err := conn.QueryRow(ctx, `SELECT value FROM platform_settings WHERE key = $1`, key).Scan(&value); err != nil {
		return "", mapError("select setting", err)
	}
	return value, nil
}

// Set creates or replaces a setting.
func (r *PostgresSettingsRepository) Set(ctx context.Context, key, value string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO platform_settings (key, value, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
    `, key, value, time.Now().UTC())
	if err != nil {
		return mapError("upsert setting", err)
	}
	return nil
}

// All returns every setting.
func (r *PostgresSettingsRepository) All(ctx context.Context) (map[string]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT key, value FROM platform_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return out, nil
}

// Bool reads key as a boolean. Missing or malformed values yield fallback.
func (r *PostgresSettingsRepository) Bool(ctx context.Context, key string, fallback bool) (bool, error) {
	value, err := r.Get(ctx, key)
	if err == ErrNotFound {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}
