package repositories

import (
	"context"
	"fmt"

	"github.com/clipverse/backend/internal/db"
)

// PostgresEngagementRepository persists likes and subscriptions. Every write
// is idempotent: repeating a like or a subscribe is a no-op.
type PostgresEngagementRepository struct {
	pool db.Pool
}

// NewPostgresEngagementRepository constructs an engagement repository backed by PostgreSQL.
func NewPostgresEngagementRepository(pool db.Pool) *PostgresEngagementRepository {
	return &PostgresEngagementRepository{pool: pool}
}

// Like records that viewerID likes videoID.
func (r *PostgresEngagementRepository) Like(ctx context.Context, viewerID, videoID string) error {
	return r.exec(ctx, "insert like", `
        INSERT INTO likes (user_id, video_id) VALUES ($1, $2)
        ON CONFLICT (user_id, video_id) DO NOTHING
    `, viewerID, videoID)
}

// Unlike removes a like when present.
func (r *PostgresEngagementRepository) Unlike(ctx context.Context, viewerID, videoID string) error {
	return r.exec(ctx, "delete like", `DELETE FROM likes WHERE user_id = $1 AND video_id = $2`, viewerID, videoID)
}

// Liked reports whether viewerID likes videoID.
func (r *PostgresEngagementRepository) Liked(ctx context.Context, viewerID, videoID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var liked bool
	err = conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM likes WHERE user_id = $1 AND video_id = $2)`, viewerID, videoID).Scan(&liked)
	if err != nil {
		return false, fmt.Errorf("select like: %w", err)
	}
	return liked, nil
}

// Subscribe records that subscriberID follows creatorID.
func (r *PostgresEngagementRepository) Subscribe(ctx context.Context, subscriberID, creatorID string) error {
	return r.exec(ctx, "insert subscription", `
        INSERT INTO subscriptions (subscriber_id, creator_id) VALUES ($1, $2)
        ON CONFLICT (subscriber_id, creator_id) DO NOTHING
    `, subscriberID, creatorID)
}

// Unsubscribe removes a subscription when present.
func (r *PostgresEngagementRepository) Unsubscribe(ctx context.Context, subscriberID, creatorID string) error {
	return r.exec(ctx, "delete subscription", `
        DELETE FROM subscriptions WHERE subscriber_id = $1 AND creator_id = $2
    `, subscriberID, creatorID)
}

// SubscribedCreators lists the creators viewerID follows, most recent first.
func (r *PostgresEngagementRepository) SubscribedCreators(ctx context.Context, viewerID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT creator_id FROM subscriptions
        WHERE subscriber_id = $1
        ORDER BY created_at DESC
    `, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	creators := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		creators = append(creators, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return creators, nil
}

func (r *PostgresEngagementRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, sql, args...); err != nil {
		return mapError(op, err)
	}
	return nil
}
