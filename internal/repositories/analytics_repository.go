package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/models"
)

// PostgresAnalyticsRepository maintains the weekly per-video rollup.
type PostgresAnalyticsRepository struct {
	pool db.Pool
}

// NewPostgresAnalyticsRepository constructs an analytics repository backed by PostgreSQL.
func NewPostgresAnalyticsRepository(pool db.Pool) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{pool: pool}
}

// WeekStart truncates t to the Monday 00:00 UTC that begins its week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// AggregateWeekly recomputes the rollup row of every video with activity in
// the week containing weekStart and returns the number of rows written.
// Views are distinct viewers from watch history.
func (r *PostgresAnalyticsRepository) AggregateWeekly(ctx context.Context, weekStart time.Time) (int64, error) {
	from := WeekStart(weekStart)
	to := from.AddDate(0, 0, 7)

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        WITH activity AS (
            SELECT video_id, count(*) AS views, 0::BIGINT AS likes, 0::BIGINT AS comments
            FROM watch_history WHERE watched_at >= $1 AND watched_at < $2 GROUP BY video_id
            UNION ALL
            SELECT video_id, 0, count(*), 0
            FROM likes WHERE created_at >= $1 AND created_at < $2 GROUP BY video_id
            UNION ALL
            SELECT video_id, 0, 0, count(*)
            FROM comments WHERE created_at >= $1 AND created_at < $2 GROUP BY video_id
        )
        INSERT INTO video_analytics (video_id, week_start, views, likes, comments)
        SELECT video_id, $1::DATE, sum(views)::BIGINT, sum(likes)::BIGINT, sum(comments)::BIGINT
        FROM activity
        GROUP BY video_id
        ON CONFLICT (video_id, week_start) DO UPDATE
        SET views = EXCLUDED.views, likes = EXCLUDED.likes, comments = EXCLUDED.comments
    `, from, to)
	if err != nil {
		return 0, mapError("aggregate weekly analytics", err)
	}
	return tag.RowsAffected(), nil
}

// ForVideo returns the rollup rows of one video, newest week first.
func (r *PostgresAnalyticsRepository) ForVideo(ctx context.Context, videoID string) ([]models.VideoAnalytics, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT video_id, week_start, views, likes, comments
        FROM video_analytics
        WHERE video_id = $1
        ORDER BY week_start DESC
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	out := make([]models.VideoAnalytics, 0)
	for rows.Next() {
		var a models.VideoAnalytics
		if err := rows.Scan(&a.VideoID, &a.WeekStart, &a.Views, &a.Likes, &a.Comments); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics: %w", err)
	}
	return out, nil
}
