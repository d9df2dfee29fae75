package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/feed"
	"github.com/clipverse/backend/internal/models"
)

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

const summaryColumns = `
    v.id, v.title, v.description, v.thumbnail_url, v.video_url, v.category, v.creator_id,
    (SELECT count(*) FROM likes l WHERE l.video_id = v.id),
    (SELECT count(*) FROM comments c WHERE c.video_id = v.id),
    v.view_count, v.created_at, v.visibility, v.is_suspended, v.suspension_end, v.asset_status
`

func scanSummary(row pgx.Row, extra ...any) (models.VideoSummary, error) {
	var v models.VideoSummary
	dest := []any{
		&v.ID, &v.Title, &v.Description, &v.ThumbnailURL, &v.VideoURL, &v.Category, &v.Creator.ID,
		&v.LikeCount, &v.CommentCount, &v.ViewCount, &v.CreatedAt, &v.Visibility, &v.IsSuspended,
		&v.SuspensionEnd, &v.AssetStatus,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.VideoSummary{}, err
	}
	if v.Category == "" {
		v.Category = models.DefaultCategory
	}
	return v, nil
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := video.AssetStatus
	if strings.TrimSpace(status) == "" {
		status = models.AssetStatusPending
	}
	category := video.Category
	if strings.TrimSpace(category) == "" {
		category = models.DefaultCategory
	}
	visibility := video.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	var thumbnail *string
	if video.ThumbnailURL != "" {
		thumbnail = &video.ThumbnailURL
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, creator_id, title, description, category, visibility, thumbnail_url, video_url, asset_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, video.ID, video.CreatorID, video.Title, video.Description, category, visibility, thumbnail, video.VideoURL, status, video.CreatedAt)
	if err != nil {
		return mapError("insert video", err)
	}
	return nil
}

// Get loads a single video summary regardless of visibility.
func (r *PostgresVideoRepository) Get(ctx context.Context, id string) (models.VideoSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.VideoSummary{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	v, err := scanSummary(conn.QueryRow(ctx, `SELECT `+summaryColumns+` FROM videos v WHERE v.id = $1`, id))
	if err != nil {
		return models.VideoSummary{}, mapError("select video", err)
	}
	return v, nil
}

// FetchPage returns one page of public, unsuspended videos in the variant's
// order along with the exact number of matching rows.
func (r *PostgresVideoRepository) FetchPage(ctx context.Context, q feed.Query) (feed.Page, error) {
	order := "v.created_at DESC, v.id"
	if q.Variant.Order() == feed.OrderMostViewed {
		order = "v.view_count DESC, v.created_at DESC, v.id"
	}

	var creators []string
	if q.Variant == feed.Subscriptions {
		if len(q.CreatorIDs) == 0 {
			zero := 0
			return feed.Page{Items: []models.VideoSummary{}, Total: &zero}, nil
		}
		creators = q.CreatorIDs
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return feed.Page{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	const filter = `
        FROM videos v
        WHERE v.visibility = 'public'
          AND NOT v.is_suspended
          AND ($1::TEXT[] IS NULL OR v.creator_id = ANY($1::TEXT[]))
    `

	rows, err := conn.Query(ctx, `
        SELECT `+summaryColumns+`, count(*) OVER ()
        `+filter+`
        ORDER BY `+order+`
        LIMIT $2 OFFSET $3
    `, creators, q.Limit(), q.Offset())
	if err != nil {
		return feed.Page{}, fmt.Errorf("query feed page: %w", err)
	}
	defer rows.Close()

	items := make([]models.VideoSummary, 0, q.Limit())
	var total int64
	for rows.Next() {
		v, err := scanSummary(rows, &total)
		if err != nil {
			return feed.Page{}, fmt.Errorf("scan feed video: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return feed.Page{}, fmt.Errorf("iterate feed page: %w", err)
	}

	// A page past the end has no rows to carry the window count.
	if len(items) == 0 && q.Offset() > 0 {
		if err := conn.QueryRow(ctx, `SELECT count(*) `+filter, creators).Scan(&total); err != nil {
			return feed.Page{}, fmt.Errorf("count feed: %w", err)
		}
	}

	n := int(total)
	return feed.Page{Items: items, Total: &n}, nil
}

// OwnerOf returns the creator of a video.
func (r *PostgresVideoRepository) OwnerOf(ctx context.Context, videoID string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var owner string
	if err := conn.QueryRow(ctx, `SELECT creator_id FROM videos WHERE id = $1`, videoID).Scan(&owner); err != nil {
		return "", mapError("select video owner", err)
	}
	return owner, nil
}

// Delete hard-deletes a video; comments, likes and history cascade.
func (r *PostgresVideoRepository) Delete(ctx context.Context, videoID string) error {
	return r.execOne(ctx, "delete video", `DELETE FROM videos WHERE id = $1`, videoID)
}

// UpdateThumbnail replaces the thumbnail URL of a video.
func (r *PostgresVideoRepository) UpdateThumbnail(ctx context.Context, videoID, url string) error {
	return r.execOne(ctx, "update thumbnail", `UPDATE videos SET thumbnail_url = $2 WHERE id = $1`, videoID, url)
}

// IncrementViews atomically bumps the view counter.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, videoID string) error {
	return r.execOne(ctx, "increment views", `UPDATE videos SET view_count = view_count + 1 WHERE id = $1`, videoID)
}

// UpsertWatchHistory records that viewerID watched videoID at watchedAt,
// replacing any earlier row for the pair.
func (r *PostgresVideoRepository) UpsertWatchHistory(ctx context.Context, viewerID, videoID string, watchedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_history (viewer_id, video_id, watched_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (viewer_id, video_id)
        DO UPDATE SET watched_at = EXCLUDED.watched_at
    `, viewerID, videoID, watchedAt.UTC())
	if err != nil {
		return mapError("upsert watch history", err)
	}
	return nil
}

// MarkAssetReady records the stored locations after a successful ingestion.
// An empty thumbnailURL keeps the current thumbnail.
func (r *PostgresVideoRepository) MarkAssetReady(ctx context.Context, videoID, videoURL, thumbnailURL string) error {
	return r.execOne(ctx, "mark asset ready", `
        UPDATE videos
        SET asset_status = $2,
            video_url = $3,
            thumbnail_url = COALESCE(NULLIF($4, ''), thumbnail_url)
        WHERE id = $1
    `, videoID, models.AssetStatusReady, videoURL, thumbnailURL)
}

// MarkAssetFailed records a failed ingestion attempt.
func (r *PostgresVideoRepository) MarkAssetFailed(ctx context.Context, videoID string) error {
	return r.execOne(ctx, "mark asset failed", `
        UPDATE videos
        SET asset_status = $2, video_url = ''
        WHERE id = $1
    `, videoID, models.AssetStatusFailed)
}

func (r *PostgresVideoRepository) execOne(ctx context.Context, op, sql string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
