package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/models"
)

// PostgresCommentRepository persists comments and their pin state.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

// ListByVideo returns the comments of a video, pinned first then newest first.
func (r *PostgresCommentRepository) ListByVideo(ctx context.Context, videoID string) ([]models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, video_id, author_id, content, is_pinned, created_at
        FROM comments
        WHERE video_id = $1
        ORDER BY is_pinned DESC, created_at DESC, id
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.AuthorID, &c.Content, &c.IsPinned, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// Get loads a single comment.
func (r *PostgresCommentRepository) Get(ctx context.Context, commentID string) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var c models.Comment
	err = conn.QueryRow(ctx, `
        SELECT id, video_id, author_id, content, is_pinned, created_at
        FROM comments
        WHERE id = $1
    `, commentID).Scan(&c.ID, &c.VideoID, &c.AuthorID, &c.Content, &c.IsPinned, &c.CreatedAt)
	if err != nil {
		return models.Comment{}, mapError("select comment", err)
	}
	return c, nil
}

// Create stores a new comment.
func (r *PostgresCommentRepository) Create(ctx context.Context, comment models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comments (id, video_id, author_id, content, is_pinned, created_at)
        VALUES ($1, $2, $3, $4, false, $5)
    `, comment.ID, comment.VideoID, comment.AuthorID, comment.Content, comment.CreatedAt)
	if err != nil {
		return mapError("insert comment", err)
	}
	return nil
}

// Delete removes a comment.
func (r *PostgresCommentRepository) Delete(ctx context.Context, commentID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM comments WHERE id = $1`, commentID)
	if err != nil {
		return mapError("delete comment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPinned pins or unpins commentID. Pinning first clears any other pin on
// the same video so the single-pin index never trips.
func (r *PostgresCommentRepository) SetPinned(ctx context.Context, videoID, commentID string, pinned bool) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if pinned {
			if _, err := tx.Exec(ctx, `
                UPDATE comments SET is_pinned = false
                WHERE video_id = $1 AND is_pinned AND id <> $2
            `, videoID, commentID); err != nil {
				return mapError("clear pinned comment", err)
			}
		}

		tag, err := tx.Exec(ctx, `
            UPDATE comments SET is_pinned = $3
            WHERE id = $1 AND video_id = $2
        `, commentID, videoID, pinned)
		if err != nil {
			return mapError("set pinned comment", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
