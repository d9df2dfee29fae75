package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/models"
)

// PostgresModerationRepository stores suspensions and the moderation audit log.
type PostgresModerationRepository struct {
	pool db.Pool
}

// NewPostgresModerationRepository constructs a moderation repository backed by PostgreSQL.
func NewPostgresModerationRepository(pool db.Pool) *PostgresModerationRepository {
	return &PostgresModerationRepository{pool: pool}
}

func targetTable(kind string) (string, error) {
	switch kind {
	case models.TargetUser:
		return "profiles", nil
	case models.TargetVideo:
		return "videos", nil
	default:
		return "", apperr.E(apperr.KindInvalid, fmt.Sprintf("unknown suspension target %q", kind), nil)
	}
}

// ExpiredSuspensions returns up to limit suspensions that ended at or before now.
func (r *PostgresModerationRepository) ExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]models.Suspension, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT target_kind, target_id, ends_at
        FROM suspensions
        WHERE ends_at <= $1
        ORDER BY ends_at, target_kind, target_id
        LIMIT $2
    `, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query expired suspensions: %w", err)
	}
	defer rows.Close()

	var out []models.Suspension
	for rows.Next() {
		var s models.Suspension
		if err := rows.Scan(&s.TargetKind, &s.TargetID, &s.EndsAt); err != nil {
			return nil, fmt.Errorf("scan suspension: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suspensions: %w", err)
	}
	return out, nil
}

// ApplySuspension flags the target, records or extends the suspension and
// appends action to the audit log.
func (r *PostgresModerationRepository) ApplySuspension(ctx context.Context, s models.Suspension, action models.ModerationAction) error {
	table, err := targetTable(s.TargetKind)
	if err != nil {
		return err
	}

	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE `+table+` SET is_suspended = true, suspension_end = $2 WHERE id = $1`, s.TargetID, s.EndsAt.UTC())
		if err != nil {
			return mapError("flag suspended target", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO suspensions (target_kind, target_id, ends_at)
            VALUES ($1, $2, $3)
            ON CONFLICT (target_kind, target_id) DO UPDATE SET ends_at = EXCLUDED.ends_at
        `, s.TargetKind, s.TargetID, s.EndsAt.UTC()); err != nil {
			return mapError("upsert suspension", err)
		}

		return insertAction(ctx, tx, action)
	})
}

// LiftSuspension clears the target's flag and removes its suspension row.
func (r *PostgresModerationRepository) LiftSuspension(ctx context.Context, kind, targetID string, action models.ModerationAction) error {
	table, err := targetTable(kind)
	if err != nil {
		return err
	}

	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM suspensions WHERE target_kind = $1 AND target_id = $2`, kind, targetID)
		if err != nil {
			return mapError("delete suspension", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `UPDATE `+table+` SET is_suspended = false, suspension_end = NULL WHERE id = $1`, targetID); err != nil {
			return mapError("clear suspended target", err)
		}

		return insertAction(ctx, tx, action)
	})
}

// RoleOf returns the role of userID.
func (r *PostgresModerationRepository) RoleOf(ctx context.Context, userID string) (string, error) {
	return NewPostgresProfileRepository(r.pool).RoleOf(ctx, userID)
}

// Actions lists the audit trail for one target, newest first.
func (r *PostgresModerationRepository) Actions(ctx context.Context, kind, targetID string) ([]models.ModerationAction, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, actor_id, target_kind, target_id, action, reason, created_at
        FROM moderation_actions
        WHERE target_kind = $1 AND target_id = $2
        ORDER BY created_at DESC, id
    `, kind, targetID)
	if err != nil {
		return nil, fmt.Errorf("query moderation actions: %w", err)
	}
	defer rows.Close()

	actions := make([]models.ModerationAction, 0)
	for rows.Next() {
		var a models.ModerationAction
		if err := rows.Scan(&a.ID, &a.ActorID, &a.TargetKind, &a.TargetID, &a.Action, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan moderation action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation actions: %w", err)
	}
	return actions, nil
}

func insertAction(ctx context.Context, tx pgx.Tx, a models.ModerationAction) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO moderation_actions (id, actor_id, target_kind, target_id, action, reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, a.ID, a.ActorID, a.TargetKind, a.TargetID, a.Action, a.Reason, a.CreatedAt.UTC())
	if err != nil {
		return mapError("insert moderation action", err)
	}
	return nil
}
