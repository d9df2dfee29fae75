package repositories

import (
	"context"
	"fmt"

	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/models"
)

// PostgresProfileRepository reads public profiles.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

const profileColumns = `
    p.id, p.username, p.display_name, p.avatar_url, p.role, p.is_suspended, p.suspension_end, p.created_at,
    (SELECT count(*) FROM subscriptions s WHERE s.creator_id = p.id)
`

// Get loads one profile.
func (r *PostgresProfileRepository) Get(ctx context.Context, id string) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1`, id)

	var p models.Profile
	if err := row.Scan(&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Role, &p.IsSuspended, &p.SuspensionEnd, &p.CreatedAt, &p.SubscriberCount); err != nil {
		return models.Profile{}, mapError("select profile", err)
	}
	return p, nil
}

// Profiles resolves creator enrichment for ids in one query. Unknown ids are
// absent from the result.
func (r *PostgresProfileRepository) Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error) {
	out := make(map[string]models.Creator, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Role, &p.IsSuspended, &p.SuspensionEnd, &p.CreatedAt, &p.SubscriberCount); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[p.ID] = models.CreatorFromProfile(p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// RoleOf returns the role of userID.
func (r *PostgresProfileRepository) RoleOf(ctx context.Context, userID string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var role string
	if err := conn.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, userID).Scan(&role); err != nil {
		return "", mapError("select role", err)
	}
	return role, nil
}
