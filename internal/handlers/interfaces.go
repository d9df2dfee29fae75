package handlers

import (
	"context"
	"io"
	"time"

	"github.com/clipverse/backend/internal/comments"
	"github.com/clipverse/backend/internal/media"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/thumbnail"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User, profile models.Profile) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// ProfileStore reads public profiles.
type ProfileStore interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error)
}

// RoleResolver resolves a user's role.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID string) (string, error)
}

// VideoStore captures persistence for uploads and the video page.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	Get(ctx context.Context, id string) (models.VideoSummary, error)
	Delete(ctx context.Context, id string) error
	UpdateThumbnail(ctx context.Context, id, url string) error
}

// AssetIngestor schedules background storage of uploaded videos.
type AssetIngestor interface {
	Enqueue(job media.Job) error
}

// AssetManager crops, replaces and removes stored assets.
type AssetManager interface {
	CropThumbnail(r io.Reader) (thumbnail.Result, error)
	SelectThumbnail(ctx context.Context, videoID string, r io.Reader, apply func(ctx context.Context, url string) error) (string, error)
	Remove(ctx context.Context, videoID string) error
}

// ViewRecorder counts video views in the background.
type ViewRecorder interface {
	Record(ctx context.Context, videoID, viewerID string)
}

// LikeReader reports whether a viewer likes a video.
type LikeReader interface {
	Liked(ctx context.Context, viewerID, videoID string) (bool, error)
}

// CommentService implements the comment thread rules.
type CommentService interface {
	List(ctx context.Context, videoID string) ([]models.Comment, error)
	Create(ctx context.Context, viewerID, videoID, content string) (models.Comment, error)
	Delete(ctx context.Context, viewerID, videoID, commentID string) error
	TogglePinStatus(ctx context.Context, viewerID, commentID, videoID string, currentlyPinned bool) comments.PinResult
}

// EngagementService records likes and subscriptions.
type EngagementService interface {
	Like(ctx context.Context, viewerID, videoID string) error
	Unlike(ctx context.Context, viewerID, videoID string) error
	Subscribe(ctx context.Context, viewerID, creatorID string) error
	Unsubscribe(ctx context.Context, viewerID, creatorID string) error
}

// Moderator applies and lifts suspensions on behalf of admins.
type Moderator interface {
	Suspend(ctx context.Context, adminID, kind, targetID string, until time.Time, reason string) error
	Unsuspend(ctx context.Context, adminID, kind, targetID, reason string) error
}

// AnalyticsStore maintains and reads the weekly rollup.
type AnalyticsStore interface {
	AggregateWeekly(ctx context.Context, weekStart time.Time) (int64, error)
	ForVideo(ctx context.Context, videoID string) ([]models.VideoAnalytics, error)
}

// SettingsStore reads and writes platform settings.
type SettingsStore interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Bool(ctx context.Context, key string, fallback bool) (bool, error)
}
