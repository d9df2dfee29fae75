package models

import "time"

// User represents an account within the Clipverse platform.
type User struct {
	ID        string
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile is the public face of a user: display data plus moderation state.
type Profile struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"displayName"`
	AvatarURL       string     `json:"avatarUrl,omitempty"`
	SubscriberCount int64      `json:"subscriberCount"`
	Role            string     `json:"role"`
	IsSuspended     bool       `json:"isSuspended"`
	SuspensionEnd   *time.Time `json:"suspensionEnd,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Creator is the enrichment attached to a video or comment.
type Creator struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	SubscriberCount int64  `json:"subscriberCount"`
}

// UnknownCreatorName is shown when a creator profile cannot be resolved.
const UnknownCreatorName = "Unknown Creator"

// UnknownCreator returns the placeholder used when enrichment fails for id.
func UnknownCreator(id string) Creator {
	return Creator{ID: id, DisplayName: UnknownCreatorName}
}

// CreatorFromProfile projects a profile onto the enrichment shape.
func CreatorFromProfile(p Profile) Creator {
	name := p.DisplayName
	if name == "" {
		name = p.Username
	}
	return Creator{
		ID:              p.ID,
		DisplayName:     name,
		AvatarURL:       p.AvatarURL,
		SubscriberCount: p.SubscriberCount,
	}
}

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	DefaultCategory = "Uncategorized"
)

// VideoSummary is the read projection of a video used by feeds and detail pages.
type VideoSummary struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	ThumbnailURL  *string    `json:"thumbnailUrl"`
	VideoURL      string     `json:"videoUrl,omitempty"`
	Category      string     `json:"category"`
	Creator       Creator    `json:"creator"`
	LikeCount     int64      `json:"likeCount"`
	CommentCount  int64      `json:"commentCount"`
	ViewCount     int64      `json:"viewCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	Visibility    string     `json:"visibility"`
	IsSuspended   bool       `json:"isSuspended"`
	SuspensionEnd *time.Time `json:"suspensionEnd,omitempty"`
	AssetStatus   string     `json:"assetStatus,omitempty"`
}

// Video is the writable record behind a VideoSummary.
type Video struct {
	ID           string
	CreatorID    string
	Title        string
	Description  string
	Category     string
	Visibility   string
	ThumbnailURL string
	VideoURL     string
	AssetStatus  string
	CreatedAt    time.Time
}

const (
	AssetStatusPending = "pending"
	AssetStatusReady   = "ready"
	AssetStatusFailed  = "failed"
)

// Comment is a single top-level remark on a video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	AuthorID  string    `json:"authorId"`
	Author    *Creator  `json:"author,omitempty"`
	Content   string    `json:"content"`
	IsPinned  bool      `json:"isPinned"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subscription links a subscriber to a creator.
type Subscription struct {
	SubscriberID string
	CreatorID    string
	CreatedAt    time.Time
}

// WatchHistory records the last time a viewer watched a video.
type WatchHistory struct {
	ViewerID  string
	VideoID   string
	WatchedAt time.Time
}

const (
	TargetUser  = "user"
	TargetVideo = "video"

	ActionSuspend   = "suspend"
	ActionUnsuspend = "unsuspend"
	ActionExpire    = "suspension_expired"

	// SystemActor identifies moderation actions taken by scheduled jobs.
	SystemActor = "system"
)

// Suspension is an active moderation hold on a user or video.
type Suspension struct {
	TargetKind string
	TargetID   string
	EndsAt     time.Time
}

// ModerationAction is an audit record for moderation decisions.
type ModerationAction struct {
	ID         string
	ActorID    string
	TargetKind string
	TargetID   string
	Action     string
	Reason     string
	CreatedAt  time.Time
}

// VideoAnalytics is a weekly rollup row.
type VideoAnalytics struct {
	VideoID   string    `json:"videoId"`
	WeekStart time.Time `json:"weekStart"`
	Views     int64     `json:"views"`
	Likes     int64     `json:"likes"`
	Comments  int64     `json:"comments"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	UserID           string    `json:"userId"`
}
