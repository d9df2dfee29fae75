package handlers

import (
	"net/http"

	"github.com/clipverse/backend/internal/feed"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	DB            Pinger
	Users         UserStore
	Sessions      SessionManager
	Profiles      ProfileStore
	Roles         RoleResolver
	Feed          feed.Source
	Subscriptions feed.SubscriptionSource
	Videos        VideoStore
	Likes         LikeReader
	Ingestor      AssetIngestor
	Assets        AssetManager
	Views         ViewRecorder
	Comments      CommentService
	Engagement    EngagementService
	Moderator     Moderator
	Analytics     AnalyticsStore
	Settings      SettingsStore
	Metrics       *metrics.Metrics

	AuthLimiter    middleware.RateLimiter
	CommentLimiter middleware.RateLimiter

	MaxUploadBytes int64
	SpoolDir       string
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DB: deps.DB}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	feeds := FeedHandler{Videos: deps.Feed, Subscriptions: deps.Subscriptions, Metrics: deps.Metrics}
	profiles := ProfileHandler{Profiles: deps.Profiles}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Profiles:       deps.Profiles,
		Roles:          deps.Roles,
		Likes:          deps.Likes,
		Ingestor:       deps.Ingestor,
		Assets:         deps.Assets,
		Views:          deps.Views,
		Analytics:      deps.Analytics,
		Settings:       deps.Settings,
		MaxUploadBytes: deps.MaxUploadBytes,
		SpoolDir:       deps.SpoolDir,
	}
	comments := CommentHandler{Comments: deps.Comments, Settings: deps.Settings}
	engagement := EngagementHandler{Engagement: deps.Engagement, Subscriptions: deps.Subscriptions}
	admin := AdminHandler{Moderator: deps.Moderator, Analytics: deps.Analytics, Settings: deps.Settings, Roles: deps.Roles}

	authLimit := middleware.RateLimit(deps.AuthLimiter, "auth")
	commentLimit := middleware.RateLimit(deps.CommentLimiter, "comments")

	mux.HandleFunc("GET /healthz", health.Handle)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.Handle("POST /api/v1/auth/signup", authLimit(http.HandlerFunc(auth.SignUp)))
	mux.Handle("POST /api/v1/auth/login", authLimit(http.HandlerFunc(auth.Login)))
	mux.Handle("POST /api/v1/auth/refresh", authLimit(http.HandlerFunc(auth.Refresh)))
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)

	mux.HandleFunc("GET /api/v1/feeds/{variant}", feeds.Page)
	mux.HandleFunc("GET /api/v1/profiles/{id}", profiles.Get)

	mux.HandleFunc("POST /api/v1/videos", videos.Upload)
	mux.HandleFunc("GET /api/v1/videos/{id}", videos.Get)
	mux.HandleFunc("DELETE /api/v1/videos/{id}", videos.Delete)
	mux.HandleFunc("PUT /api/v1/videos/{id}/thumbnail", videos.ReplaceThumbnail)
	mux.HandleFunc("POST /api/v1/videos/{id}/views", videos.RecordView)
	mux.HandleFunc("GET /api/v1/videos/{id}/analytics", videos.VideoAnalytics)

	mux.HandleFunc("GET /api/v1/videos/{id}/comments", comments.List)
	mux.Handle("POST /api/v1/videos/{id}/comments", commentLimit(http.HandlerFunc(comments.Create)))
	mux.HandleFunc("POST /api/v1/videos/{id}/comments/{commentId}/pin", comments.TogglePin)
	mux.HandleFunc("DELETE /api/v1/videos/{id}/comments/{commentId}", comments.Delete)

	mux.HandleFunc("POST /api/v1/videos/{id}/like", engagement.Like)
	mux.HandleFunc("DELETE /api/v1/videos/{id}/like", engagement.Unlike)
	mux.HandleFunc("POST /api/v1/creators/{id}/subscription", engagement.Subscribe)
	mux.HandleFunc("DELETE /api/v1/creators/{id}/subscription", engagement.Unsubscribe)
	mux.HandleFunc("GET /api/v1/me/subscriptions", engagement.ListSubscriptions)

	mux.HandleFunc("POST /api/v1/admin/suspensions", admin.Suspend)
	mux.HandleFunc("DELETE /api/v1/admin/suspensions/{kind}/{id}", admin.Unsuspend)
	mux.HandleFunc("POST /api/v1/admin/analytics/rollup", admin.Rollup)
	mux.HandleFunc("GET /api/v1/settings", admin.ListSettings)
	mux.HandleFunc("PUT /api/v1/admin/settings/{key}", admin.PutSetting)
}
