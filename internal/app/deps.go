package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/clipverse/backend/internal/auth"
	"github.com/clipverse/backend/internal/comments"
	"github.com/clipverse/backend/internal/config"
	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/engagement"
	"github.com/clipverse/backend/internal/events"
	"github.com/clipverse/backend/internal/handlers"
	"github.com/clipverse/backend/internal/httpserver"
	"github.com/clipverse/backend/internal/media"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/middleware"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/moderation"
	"github.com/clipverse/backend/internal/profiles"
	"github.com/clipverse/backend/internal/repositories"
	"github.com/clipverse/backend/internal/storage"
)

// services holds the long-lived collaborators of the serve command.
type services struct {
	deps      handlers.Dependencies
	tokens    *auth.Manager
	sweeper   *moderation.Sweeper
	ingestor  *media.Ingestor
	views     *engagement.Views
	publisher events.Publisher
}

// cachedProfiles serves batch creator lookups from a TTL cache while single
// profile reads go to the repository.
type cachedProfiles struct {
	*repositories.PostgresProfileRepository
	lookup *profiles.CachingLookup
}

func (c cachedProfiles) Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error) {
	return c.lookup.Profiles(ctx, ids)
}

// buildServices wires together concrete implementations used by the HTTP handlers.
func buildServices(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*services, error) {
	m := metrics.New()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure object storage: %w", err)
	}

	sessionStore := repositories.NewPostgresSessionStore(pool)
	tokens, err := auth.NewManager([]byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL, sessionStore)
	if err != nil {
		return nil, fmt.Errorf("configure sessions: %w", err)
	}

	profileRepo := repositories.NewPostgresProfileRepository(pool)
	profileStore := cachedProfiles{
		PostgresProfileRepository: profileRepo,
		lookup:                    profiles.NewCachingLookup(profileRepo, cfg.ProfileCacheTTL),
	}
	videoRepo := repositories.NewPostgresVideoRepository(pool)
	engagementRepo := repositories.NewPostgresEngagementRepository(pool)
	analyticsRepo := repositories.NewPostgresAnalyticsRepository(pool)

	publisher := events.Connect(cfg.NATSURL, logger)
	sweeper := moderation.NewSweeper(repositories.NewPostgresModerationRepository(pool), publisher, moderation.WithMetrics(m))
	ingestor := media.NewIngestor(store, videoRepo, publisher, m, media.Config{
		QueueSize: cfg.IngestQueueSize,
		Workers:   cfg.IngestWorkers,
	}, logger)
	views := engagement.NewViews(videoRepo, 0)

	deps := handlers.Dependencies{
		Users:         repositories.NewPostgresUserRepository(pool),
		Sessions:      tokens,
		Profiles:      profileStore,
		Roles:         profileRepo,
		Feed:          videoRepo,
		Subscriptions: engagementRepo,
		Videos:        videoRepo,
		Likes:         engagementRepo,
		Ingestor:      ingestor,
		Assets:        media.NewAssets(store, m),
		Views:         views,
		Comments:      comments.NewService(repositories.NewPostgresCommentRepository(pool), videoRepo, profileRepo, profileStore),
		Engagement:    engagement.NewService(engagementRepo, engagementRepo),
		Moderator:     sweeper,
		Analytics:     analyticsRepo,
		Settings:      repositories.NewPostgresSettingsRepository(pool),
		Metrics:       m,

		AuthLimiter:    middleware.NewKeyedRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateLimit, 0),
		CommentLimiter: middleware.NewKeyedRateLimiter(cfg.CommentRateLimit, time.Minute, cfg.CommentRateLimit, 0),

		MaxUploadBytes: cfg.MaxUploadBytes,
		SpoolDir:       os.TempDir(),
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.DB = pinger
	}

	return &services{
		deps:      deps,
		tokens:    tokens,
		sweeper:   sweeper,
		ingestor:  ingestor,
		views:     views,
		publisher: publisher,
	}, nil
}

// shutdown drains background work in dependency order: queued uploads, then
// pending view writes, then the event connection they publish on.
func (s *services) shutdown(ctx context.Context) error {
	return httpserver.Teardown(ctx,
		httpserver.Step{Name: "ingestor", Fn: s.ingestor.Shutdown},
		httpserver.Step{Name: "views", Fn: s.views.Wait},
		httpserver.Step{Name: "events", Fn: func(context.Context) error { return s.publisher.Close() }},
	)
}
