package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipverse/backend/internal/config"
	"github.com/clipverse/backend/internal/db"
	"github.com/clipverse/backend/internal/events"
	"github.com/clipverse/backend/internal/handlers"
	"github.com/clipverse/backend/internal/httpserver"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/middleware"
	"github.com/clipverse/backend/internal/moderation"
	"github.com/clipverse/backend/internal/repositories"
)

const usage = "expected command: serve, migrate, seed, sweep, browse, or crop"

// Run bootstraps the Clipverse backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	case "sweep":
		return runSweep(ctx)
	case "browse":
		return runBrowse(ctx, os.Stdin, os.Stdout)
	case "crop":
		return runCrop(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q: %s", args[0], usage)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := buildServices(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, svc.deps)

	// The metrics middleware sits inside the others so it sees the pattern
	// the mux matched.
	handler := middleware.Chain(svc.deps.Metrics.Middleware(mux),
		middleware.RequestLogger(logger),
		middleware.Authenticate(svc.tokens),
	)

	if cfg.SweepInterval > 0 {
		go func() {
			if err := svc.sweeper.Run(ctx, cfg.SweepInterval); err != nil {
				logger.Error("suspension sweeper stopped", "error", err)
			}
		}()
	}

	srv := httpserver.New(cfg.AppPort, handler, logger)
	logger.Info("starting http server", "port", cfg.AppPort, "storage", cfg.StorageDriver)

	runErr := srv.Run(ctx, nil)
	if err := svc.shutdown(ctx); err != nil {
		logger.Warn("background work did not drain cleanly", "error", err)
	}
	return runErr
}

// runSweep lifts expired suspensions and purges expired refresh sessions once.
func runSweep(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	publisher := events.Connect(cfg.NATSURL, logger)
	defer publisher.Close()

	sweeper := moderation.NewSweeper(repositories.NewPostgresModerationRepository(pool), publisher)
	res, sweepErr := sweeper.Sweep(ctx, time.Now().UTC())
	fmt.Printf("lifted %d user and %d video suspensions\n", res.Users, res.Videos)

	purged, err := repositories.NewPostgresSessionStore(pool).DeleteExpired(ctx)
	if err != nil {
		return errors.Join(sweepErr, fmt.Errorf("purge expired sessions: %w", err))
	}
	fmt.Printf("purged %d expired sessions\n", purged)
	return sweepErr
}
