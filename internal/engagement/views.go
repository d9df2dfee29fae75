// Package engagement records views, likes and subscriptions.
package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clipverse/backend/internal/logging"
)

// DefaultRecordTimeout bounds a background view recording.
const DefaultRecordTimeout = 5 * time.Second

// ViewStore is the persistence needed to record a view.
type ViewStore interface {
	IncrementViews(ctx context.Context, videoID string) error
	UpsertWatchHistory(ctx context.Context, viewerID, videoID string, watchedAt time.Time) error
}

// Views records video views and the viewer's watch history.
type Views struct {
	store   ViewStore
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewViews returns a view recorder. A non-positive timeout uses DefaultRecordTimeout.
func NewViews(store ViewStore, timeout time.Duration) *Views {
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &Views{store: store, timeout: timeout, now: time.Now}
}

// IncrementVideoView bumps the view counter of videoID and, for a signed-in
// viewer, upserts the (viewer, video) watch history row with the current
// time. Anonymous views only touch the counter.
func (v *Views) IncrementVideoView(ctx context.Context, videoID, viewerID string) error {
	if err := v.store.IncrementViews(ctx, videoID); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if viewerID == "" {
		return nil
	}
	if err := v.store.UpsertWatchHistory(ctx, viewerID, videoID, v.now().UTC()); err != nil {
		return fmt.Errorf("upsert watch history: %w", err)
	}
	return nil
}

// Record runs IncrementVideoView in the background. It outlives ctx's
// cancellation but not its values; failures are logged.
func (v *Views) Record(ctx context.Context, videoID, viewerID string) {
	ctx = context.WithoutCancel(ctx)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()

		if err := v.IncrementVideoView(ctx, videoID, viewerID); err != nil {
			logging.FromContext(ctx).Warn("record video view failed",
				slog.String("videoId", videoID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until background recordings finish or ctx is done.
func (v *Views) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
