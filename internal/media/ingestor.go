// Package media moves uploaded videos and thumbnails into object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/events"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/storage"
)

var (
	// ErrIngestorClosed is returned by Enqueue after Shutdown.
	ErrIngestorClosed = errors.New("asset ingestor closed")
	// ErrQueueFull is returned when no worker can accept the upload.
	ErrQueueFull = apperr.E(apperr.KindTransient, "Uploads are busy, please try again shortly.", nil)
)

// AssetUpdater persists ingestion results on the video record.
type AssetUpdater interface {
	MarkAssetReady(ctx context.Context, videoID, videoURL, thumbnailURL string) error
	MarkAssetFailed(ctx context.Context, videoID string) error
}

// Job is one uploaded video waiting to be stored. SourcePath is a spooled
// temporary file owned by the ingestor once enqueued; it is removed after
// processing.
type Job struct {
	VideoID     string
	CreatorID   string
	SourcePath  string
	ContentType string
	Thumbnail   []byte
}

// AssetEvent is published when a job finishes.
type AssetEvent struct {
	VideoID      string `json:"videoId"`
	CreatorID    string `json:"creatorId"`
	VideoURL     string `json:"videoUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Config controls the concurrency characteristics of the ingestor.
type Config struct {
	QueueSize int
	Workers   int
	// Timeout bounds the storage uploads of one job.
	Timeout time.Duration
}

// Ingestor uploads queued videos with a fixed pool of workers.
type Ingestor struct {
	store     storage.Store
	updater   AssetUpdater
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewIngestor starts the worker pool. A nil publisher disables events and a
// nil metrics disables counters.
func NewIngestor(store storage.Store, updater AssetUpdater, publisher events.Publisher, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Ingestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	ing := &Ingestor{
		store:     store,
		updater:   updater,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		timeout:   cfg.Timeout,
		jobs:      make(chan Job, cfg.QueueSize),
		ctx:       logging.WithLogger(ctx, logger),
		cancel:    cancel,
	}

	ing.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go ing.worker()
	}
	return ing
}

// Enqueue schedules job without blocking. On error the caller still owns
// job.SourcePath.
func (i *Ingestor) Enqueue(job Job) error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return ErrIngestorClosed
	}
	select {
	case i.jobs <- job:
		return nil
	default:
		i.count("rejected")
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for the queue to drain. When ctx
// ends first, in-flight uploads are cancelled and the rest are marked failed.
func (i *Ingestor) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.jobs)
	}
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		i.cancel()
		return nil
	case <-ctx.Done():
		i.cancel()
		<-done
		return ctx.Err()
	}
}

func (i *Ingestor) worker() {
	defer i.wg.Done()
	for job := range i.jobs {
		i.handle(job)
	}
}

func (i *Ingestor) handle(job Job) {
	ctx, span := logging.StartSpan(i.ctx, "media.ingest", slog.String("video_id", job.VideoID))
	defer func() {
		if err := os.Remove(job.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Warn("remove spooled upload", slog.Any("error", err))
		}
	}()

	videoURL, thumbURL, err := i.upload(ctx, job)
	if err == nil {
		err = i.record(ctx, func(ctx context.Context) error {
			return i.updater.MarkAssetReady(ctx, job.VideoID, videoURL, thumbURL)
		})
	}
	span.EndErr(err)

	if err != nil {
		logging.FromContext(ctx).Error("asset ingestion failed", slog.Any("error", err))
		if failErr := i.record(ctx, func(ctx context.Context) error {
			return i.updater.MarkAssetFailed(ctx, job.VideoID)
		}); failErr != nil {
			logging.FromContext(ctx).Error("record asset failure", slog.Any("error", failErr))
		}
		i.count("failed")
		i.publish(ctx, events.SubjectAssetFailed, AssetEvent{VideoID: job.VideoID, CreatorID: job.CreatorID, Error: err.Error()})
		return
	}

	i.count("ready")
	i.publish(ctx, events.SubjectAssetReady, AssetEvent{
		VideoID:      job.VideoID,
		CreatorID:    job.CreatorID,
		VideoURL:     videoURL,
		ThumbnailURL: thumbURL,
	})
}

func (i *Ingestor) upload(ctx context.Context, job Job) (string, string, error) {
	if err := i.ctx.Err(); err != nil {
		return "", "", fmt.Errorf("ingestor stopped: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	f, err := os.Open(job.SourcePath)
	if err != nil {
		return "", "", fmt.Errorf("open spooled upload: %w", err)
	}
	defer f.Close()

	videoURL, err := i.store.Save(ctx, VideoKey(job.VideoID), f, job.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("store video: %w", err)
	}

	var thumbURL string
	if len(job.Thumbnail) > 0 {
		thumbURL, err = saveThumbnail(ctx, i.store, job.VideoID, job.Thumbnail, time.Now())
		if err != nil {
			return "", "", err
		}
	}
	return videoURL, thumbURL, nil
}

// record runs a bookkeeping write that must survive a cancelled pool.
func (i *Ingestor) record(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return fn(ctx)
}

func (i *Ingestor) publish(ctx context.Context, subject string, payload AssetEvent) {
	err := i.publisher.Publish(context.WithoutCancel(ctx), subject, payload)
	if i.metrics != nil {
		i.metrics.EventPublishTotal.WithLabelValues(subject, metrics.Outcome(err)).Inc()
	}
	if err != nil {
		logging.FromContext(ctx).Warn("publish event failed", slog.String("subject", subject), slog.Any("error", err))
	}
}

func (i *Ingestor) count(status string) {
	if i.metrics != nil {
		i.metrics.IngestJobsTotal.WithLabelValues(status).Inc()
	}
}

// VideoKey is the object key of a video's source file.
func VideoKey(videoID string) string { return "videos/" + videoID + "/source" }

// ThumbnailKey is the object key of a video's thumbnail.
func ThumbnailKey(videoID string) string { return "videos/" + videoID + "/thumbnail.jpg" }
