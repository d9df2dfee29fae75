package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/storage"
	"github.com/clipverse/backend/internal/thumbnail"
)

// Assets handles synchronous thumbnail work and asset cleanup.
type Assets struct {
	store   storage.Store
	metrics *metrics.Metrics
	edits   *thumbnail.Registry
	now     func() time.Time
}

// NewAssets returns an Assets over store. m may be nil.
func NewAssets(store storage.Store, m *metrics.Metrics) *Assets {
	return &Assets{store: store, metrics: m, edits: thumbnail.NewRegistry(), now: time.Now}
}

// CropThumbnail decodes an uploaded image and crops it to the thumbnail frame.
func (a *Assets) CropThumbnail(r io.Reader) (thumbnail.Result, error) {
	res, err := thumbnail.DecodeAndCrop(r)
	if a.metrics != nil {
		a.metrics.ThumbnailCrops.WithLabelValues(metrics.Outcome(err)).Inc()
	}
	return res, err
}

// ErrThumbnailSuperseded is returned when a newer edit of the same video's
// thumbnail started while this one was being cropped.
var ErrThumbnailSuperseded = apperr.E(apperr.KindConflict, "A newer thumbnail was selected for this video", nil)

// SelectThumbnail crops an edited thumbnail for videoID, stores it and hands
// the new URL to apply (typically the video row update). Concurrent edits of
// the same video resolve last-write-wins: an edit overtaken by a newer one
// fails with ErrThumbnailSuperseded and is neither stored nor applied, and
// an edit that was not overtaken finishes storing and applying before any
// newer one starts.
func (a *Assets) SelectThumbnail(ctx context.Context, videoID string, r io.Reader, apply func(ctx context.Context, url string) error) (string, error) {
	session, release := a.edits.Acquire(videoID)
	defer release()

	var url string
	_, err := session.Commit(ctx, r, func(ctx context.Context, res thumbnail.Result) error {
		stored, err := a.ReplaceThumbnail(ctx, videoID, res.Data)
		if err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, stored); err != nil {
				return err
			}
		}
		url = stored
		return nil
	})
	if errors.Is(err, thumbnail.ErrSuperseded) {
		err = ErrThumbnailSuperseded
	}
	if a.metrics != nil {
		a.metrics.ThumbnailCrops.WithLabelValues(metrics.Outcome(err)).Inc()
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

// ReplaceThumbnail overwrites the stored thumbnail of videoID and returns its
// new public URL.
func (a *Assets) ReplaceThumbnail(ctx context.Context, videoID string, data []byte) (string, error) {
	return saveThumbnail(ctx, a.store, videoID, data, a.now())
}

// Remove deletes every stored asset of videoID.
func (a *Assets) Remove(ctx context.Context, videoID string) error {
	return errors.Join(
		a.store.Delete(ctx, VideoKey(videoID)),
		a.store.Delete(ctx, ThumbnailKey(videoID)),
	)
}

// saveThumbnail stores data under the video's thumbnail key. The returned URL
// carries a version so caches pick up replacements of the same key.
func saveThumbnail(ctx context.Context, store storage.Store, videoID string, data []byte, now time.Time) (string, error) {
	url, err := store.Save(ctx, ThumbnailKey(videoID), bytes.NewReader(data), thumbnail.ContentType)
	if err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	return url + "?v=" + strconv.FormatInt(now.Unix(), 10), nil
}
