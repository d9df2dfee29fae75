package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/clipverse/backend/internal/media"
	"github.com/clipverse/backend/internal/middleware"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/repositories"
)

func withViewer(r *http.Request, viewerID string) *http.Request {
	return r.WithContext(middleware.WithViewerID(r.Context(), viewerID))
}

type videoStoreStub struct {
	videos     map[string]models.VideoSummary
	created    []models.Video
	deleted    []string
	thumbnails map[string]string
	createErr  error
}

func newVideoStoreStub(videos ...models.VideoSummary) *videoStoreStub {
	s := &videoStoreStub{videos: map[string]models.VideoSummary{}, thumbnails: map[string]string{}}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *videoStoreStub) Create(_ context.Context, video models.Video) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, video)
	s.videos[video.ID] = models.VideoSummary{ID: video.ID, Creator: models.Creator{ID: video.CreatorID}, Visibility: video.Visibility}
	return nil
}

func (s *videoStoreStub) Get(_ context.Context, id string) (models.VideoSummary, error) {
	v, ok := s.videos[id]
	if !ok {
		return models.VideoSummary{}, repositories.ErrNotFound
	}
	return v, nil
}

func (s *videoStoreStub) Delete(_ context.Context, id string) error {
	if _, ok := s.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *videoStoreStub) UpdateThumbnail(_ context.Context, id, url string) error {
	s.thumbnails[id] = url
	return nil
}

type rolesStub map[string]string

func (r rolesStub) RoleOf(_ context.Context, userID string) (string, error) {
	role, ok := r[userID]
	if !ok {
		return "", repositories.ErrNotFound
	}
	return role, nil
}

type ingestorStub struct {
	jobs []media.Job
	err  error
}

func (i *ingestorStub) Enqueue(job media.Job) error {
	if i.err != nil {
		return i.err
	}
	i.jobs = append(i.jobs, job)
	return nil
}

type settingsStub struct {
	mu     sync.Mutex
	values map[string]string
}

func newSettingsStub(kv ...string) *settingsStub {
	s := &settingsStub{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (s *settingsStub) All(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *settingsStub) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *settingsStub) Bool(_ context.Context, key string, fallback bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}

type viewRecorderStub struct {
	calls [][2]string
}

func (v *viewRecorderStub) Record(_ context.Context, videoID, viewerID string) {
	v.calls = append(v.calls, [2]string{videoID, viewerID})
}

type analyticsStub struct {
	week time.Time
	rows []models.VideoAnalytics
}

func (a *analyticsStub) AggregateWeekly(_ context.Context, week time.Time) (int64, error) {
	a.week = week
	return 3, nil
}

func (a *analyticsStub) ForVideo(context.Context, string) ([]models.VideoAnalytics, error) {
	return a.rows, nil
}

type formFile struct {
	field       string
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
