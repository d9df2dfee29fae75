package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/media"
	"github.com/clipverse/backend/internal/middleware"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/repositories"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 5000
	// multipartMemory is the part of an upload kept in memory before spooling.
	multipartMemory = 32 << 20
	// DefaultMaxUploadBytes bounds an upload request when no limit is configured.
	DefaultMaxUploadBytes = 512 << 20
)

// VideoHandler provides the upload, video page and view endpoints.
type VideoHandler struct {
	Videos         VideoStore
	Profiles       ProfileStore
	Roles          RoleResolver
	Likes          LikeReader
	Ingestor       AssetIngestor
	Assets         AssetManager
	Views          ViewRecorder
	Analytics      AnalyticsStore
	Settings       SettingsStore
	MaxUploadBytes int64
	SpoolDir       string
	NowFunc        func() time.Time
}

type videoResponse struct {
	Video models.VideoSummary `json:"video"`
	Liked bool                `json:"liked"`
}

type uploadResponse struct {
	Video            models.VideoSummary `json:"video"`
	ThumbnailPreview string              `json:"thumbnailPreview,omitempty"`
}

type thumbnailResponse struct {
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Upload handles POST /api/v1/videos. The multipart form carries the "video"
// file, an optional "thumbnail" image and the title, description, category
// and visibility fields. The video is stored in the background; the response
// describes the pending record.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	viewerID, err := requireViewer(r, "Sign in to upload videos")
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}
	if !settingEnabled(ctx, h.Settings, repositories.SettingUploadsEnabled) {
		respondError(ctx, w, apperr.E(apperr.KindForbidden, "Uploads are currently disabled", nil), "")
		return
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload is too large", Kind: apperr.KindInvalid})
			return
		}
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "invalid upload form", err), "")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.Warn("remove multipart files", "error", err)
		}
	}()

	video, err := h.videoFromForm(r, viewerID)
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "a video file is required", err), "")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "the uploaded file is not a video", nil), "")
		return
	}

	var preview string
	var thumbData []byte
	if thumbFile, _, err := r.FormFile("thumbnail"); err == nil {
		result, cropErr := h.Assets.CropThumbnail(thumbFile)
		thumbFile.Close()
		if cropErr != nil {
			respondError(ctx, w, cropErr, "unable to process thumbnail")
			return
		}
		thumbData = result.Data
		preview = result.PreviewURL
	} else if !errors.Is(err, http.ErrMissingFile) {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "invalid thumbnail", err), "")
		return
	}

	spooled, err := h.spool(file)
	if err != nil {
		respondError(ctx, w, err, "unable to receive upload")
		return
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		removeSpool(ctx, spooled)
		respondError(ctx, w, err, "unable to create video")
		return
	}

	job := media.Job{
		VideoID:     video.ID,
		CreatorID:   viewerID,
		SourcePath:  spooled,
		ContentType: contentType,
		Thumbnail:   thumbData,
	}
	if err := h.Ingestor.Enqueue(job); err != nil {
		removeSpool(ctx, spooled)
		if delErr := h.Videos.Delete(context.WithoutCancel(ctx), video.ID); delErr != nil {
			logger.Error("remove unqueued video", "videoId", video.ID, "error", delErr)
		}
		respondError(ctx, w, err, "unable to queue upload")
		return
	}

	logger.Info("video upload queued", "videoId", video.ID, "bytes", header.Size)
	respondJSON(ctx, w, http.StatusAccepted, uploadResponse{
		Video: models.VideoSummary{
			ID:          video.ID,
			Title:       video.Title,
			Description: video.Description,
			Category:    video.Category,
			Creator:     models.Creator{ID: viewerID},
			CreatedAt:   video.CreatedAt,
			Visibility:  video.Visibility,
			AssetStatus: video.AssetStatus,
		},
		ThumbnailPreview: preview,
	})
}

func (h VideoHandler) videoFromForm(r *http.Request, creatorID string) (models.Video, error) {
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		return models.Video{}, apperr.E(apperr.KindInvalid, "a title is required", nil)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return models.Video{}, apperr.E(apperr.KindInvalid, fmt.Sprintf("title must be at most %d characters", maxTitleLength), nil)
	}
	description := strings.TrimSpace(r.FormValue("description"))
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return models.Video{}, apperr.E(apperr.KindInvalid, fmt.Sprintf("description must be at most %d characters", maxDescriptionLength), nil)
	}

	visibility := strings.ToLower(strings.TrimSpace(r.FormValue("visibility")))
	switch visibility {
	case "":
		visibility = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return models.Video{}, apperr.E(apperr.KindInvalid, "visibility must be public or private", nil)
	}

	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		category = models.DefaultCategory
	}

	return models.Video{
		ID:          uuid.NewString(),
		CreatorID:   creatorID,
		Title:       title,
		Description: description,
		Category:    category,
		Visibility:  visibility,
		AssetStatus: models.AssetStatusPending,
		CreatedAt:   h.now(),
	}, nil
}

func (h VideoHandler) spool(src multipart.File) (string, error) {
	f, err := os.CreateTemp(h.SpoolDir, "clipverse-upload-*")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return f.Name(), nil
}

func removeSpool(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.FromContext(ctx).Warn("remove spooled upload", "error", err)
	}
}

// Get handles GET /api/v1/videos/{id}. Private and suspended videos are only
// visible to their creator and to admins.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.ViewerID(ctx)

	video, err := h.Videos.Get(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err, "unable to load video")
		return
	}

	if video.Visibility != models.VisibilityPublic || video.IsSuspended {
		allowed, err := h.isOwnerOrAdmin(ctx, viewerID, video.Creator.ID)
		if err != nil {
			respondError(ctx, w, err, "unable to load video")
			return
		}
		if !allowed {
			respondError(ctx, w, apperr.E(apperr.KindNotFound, "video not found", nil), "")
			return
		}
	}

	if h.Profiles != nil {
		creators, err := h.Profiles.Profiles(ctx, []string{video.Creator.ID})
		if err != nil {
			logging.FromContext(ctx).Warn("resolve video creator", "error", err)
		}
		if c, ok := creators[video.Creator.ID]; ok {
			video.Creator = c
		} else {
			video.Creator = models.UnknownCreator(video.Creator.ID)
		}
	}

	resp := videoResponse{Video: video}
	if viewerID != "" && h.Likes != nil {
		liked, err := h.Likes.Liked(ctx, viewerID, video.ID)
		if err != nil {
			logging.FromContext(ctx).Warn("resolve like state", "error", err)
		}
		resp.Liked = liked
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

// ReplaceThumbnail handles PUT /api/v1/videos/{id}/thumbnail with a multipart
// "thumbnail" image. Only the creator may replace it.
func (h VideoHandler) ReplaceThumbnail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")

	viewerID, err := requireViewer(r, "Sign in to edit videos")
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}
	video, err := h.Videos.Get(ctx, videoID)
	if err != nil {
		respondError(ctx, w, err, "unable to load video")
		return
	}
	if video.Creator.ID != viewerID {
		respondError(ctx, w, apperr.E(apperr.KindForbidden, "Only the creator can change the thumbnail", nil), "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, multipartMemory)
	file, _, err := r.FormFile("thumbnail")
	if err != nil {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "a thumbnail image is required", err), "")
		return
	}
	defer file.Close()

	// The row update runs inside the edit so a newer edit of the same video
	// cannot be overwritten by this one.
	url, err := h.Assets.SelectThumbnail(ctx, videoID, file, func(ctx context.Context, url string) error {
		return h.Videos.UpdateThumbnail(ctx, videoID, url)
	})
	if err != nil {
		respondError(ctx, w, err, "unable to save thumbnail")
		return
	}

	respondJSON(ctx, w, http.StatusOK, thumbnailResponse{ThumbnailURL: url})
}

// Delete handles DELETE /api/v1/videos/{id}. The creator and admins may delete.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")

	viewerID, err := requireViewer(r, "Sign in to manage videos")
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}
	video, err := h.Videos.Get(ctx, videoID)
	if err != nil {
		respondError(ctx, w, err, "unable to load video")
		return
	}
	allowed, err := h.isOwnerOrAdmin(ctx, viewerID, video.Creator.ID)
	if err != nil {
		respondError(ctx, w, err, "unable to delete video")
		return
	}
	if !allowed {
		respondError(ctx, w, apperr.E(apperr.KindForbidden, "You cannot delete this video", nil), "")
		return
	}

	if err := h.Videos.Delete(ctx, videoID); err != nil {
		respondError(ctx, w, err, "unable to delete video")
		return
	}
	if h.Assets != nil {
		if err := h.Assets.Remove(ctx, videoID); err != nil {
			logging.FromContext(ctx).Warn("remove video assets", "videoId", videoID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordView handles POST /api/v1/videos/{id}/views. The view is counted in
// the background; signed-in viewers also get a watch history entry.
func (h VideoHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.Views.Record(ctx, r.PathValue("id"), middleware.ViewerID(ctx))
	w.WriteHeader(http.StatusAccepted)
}

// VideoAnalytics handles GET /api/v1/videos/{id}/analytics for the creator and admins.
func (h VideoHandler) VideoAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")

	viewerID, err := requireViewer(r, "Sign in to view analytics")
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}
	video, err := h.Videos.Get(ctx, videoID)
	if err != nil {
		respondError(ctx, w, err, "unable to load video")
		return
	}
	allowed, err := h.isOwnerOrAdmin(ctx, viewerID, video.Creator.ID)
	if err != nil {
		respondError(ctx, w, err, "unable to load analytics")
		return
	}
	if !allowed {
		respondError(ctx, w, apperr.E(apperr.KindForbidden, "Only the creator can view analytics", nil), "")
		return
	}

	rows, err := h.Analytics.ForVideo(ctx, videoID)
	if err != nil {
		respondError(ctx, w, err, "unable to load analytics")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"weeks": rows})
}

func (h VideoHandler) isOwnerOrAdmin(ctx context.Context, viewerID, creatorID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	if viewerID == creatorID {
		return true, nil
	}
	return isAdmin(ctx, h.Roles, viewerID)
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func isAdmin(ctx context.Context, roles RoleResolver, userID string) (bool, error) {
	if roles == nil || userID == "" {
		return false, nil
	}
	role, err := roles.RoleOf(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve role: %w", err)
	}
	return role == models.RoleAdmin, nil
}

// settingEnabled reads a boolean platform setting. A missing store or a
// failed read leaves the feature enabled.
func settingEnabled(ctx context.Context, settings SettingsStore, key string) bool {
	if settings == nil {
		return true
	}
	enabled, err := settings.Bool(ctx, key, true)
	if err != nil {
		logging.FromContext(ctx).Warn("read platform setting", "key", key, "error", err)
		return true
	}
	return enabled
}
