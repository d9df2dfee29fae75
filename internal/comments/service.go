package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/models"
)

// MaxContentLength bounds a comment body in characters.
const MaxContentLength = 2000

// Store persists comments. SetPinned with pinned=true must clear any other
// pinned comment on the video in the same transaction.
type Store interface {
	ListByVideo(ctx context.Context, videoID string) ([]models.Comment, error)
	Get(ctx context.Context, commentID string) (models.Comment, error)
	Create(ctx context.Context, comment models.Comment) error
	Delete(ctx context.Context, commentID string) error
	SetPinned(ctx context.Context, videoID, commentID string, pinned bool) error
}

// Videos resolves the creator that owns a video.
type Videos interface {
	OwnerOf(ctx context.Context, videoID string) (string, error)
}

// Roles resolves the role of a user.
type Roles interface {
	RoleOf(ctx context.Context, userID string) (string, error)
}

// AuthorLookup attaches author display data to comments.
type AuthorLookup interface {
	Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error)
}

// PinResult reports the outcome of a pin toggle.
type PinResult struct {
	Success bool
	Err     error
}

// Service applies authorization and validation on top of a Store.
type Service struct {
	store   Store
	videos  Videos
	roles   Roles
	authors AuthorLookup
	now     func() time.Time
}

// NewService wires a comment service. authors may be nil.
func NewService(store Store, videos Videos, roles Roles, authors AuthorLookup) *Service {
	return &Service{store: store, videos: videos, roles: roles, authors: authors, now: time.Now}
}

// List returns the comments on a video in display order.
func (s *Service) List(ctx context.Context, videoID string) ([]models.Comment, error) {
	list, err := s.store.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	s.attachAuthors(ctx, list)
	Sort(list)
	return list, nil
}

// Create posts a comment by viewerID.
func (s *Service) Create(ctx context.Context, viewerID, videoID, content string) (models.Comment, error) {
	if viewerID == "" {
		return models.Comment{}, apperr.E(apperr.KindAuthRequired, "Sign in to comment", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, apperr.E(apperr.KindInvalid, "Comment cannot be empty", nil)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.Comment{}, apperr.E(apperr.KindInvalid, fmt.Sprintf("Comment must be at most %d characters", MaxContentLength), nil)
	}
	if _, err := s.videos.OwnerOf(ctx, videoID); err != nil {
		return models.Comment{}, fmt.Errorf("resolve video: %w", err)
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		AuthorID:  viewerID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, comment); err != nil {
		return models.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// Delete removes a comment. The author, the video's creator and admins may
// delete.
func (s *Service) Delete(ctx context.Context, viewerID, videoID, commentID string) error {
	if viewerID == "" {
		return apperr.E(apperr.KindAuthRequired, "Sign in to manage comments", nil)
	}
	comment, err := s.commentOn(ctx, videoID, commentID)
	if err != nil {
		return err
	}

	if comment.AuthorID != viewerID {
		owner, err := s.videos.OwnerOf(ctx, videoID)
		if err != nil {
			return fmt.Errorf("resolve video owner: %w", err)
		}
		if owner != viewerID {
			admin, err := s.isAdmin(ctx, viewerID)
			if err != nil {
				return err
			}
			if !admin {
				return apperr.E(apperr.KindForbidden, "You can only delete your own comments", nil)
			}
		}
	}

	if err := s.store.Delete(ctx, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// TogglePinStatus pins the comment when currentlyPinned is false and unpins
// it otherwise. Only the video's creator may pin; pinning replaces any
// previously pinned comment on the video.
func (s *Service) TogglePinStatus(ctx context.Context, viewerID, commentID, videoID string, currentlyPinned bool) PinResult {
	logger := logging.FromContext(ctx).With(
		slog.String("videoId", videoID),
		slog.String("commentId", commentID),
		slog.Bool("pin", !currentlyPinned),
	)

	if err := s.togglePin(ctx, viewerID, commentID, videoID, !currentlyPinned); err != nil {
		logger.Warn("toggle comment pin failed", "error", err)
		return PinResult{Err: err}
	}
	return PinResult{Success: true}
}

func (s *Service) togglePin(ctx context.Context, viewerID, commentID, videoID string, pin bool) error {
	if viewerID == "" {
		return apperr.E(apperr.KindAuthRequired, "Sign in to pin comments", nil)
	}

	owner, err := s.videos.OwnerOf(ctx, videoID)
	if err != nil {
		return fmt.Errorf("resolve video owner: %w", err)
	}
	if owner != viewerID {
		return apperr.E(apperr.KindForbidden, "Only the creator can pin comments on this video", nil)
	}

	if _, err := s.commentOn(ctx, videoID, commentID); err != nil {
		return err
	}

	if err := s.store.SetPinned(ctx, videoID, commentID, pin); err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	return nil
}

func (s *Service) commentOn(ctx context.Context, videoID, commentID string) (models.Comment, error) {
	comment, err := s.store.Get(ctx, commentID)
	if err != nil {
		return models.Comment{}, fmt.Errorf("load comment: %w", err)
	}
	if comment.VideoID != videoID {
		return models.Comment{}, apperr.E(apperr.KindNotFound, "Comment not found", nil)
	}
	return comment, nil
}

func (s *Service) isAdmin(ctx context.Context, userID string) (bool, error) {
	if s.roles == nil {
		return false, nil
	}
	role, err := s.roles.RoleOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("resolve role: %w", err)
	}
	return role == models.RoleAdmin, nil
}

func (s *Service) attachAuthors(ctx context.Context, list []models.Comment) {
	if len(list) == 0 {
		return
	}

	ids := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		if _, ok := seen[c.AuthorID]; ok {
			continue
		}
		seen[c.AuthorID] = struct{}{}
		ids = append(ids, c.AuthorID)
	}

	var creators map[string]models.Creator
	if s.authors != nil {
		var err error
		creators, err = s.authors.Profiles(ctx, ids)
		if err != nil {
			logging.FromContext(ctx).Warn("comment author lookup failed", "error", err)
		}
	}

	for i := range list {
		creator, ok := creators[list[i].AuthorID]
		if !ok {
			creator = models.UnknownCreator(list[i].AuthorID)
		}
		list[i].Author = &creator
	}
}
