package handlers

import (
	"net/http"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/middleware"
	"github.com/clipverse/backend/internal/repositories"
)

// CommentHandler serves the comment thread of a video.
type CommentHandler struct {
	Comments CommentService
	Settings SettingsStore
}

type createCommentRequest struct {
	Content string `json:"content"`
}

type pinRequest struct {
	CurrentlyPinned bool `json:"currentlyPinned"`
}

type pinResponse struct {
	Pinned bool `json:"pinned"`
}

// List handles GET /api/v1/videos/{id}/comments.
func (h CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.Comments.List(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err, "unable to load comments")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"comments": list})
}

// Create handles POST /api/v1/videos/{id}/comments.
func (h CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !settingEnabled(ctx, h.Settings, repositories.SettingCommentsEnabled) {
		respondError(ctx, w, apperr.E(apperr.KindForbidden, "Comments are currently disabled", nil), "")
		return
	}

	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	comment, err := h.Comments.Create(ctx, middleware.ViewerID(ctx), r.PathValue("id"), req.Content)
	if err != nil {
		respondError(ctx, w, err, "unable to post comment")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, comment)
}

// TogglePin handles POST /api/v1/videos/{id}/comments/{commentId}/pin. The
// body states whether the comment is pinned as the viewer last saw it; the
// comment ends up in the opposite state.
func (h CommentHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	res := h.Comments.TogglePinStatus(ctx, middleware.ViewerID(ctx), r.PathValue("commentId"), r.PathValue("id"), req.CurrentlyPinned)
	if !res.Success {
		respondError(ctx, w, res.Err, "unable to update pin")
		return
	}
	respondJSON(ctx, w, http.StatusOK, pinResponse{Pinned: !req.CurrentlyPinned})
}

// Delete handles DELETE /api/v1/videos/{id}/comments/{commentId}.
func (h CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.Comments.Delete(ctx, middleware.ViewerID(ctx), r.PathValue("id"), r.PathValue("commentId"))
	if err != nil {
		respondError(ctx, w, err, "unable to delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
