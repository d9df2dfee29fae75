package handlers

import (
	"context"
	"net/http"

	"github.com/clipverse/backend/internal/feed"
	"github.com/clipverse/backend/internal/middleware"
)

// EngagementHandler records likes and subscriptions. Every write is
// idempotent and answers 204.
type EngagementHandler struct {
	Engagement    EngagementService
	Subscriptions feed.SubscriptionSource
}

type subscriptionsResponse struct {
	CreatorIDs []string `json:"creatorIds"`
}

// ListSubscriptions handles GET /api/v1/me/subscriptions.
func (h EngagementHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID, err := requireViewer(r, "Sign in to see your subscriptions")
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}

	creators, err := h.Subscriptions.SubscribedCreators(ctx, viewerID)
	if err != nil {
		respondError(ctx, w, err, "unable to load subscriptions")
		return
	}
	if creators == nil {
		creators = []string{}
	}
	respondJSON(ctx, w, http.StatusOK, subscriptionsResponse{CreatorIDs: creators})
}

// Like handles POST /api/v1/videos/{id}/like.
func (h EngagementHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Engagement.Like, "unable to like video")
}

// Unlike handles DELETE /api/v1/videos/{id}/like.
func (h EngagementHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Engagement.Unlike, "unable to remove like")
}

// Subscribe handles POST /api/v1/creators/{id}/subscription.
func (h EngagementHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Engagement.Subscribe, "unable to subscribe")
}

// Unsubscribe handles DELETE /api/v1/creators/{id}/subscription.
func (h EngagementHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Engagement.Unsubscribe, "unable to unsubscribe")
}

func (h EngagementHandler) apply(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, viewerID, targetID string) error, fallback string) {
	ctx := r.Context()
	if err := op(ctx, middleware.ViewerID(ctx), r.PathValue("id")); err != nil {
		respondError(ctx, w, err, fallback)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
