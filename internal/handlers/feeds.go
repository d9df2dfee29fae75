package handlers

import (
	"net/http"
	"strconv"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/feed"
	"github.com/clipverse/backend/internal/metrics"
	"github.com/clipverse/backend/internal/middleware"
)

// maxPageSize caps the pageSize query parameter.
const maxPageSize = 50

// FeedHandler serves pages of the explore, trending and subscriptions feeds.
// Items carry only the creator id; clients resolve creator profiles.
type FeedHandler struct {
	Videos        feed.Source
	Subscriptions feed.SubscriptionSource
	Metrics       *metrics.Metrics
}

// Page handles GET /api/v1/feeds/{variant}?page=N&pageSize=M.
func (h FeedHandler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	variant, err := feed.ParseVariant(r.PathValue("variant"))
	if err != nil {
		respondError(ctx, w, err, "")
		return
	}

	q := feed.Query{Variant: variant, Page: 1, PageSize: feed.PageSize}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			respondError(ctx, w, apperr.E(apperr.KindInvalid, "page must be a positive integer", err), "")
			return
		}
		q.Page = page
	}
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxPageSize {
			respondError(ctx, w, apperr.E(apperr.KindInvalid, "pageSize must be between 1 and 50", err), "")
			return
		}
		q.PageSize = size
	}
	if err := q.Validate(); err != nil {
		respondError(ctx, w, err, "")
		return
	}

	if variant == feed.Subscriptions {
		viewerID := middleware.ViewerID(ctx)
		if viewerID == "" {
			respondError(ctx, w, apperr.E(apperr.KindAuthRequired, "Sign in to see your subscriptions", nil), "")
			return
		}
		creators, err := h.Subscriptions.SubscribedCreators(ctx, viewerID)
		if err != nil {
			respondError(ctx, w, err, "unable to load subscriptions")
			return
		}
		q.CreatorIDs = creators
	}

	page, err := h.Videos.FetchPage(ctx, q)
	if err != nil {
		respondError(ctx, w, err, "unable to load feed")
		return
	}
	if h.Metrics != nil {
		h.Metrics.FeedPagesServed.WithLabelValues(string(variant)).Inc()
	}

	respondJSON(ctx, w, http.StatusOK, page)
}
