package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/middleware"
	"github.com/clipverse/backend/internal/repositories"
)

// AdminHandler exposes moderation, analytics and platform settings.
type AdminHandler struct {
	Moderator Moderator
	Analytics AnalyticsStore
	Settings  SettingsStore
	Roles     RoleResolver
	NowFunc   func() time.Time
}

type suspendRequest struct {
	Kind     string    `json:"kind"`
	TargetID string    `json:"targetId"`
	Until    time.Time `json:"until"`
	Reason   string    `json:"reason"`
}

type rollupRequest struct {
	// WeekStart is a YYYY-MM-DD date inside the week to aggregate.
	WeekStart string `json:"weekStart"`
}

type settingRequest struct {
	Value string `json:"value"`
}

// knownSettings lists the keys an admin may write.
var knownSettings = map[string]bool{
	repositories.SettingUploadsEnabled:  true,
	repositories.SettingCommentsEnabled: true,
}

// Suspend handles POST /api/v1/admin/suspensions.
func (h AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req suspendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}

	err := h.Moderator.Suspend(ctx, middleware.ViewerID(ctx), req.Kind, req.TargetID, req.Until, req.Reason)
	if err != nil {
		respondError(ctx, w, err, "unable to suspend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsuspend handles DELETE /api/v1/admin/suspensions/{kind}/{id}?reason=...
func (h AdminHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.Moderator.Unsuspend(ctx, middleware.ViewerID(ctx), r.PathValue("kind"), r.PathValue("id"), r.URL.Query().Get("reason"))
	if err != nil {
		respondError(ctx, w, err, "unable to lift suspension")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rollup handles POST /api/v1/admin/analytics/rollup. An empty body rolls up
// the current week.
func (h AdminHandler) Rollup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.requireAdmin(r); err != nil {
		respondError(ctx, w, err, "unable to verify role")
		return
	}

	week := h.now()
	var req rollupRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(ctx, w, err, "invalid request body")
			return
		}
	}
	if req.WeekStart != "" {
		parsed, err := time.Parse(time.DateOnly, req.WeekStart)
		if err != nil {
			respondError(ctx, w, apperr.E(apperr.KindInvalid, "weekStart must be a YYYY-MM-DD date", err), "")
			return
		}
		week = parsed
	}

	rows, err := h.Analytics.AggregateWeekly(ctx, week)
	if err != nil {
		respondError(ctx, w, err, "unable to aggregate analytics")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"weekStart": repositories.WeekStart(week).Format(time.DateOnly),
		"rows":      rows,
	})
}

// ListSettings handles GET /api/v1/settings.
func (h AdminHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := h.Settings.All(ctx)
	if err != nil {
		respondError(ctx, w, err, "unable to load settings")
		return
	}
	respondJSON(ctx, w, http.StatusOK, settings)
}

// PutSetting handles PUT /api/v1/admin/settings/{key}.
func (h AdminHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.requireAdmin(r); err != nil {
		respondError(ctx, w, err, "unable to verify role")
		return
	}

	key := r.PathValue("key")
	if !knownSettings[key] {
		respondError(ctx, w, apperr.E(apperr.KindNotFound, "unknown setting", nil), "")
		return
	}

	var req settingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err, "invalid request body")
		return
	}
	value := strings.TrimSpace(strings.ToLower(req.Value))
	if value != "true" && value != "false" {
		respondError(ctx, w, apperr.E(apperr.KindInvalid, "value must be true or false", nil), "")
		return
	}

	if err := h.Settings.Set(ctx, key, value); err != nil {
		respondError(ctx, w, err, "unable to save setting")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{key: value})
}

func (h AdminHandler) requireAdmin(r *http.Request) error {
	viewerID, err := requireViewer(r, "Sign in as an administrator")
	if err != nil {
		return err
	}
	admin, err := isAdmin(r.Context(), h.Roles, viewerID)
	if err != nil {
		return err
	}
	if !admin {
		return apperr.E(apperr.KindForbidden, "Administrator access required", nil)
	}
	return nil
}

func (h AdminHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
