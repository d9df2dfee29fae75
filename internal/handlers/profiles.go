package handlers

import "net/http"

// ProfileHandler serves public profiles.
type ProfileHandler struct {
	Profiles ProfileStore
}

// Get handles GET /api/v1/profiles/{id}.
func (h ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := h.Profiles.Get(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err, "unable to load profile")
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}
