package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/middleware"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError answers with the status of err's kind. Errors without a kind
// are logged and reported with fallback only.
func respondError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.KindUnknown {
		logging.FromContext(ctx).Error(fallback, "error", err)
	}
	respondJSON(ctx, w, status, errorResponse{Error: apperr.MessageOf(err, fallback), Kind: kind})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.E(apperr.KindInvalid, "request body is required", err)
		}
		return apperr.E(apperr.KindInvalid, "invalid request body", err)
	}
	return nil
}

func requireViewer(r *http.Request, message string) (string, error) {
	viewerID := middleware.ViewerID(r.Context())
	if viewerID == "" {
		return "", apperr.E(apperr.KindAuthRequired, message, nil)
	}
	return viewerID, nil
}
