package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/logging"
)

type ctxKey string

const viewerKey ctxKey = "viewer"

// TokenVerifier resolves an access token to a user id.
type TokenVerifier interface {
	Verify(accessToken string) (string, error)
}

// WithViewerID stores the authenticated user id on ctx.
func WithViewerID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, viewerKey, userID)
}

// ViewerID returns the authenticated user id, or "" for anonymous requests.
func ViewerID(ctx context.Context) string {
	id, _ := ctx.Value(viewerKey).(string)
	return id
}

// Authenticate resolves a bearer token into a viewer id. Requests without a
// token pass through anonymously; a present but invalid token is rejected so
// clients learn they must refresh.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, apperr.KindAuthRequired, "malformed authorization header")
				return
			}

			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).Info("access token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, apperr.KindAuthRequired, apperr.MessageOf(err, "invalid access token"))
				return
			}

			ctx := WithViewerID(r.Context(), userID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("viewer_id", userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Chain applies middlewares so the first listed is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
