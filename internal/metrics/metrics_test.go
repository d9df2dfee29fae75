package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := m.Middleware(mux)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	text := scrape(t, m)
	require.Contains(t, text, `clipverse_http_requests_total{method="GET",route="GET /api/v1/videos/{id}",status="418"} 2`)
	require.Contains(t, text, `clipverse_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.FeedPagesServed.WithLabelValues("explore").Inc()
	m.IngestJobsTotal.WithLabelValues(Outcome(errors.New("x"))).Inc()

	text := scrape(t, m)
	require.True(t, strings.Contains(text, `clipverse_feed_pages_served_total{variant="explore"} 1`), text)
	require.Contains(t, text, `clipverse_ingest_jobs_total{status="error"} 1`)
	require.Contains(t, text, "go_goroutines")
}
