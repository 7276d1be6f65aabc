package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/triggers", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/commands", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "200"))
	before403 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "403"))

	for _, path := range []string{"/triggers", "/commands"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	}

	require.Equal(t, before200+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "200")))
	require.Equal(t, before403+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "403")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
