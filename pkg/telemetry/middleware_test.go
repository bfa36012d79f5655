package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCounterLabelsByRouteAndStatusClass(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := chi.NewRouter()
	router.Use(m.RequestCounter)
	router.Get("/contests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Post("/contests", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/contests/abc")
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = http.Get(srv.URL + "/contests/def")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/contests", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/contests/{id}", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/contests", "4xx")))
}

func TestRequestCounterCountsUnmatchedRoutes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := chi.NewRouter()
	router.Use(m.RequestCounter)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/no-such-route")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("unmatched", "4xx")))
}
