package metricsapp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metricsapp "sessions/internal/app/metrics"
	"sessions/internal/lib/logger/handlers/slogdiscard"
	"sessions/internal/metrics"
)

func TestRouter(t *testing.T) {
	metrics.SessionLoginsTotal.WithLabelValues("ok").Inc()

	app := metricsapp.New(slogdiscard.NewDiscardLogger(), 0)
	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app.Drain()

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
