package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.Login("success")
	m.Login("success")
	m.Refresh("failure")
	m.Terminated("logout")
	m.CacheCorruption()
	m.SetRefreshJobs(4)

	expected := `
# HELP login_service_logins_total Login attempts by outcome.
# TYPE login_service_logins_total counter
login_service_logins_total{outcome="success"} 2
# HELP login_service_refresh_jobs Sessions with a pending background refresh.
# TYPE login_service_refresh_jobs gauge
login_service_refresh_jobs 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"login_service_logins_total", "login_service_refresh_jobs"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `login_service_sessions_terminated_total{reason="logout"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.Login("failure")
		m.Refresh("success")
		m.SetRefreshJobs(1)
	})
}
