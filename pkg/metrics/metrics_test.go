package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/pkg/metrics"
)

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.ObserveDiscovery("feature_build", metrics.ResultMiss, 2*time.Millisecond)
	m.ObserveDiscovery("feature_build", metrics.ResultHit, time.Microsecond)
	m.ObserveSelected(4)
	m.IncInvalidation("rescan")
	m.IncScanError("manifest")
	m.IncLimitExceeded()

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `loadout_discoveries_total{result="miss",scope="feature_build"} 1`)
	assert.Contains(t, out, `loadout_discoveries_total{result="hit",scope="feature_build"} 1`)
	assert.Contains(t, out, `loadout_session_invalidations_total{reason="rescan"} 1`)
	assert.Contains(t, out, `loadout_scan_errors_total{source="manifest"} 1`)
	assert.Contains(t, out, `loadout_limit_exceeded_total 1`)
	assert.Contains(t, out, `loadout_selected_rules_count 1`)
}

func TestMetrics_Nil(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveDiscovery("x", metrics.ResultHit, 0)
		m.ObserveSelected(1)
		m.IncInvalidation("x")
		m.IncScanError("x")
		m.IncLimitExceeded()
	})

	mfs, err := m.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, mfs)
}
