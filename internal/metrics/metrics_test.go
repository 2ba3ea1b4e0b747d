package metrics_test

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/airqd/internal/logger"
	"codeberg.org/mutker/airqd/internal/metrics"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

func TestInstrumentsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	in := metrics.NewInstruments(reg)

	in.CO2eq.Set(450)
	in.TVOC.Set(12)
	in.LastUpdated.Set(1700000000)
	in.ScrapeErrors.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, f := range families {
		byName[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue() + f.GetMetric()[0].GetCounter().GetValue()
	}

	assert.InDelta(t, 450, byName["sgp30_co2eq"], 1e-9)
	assert.InDelta(t, 12, byName["sgp30_tvoc"], 1e-9)
	assert.InDelta(t, 1700000000, byName["sgp30_last_updated"], 1e-9)
	assert.InDelta(t, 1, byName["airqd_scrape_errors_total"], 1e-9)
	assert.InDelta(t, 0, byName["airqd_measure_errors_total"], 1e-9)
}

func TestServerExposition(t *testing.T) {
	reg := metrics.NewRegistry()
	in := metrics.NewInstruments(reg)
	in.CO2eq.Set(417)

	// Port 0 lets the kernel pick a free port; NewServer must bind
	// synchronously either way.
	srv, err := metrics.NewServer(0, reg)
	require.NoError(t, err)
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", serverAddr(t, srv)))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "sgp30_co2eq 417")
	assert.Contains(t, string(body), "process_start_time_seconds")
}

func serverAddr(t *testing.T, srv *metrics.Server) string {
	t.Helper()
	return srv.Addr()
}
