package humidity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/humidity"
)

const scrapeBody = `# HELP temperature_celsius Ambient temperature
# TYPE temperature_celsius gauge
temperature_celsius{device="AA:BB:CC:DD:EE:FF"} 22.5
temperature_celsius{device="11:22:33:44:55:66"} -4.25
# HELP humidity_ratio Relative humidity
# TYPE humidity_ratio gauge
humidity_ratio{device="AA:BB:CC:DD:EE:FF"} 0.45
humidity_ratio{device="11:22:33:44:55:66"} 0.991
`

func scrapeServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestFetchSelectsDevice(t *testing.T) {
	srv := scrapeServer(t, scrapeBody)

	sample, err := humidity.NewClient(srv.URL, "AA:BB:CC:DD:EE:FF").Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 22.5, sample.TemperatureCelsius, 1e-9)
	assert.InDelta(t, 45.0, sample.RelativeHumidityPercent, 1e-9, "Expected ratio converted to percent")

	sample, err = humidity.NewClient(srv.URL, "11:22:33:44:55:66").Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -4.25, sample.TemperatureCelsius, 1e-9)
	assert.InDelta(t, 99.1, sample.RelativeHumidityPercent, 1e-9)
}

func TestFetchUnknownDevice(t *testing.T) {
	srv := scrapeServer(t, scrapeBody)

	_, err := humidity.NewClient(srv.URL, "00:00:00:00:00:00").Fetch(context.Background())
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, humidity.ErrMissingMetric, appErr.Code())
}

func TestFetchMissingHumidityMetric(t *testing.T) {
	srv := scrapeServer(t, `temperature_celsius{device="AA:BB:CC:DD:EE:FF"} 22.5
`)

	_, err := humidity.NewClient(srv.URL, "AA:BB:CC:DD:EE:FF").Fetch(context.Background())
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, humidity.ErrMissingMetric, appErr.Code())
}

func TestFetchParseFailure(t *testing.T) {
	srv := scrapeServer(t, "temperature_celsius{device=\"AA\" 22.5\n")

	_, err := humidity.NewClient(srv.URL, "AA").Fetch(context.Background())
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, humidity.ErrParse, appErr.Code())
}

func TestFetchTransportFailure(t *testing.T) {
	srv := scrapeServer(t, scrapeBody)
	srv.Close()

	_, err := humidity.NewClient(srv.URL, "AA:BB:CC:DD:EE:FF").Fetch(context.Background())
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, humidity.ErrTransport, appErr.Code())
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := humidity.NewClient(srv.URL, "AA:BB:CC:DD:EE:FF").Fetch(context.Background())
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, humidity.ErrTransport, appErr.Code())
}

func TestFetchCancelledContext(t *testing.T) {
	srv := scrapeServer(t, scrapeBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := humidity.NewClient(srv.URL, "AA:BB:CC:DD:EE:FF").Fetch(ctx)
	require.Error(t, err, "Expected a cancelled scrape to fail promptly")
}
