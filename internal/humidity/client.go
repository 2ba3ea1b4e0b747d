package humidity

import (
	"context"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"codeberg.org/mutker/airqd/internal/errors"
)

const (
	metricTemperature   = "temperature_celsius"
	metricHumidityRatio = "humidity_ratio"
	deviceLabel         = "device"

	defaultTimeout = 10 * time.Second
)

// Sample is one scraped temperature/humidity pair for a single device.
type Sample struct {
	TemperatureCelsius      float64
	RelativeHumidityPercent float64
}

// Client fetches temperature and relative humidity for one device from a
// Prometheus text-exposition endpoint.
type Client struct {
	http   *http.Client
	url    string
	device string
}

func NewClient(url, device string) *Client {
	return &Client{
		http:   &http.Client{Timeout: defaultTimeout},
		url:    url,
		device: device,
	}
}

// Fetch scrapes the endpoint once and returns the sample for the configured
// device. The humidity ratio is reported on [0,1] by the peer and converted
// to a percentage here.
func (c *Client) Fetch(ctx context.Context) (Sample, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Sample{}, errFactory.Wrap(ErrTransport, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Sample{}, errFactory.Wrap(ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Sample{}, errFactory.WithData(ErrTransport, struct {
			URL    string
			Status string
		}{URL: c.url, Status: resp.Status})
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return Sample{}, errFactory.Wrap(ErrParse, err)
	}

	temperature, ok := c.gaugeValue(families, metricTemperature)
	if !ok {
		return Sample{}, errFactory.WithData(ErrMissingMetric, struct {
			Metric string
			Device string
		}{Metric: metricTemperature, Device: c.device})
	}

	ratio, ok := c.gaugeValue(families, metricHumidityRatio)
	if !ok {
		return Sample{}, errFactory.WithData(ErrMissingMetric, struct {
			Metric string
			Device string
		}{Metric: metricHumidityRatio, Device: c.device})
	}

	return Sample{
		TemperatureCelsius:      temperature,
		RelativeHumidityPercent: ratio * 100,
	}, nil
}

// gaugeValue returns the sample of the named family whose device label
// matches the configured device.
func (c *Client) gaugeValue(families map[string]*dto.MetricFamily, name string) (float64, bool) {
	family, ok := families[name]
	if !ok {
		return 0, false
	}

	for _, m := range family.GetMetric() {
		if !c.matchesDevice(m) {
			continue
		}
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), true
		case m.GetUntyped() != nil:
			return m.GetUntyped().GetValue(), true
		}
	}

	return 0, false
}

func (c *Client) matchesDevice(m *dto.Metric) bool {
	for _, label := range m.GetLabel() {
		if label.GetName() == deviceLabel && label.GetValue() == c.device {
			return true
		}
	}

	return false
}
