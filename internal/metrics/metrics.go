// Package metrics holds the process-wide metric instruments and the
// pull-based exposition endpoint. Instruments are built from an explicit
// registry and injected into the telemetry loop, so the loop stays testable
// with a throwaway registry.
package metrics

import (
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/logger"
)

// Instruments are the gauges and counters the telemetry loop publishes
// into. Created once at startup, mutated every tick.
type Instruments struct {
	CO2eq         prometheus.Gauge
	TVOC          prometheus.Gauge
	LastUpdated   prometheus.Gauge
	ScrapeErrors  prometheus.Counter
	MeasureErrors prometheus.Counter
}

func NewInstruments(reg prometheus.Registerer) *Instruments {
	i := &Instruments{
		CO2eq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sgp30_co2eq",
			Help: "CO2 equivalent concentration (units: ppm)",
		}),
		TVOC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sgp30_tvoc",
			Help: "Total volatile organic compounds concentration (units: ppb)",
		}),
		LastUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sgp30_last_updated",
			Help: "Unix timestamp of the last successful measurement",
		}),
		ScrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airqd_scrape_errors_total",
			Help: "Failed humidity scrapes of the peer endpoint",
		}),
		MeasureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airqd_measure_errors_total",
			Help: "Failed sensor measurement transactions",
		}),
	}

	reg.MustRegister(i.CO2eq, i.TVOC, i.LastUpdated, i.ScrapeErrors, i.MeasureErrors)

	return i
}

// NewRegistry returns the process registry carrying the standard process
// and build-info collectors next to the sensor instruments.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	return reg
}

// Server is the exposition endpoint.
type Server struct {
	http     *http.Server
	listener net.Listener
}

// NewServer binds 0.0.0.0:port. The bind happens here, synchronously, so a
// taken port fails startup instead of surfacing later inside a goroutine.
func NewServer(port int, gatherer prometheus.Gatherer) (*Server, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrBindMetrics, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return &Server{
		http:     &http.Server{Handler: mux},
		listener: listener,
	}, nil
}

// Start serves the endpoint in the background.
func (s *Server) Start() {
	logger.Info().Str("addr", s.listener.Addr().String()).Msg("Metrics exposition started")

	go func() {
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithCode(errors.New().Wrap(errors.ErrServeMetrics, err)).
				Msg("Metrics exposition stopped unexpectedly")
		}
	}()
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts the endpoint down. In-flight scrapes are abandoned.
func (s *Server) Close() error {
	return s.http.Close()
}
