// Package sensor owns the live SGP30 handle: one-time algorithm
// initialization, the warm-up state machine and the per-tick operations the
// telemetry loop drives.
package sensor

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/airqd/internal/baseline"
	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/logger"
	"codeberg.org/mutker/airqd/internal/sgp30"
)

// Device is the driver surface the session needs. *sgp30.Dev implements it.
type Device interface {
	Init() error
	Measure() (sgp30.Measurement, error)
	Baseline() (co2eq, tvoc uint16, err error)
	SetBaseline(co2eq, tvoc uint16) error
	SetHumidity(gm3 float64) error
	Serial() (uint64, error)
	Features() (sgp30.FeatureSet, error)
}

// State of the warm-up state machine.
type State int

const (
	// StateCold: no measurement seen yet.
	StateCold State = iota
	// StateStabilizing: the sensor still reports the fixed default pair.
	StateStabilizing
	// StateReady: a real measurement has been observed. Terminal.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateStabilizing:
		return "stabilizing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session wraps an initialized sensor device.
type Session struct {
	dev        Device
	state      State
	warmPeriod time.Duration
}

func NewSession(dev Device) *Session {
	return &Session{
		dev:        dev,
		state:      StateCold,
		warmPeriod: time.Second,
	}
}

// Init identifies the device and starts its air-quality algorithm. It must
// succeed before any other session call; a failure here is fatal to startup.
func (s *Session) Init() error {
	errFactory := errors.New()

	serial, err := s.dev.Serial()
	if err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	features, err := s.dev.Features()
	if err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	logger.Info().
		Str("serial", fmt.Sprintf("%012x", serial)).
		Str("feature_set", fmt.Sprintf("%#04x", uint16(features))).
		Msg("Detected SGP30")

	if err := s.dev.Init(); err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	return nil
}

// warmedUp reports whether m is a real reading rather than the fixed
// (400, 0) pair the sensor emits while its algorithm warms up. Both fields
// must differ from the default before the session is considered ready.
func warmedUp(m sgp30.Measurement) bool {
	return m.CO2eq != sgp30.DefaultCO2eq && m.TVOC != sgp30.DefaultTVOC
}

// WarmUp measures once per second until the sensor stops reporting its
// documented default reading, then returns. The sensor's calibration
// algorithm needs at least 15 seconds for this. Measurement errors are
// logged and do not reset the state machine. Returns the context error if
// cancelled first.
func (s *Session) WarmUp(ctx context.Context) error {
	logger.Info().Msg("Warming up sensor algorithm...")

	ticker := time.NewTicker(s.warmPeriod)
	defer ticker.Stop()

	for {
		m, err := s.dev.Measure()
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("state", s.state.String()).Msg("Measurement failed during warm-up")
		case warmedUp(m):
			s.state = StateReady
			logger.Info().
				Uint16("co2eq_ppm", m.CO2eq).
				Uint16("tvoc_ppb", m.TVOC).
				Msg("Sensor algorithm ready")
			return nil
		default:
			if s.state == StateCold {
				s.state = StateStabilizing
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// State returns the current warm-up state.
func (s *Session) State() State {
	return s.state
}

// RestoreBaseline pushes a persisted calibration baseline into the sensor.
// Best effort: on failure the session proceeds uncalibrated.
func (s *Session) RestoreBaseline(b baseline.Baseline) error {
	if err := s.dev.SetBaseline(b.CO2eq, b.TVOC); err != nil {
		return errors.New().Wrap(ErrRestoreBaseline, err)
	}

	logger.Info().
		Uint16("co2eq_baseline", b.CO2eq).
		Uint16("tvoc_baseline", b.TVOC).
		Msg("Restored calibration baseline")

	return nil
}

// Baseline reads the current calibration baseline for snapshotting.
func (s *Session) Baseline() (baseline.Baseline, error) {
	co2eq, tvoc, err := s.dev.Baseline()
	if err != nil {
		return baseline.Baseline{}, errors.New().Wrap(ErrReadBaseline, err)
	}

	return baseline.Baseline{CO2eq: co2eq, TVOC: tvoc}, nil
}

// SetHumidity feeds the absolute humidity (g/m³) into the sensor's
// compensation algorithm. Best effort per tick.
func (s *Session) SetHumidity(gm3 float64) error {
	return s.dev.SetHumidity(gm3)
}

// Measure performs one measurement transaction.
func (s *Session) Measure() (sgp30.Measurement, error) {
	return s.dev.Measure()
}
