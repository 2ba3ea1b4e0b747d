// Package telemetry drives the periodic measurement, humidity compensation
// and baseline snapshot cycle, publishing results into the process metric
// instruments.
package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/airqd/internal/baseline"
	"codeberg.org/mutker/airqd/internal/history"
	"codeberg.org/mutker/airqd/internal/humidity"
	"codeberg.org/mutker/airqd/internal/logger"
	"codeberg.org/mutker/airqd/internal/metrics"
	"codeberg.org/mutker/airqd/internal/sgp30"
)

// Sensor is the session surface the loop drives.
type Sensor interface {
	Measure() (sgp30.Measurement, error)
	SetHumidity(gm3 float64) error
	Baseline() (baseline.Baseline, error)
}

// HumiditySource fetches the ambient sample used for compensation.
type HumiditySource interface {
	Fetch(ctx context.Context) (humidity.Sample, error)
}

// BaselineStore persists calibration snapshots.
type BaselineStore interface {
	Save(b baseline.Baseline) error
}

type Config struct {
	// Period between ticks.
	Period time.Duration
	// HumidityEvery is the humidity refresh cadence in ticks.
	HumidityEvery int
	// SnapshotEvery is the baseline snapshot cadence in ticks; it is also
	// the modulus of the tick counter.
	SnapshotEvery int
	// Verbose enables per-tick measurement logging.
	Verbose bool
}

func DefaultConfig() Config {
	return Config{
		Period:        time.Second,
		HumidityEvery: 60,
		SnapshotEvery: 600,
	}
}

// Loop is the single logical worker of the daemon. All sensor and scrape
// I/O happens sequentially inside Run; nothing here needs a lock.
type Loop struct {
	cfg         Config
	sensor      Sensor
	source      HumiditySource
	store       BaselineStore
	instruments *metrics.Instruments
	recorder    history.Recorder

	tick         int
	lastHumidity float64
}

func New(cfg Config, sensor Sensor, source HumiditySource, store BaselineStore,
	instruments *metrics.Instruments, recorder history.Recorder,
) *Loop {
	return &Loop{
		cfg:         cfg,
		sensor:      sensor,
		source:      source,
		store:       store,
		instruments: instruments,
		recorder:    recorder,
	}
}

// Run ticks until the context is cancelled. The scheduler is fixed-rate:
// each wake-up target is the previous target plus the period, so tick
// timing does not drift with the duration of the tick body. If a tick
// overruns its slot the schedule is re-anchored to now instead of firing a
// catch-up burst.
func (l *Loop) Run(ctx context.Context) error {
	next := time.Now()

	for {
		next = next.Add(l.cfg.Period)

		l.runTick(ctx)
		l.tick = (l.tick + 1) % l.cfg.SnapshotEvery

		delay := time.Until(next)
		if delay <= 0 {
			next = time.Now()
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runTick performs one cycle. Every failure inside a tick is logged and
// swallowed; previously published metric values stay in place.
func (l *Loop) runTick(ctx context.Context) {
	if l.tick%l.cfg.HumidityEvery == 0 {
		l.refreshHumidity(ctx)
	}

	l.measure()

	if l.tick == l.cfg.SnapshotEvery-1 {
		l.snapshotBaseline()
	}
}

func (l *Loop) refreshHumidity(ctx context.Context) {
	sample, err := l.source.Fetch(ctx)
	if err != nil {
		l.instruments.ScrapeErrors.Inc()
		logger.Warn().Err(err).Msg("Humidity scrape failed, keeping previous compensation")
		return
	}

	gm3 := humidity.AbsoluteGm3(sample.TemperatureCelsius, sample.RelativeHumidityPercent)
	if err := l.sensor.SetHumidity(gm3); err != nil {
		l.instruments.ScrapeErrors.Inc()
		logger.Warn().Err(err).Float64("absolute_humidity", gm3).Msg("Failed to set humidity compensation")
		return
	}

	l.lastHumidity = gm3
	logger.Debug().
		Float64("temperature", sample.TemperatureCelsius).
		Float64("relative_humidity", sample.RelativeHumidityPercent).
		Float64("absolute_humidity", gm3).
		Msg("Updated humidity compensation")
}

func (l *Loop) measure() {
	m, err := l.sensor.Measure()
	if err != nil {
		l.instruments.MeasureErrors.Inc()
		logger.Warn().Err(err).Msg("Measurement failed, keeping previous values")
		return
	}

	now := time.Now()
	l.instruments.CO2eq.Set(float64(m.CO2eq))
	l.instruments.TVOC.Set(float64(m.TVOC))
	l.instruments.LastUpdated.Set(float64(now.Unix()))

	if l.cfg.Verbose {
		logger.Info().
			Uint16("co2eq_ppm", m.CO2eq).
			Uint16("tvoc_ppb", m.TVOC).
			Msg("")
	}

	if err := l.recorder.Record(&history.Snapshot{
		Timestamp:        now,
		CO2eq:            m.CO2eq,
		TVOC:             m.TVOC,
		AbsoluteHumidity: l.lastHumidity,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record measurement history")
	}
}

func (l *Loop) snapshotBaseline() {
	b, err := l.sensor.Baseline()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read calibration baseline")
		return
	}

	if err := l.store.Save(b); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist calibration baseline")
		return
	}

	logger.Info().
		Uint16("co2eq_baseline", b.CO2eq).
		Uint16("tvoc_baseline", b.TVOC).
		Msg("Persisted calibration baseline")
}
