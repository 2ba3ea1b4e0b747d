package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"codeberg.org/mutker/airqd/internal/baseline"
	"codeberg.org/mutker/airqd/internal/config"
	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/history"
	"codeberg.org/mutker/airqd/internal/humidity"
	"codeberg.org/mutker/airqd/internal/logger"
	"codeberg.org/mutker/airqd/internal/metrics"
	"codeberg.org/mutker/airqd/internal/sensor"
	"codeberg.org/mutker/airqd/internal/sgp30"
	"codeberg.org/mutker/airqd/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("airqd failed")
		}
		logger.Fatal().Err(err).Msg("airqd failed")
	}
}

// run wires the components and drives the telemetry loop until shutdown.
// Any error it returns is a startup failure; once the loop is entered only
// cancellation ends it.
func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return errFactory.Wrap(errors.ErrBusOpen, err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return errFactory.Wrap(errors.ErrBusOpen, err)
	}
	defer bus.Close()

	session := sensor.NewSession(sgp30.NewI2C(bus))
	if err := session.Init(); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	instruments := metrics.NewInstruments(reg)

	server, err := metrics.NewServer(cfg.Port, reg)
	if err != nil {
		return err
	}
	server.Start()
	defer server.Close()

	store := baseline.NewStore(cfg.BaselinePath)
	if b, ok := store.Load(); ok {
		if err := session.RestoreBaseline(b); err != nil {
			logger.Warn().Err(err).Msg("Failed to restore calibration baseline, starting cold")
		}
	} else {
		logger.Info().Msg("No persisted calibration baseline, starting cold")
	}

	histCfg := history.DefaultConfig()
	histCfg.Enabled = cfg.History
	histCfg.DBPath = cfg.HistoryDB
	recorder, err := history.NewRecorder(histCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close measurement history")
		}
	}()

	if err := session.WarmUp(ctx); err != nil {
		// Interrupted during warm-up: a clean shutdown, not a failure.
		logger.Info().Msg("Exiting...")
		return nil
	}

	loopCfg := telemetry.DefaultConfig()
	loopCfg.Period = time.Duration(cfg.Interval) * time.Second
	loopCfg.Verbose = cfg.Verbose || cfg.Debug

	loop := telemetry.New(
		loopCfg,
		session,
		humidity.NewClient(cfg.HumidityURL, cfg.HumidityMAC),
		store,
		instruments,
		recorder,
	)

	if err := loop.Run(ctx); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	snapshotOnShutdown(session, store)
	logger.Info().Msg("Exiting...")

	return nil
}

// snapshotOnShutdown persists the freshest calibration baseline so the next
// start restores accuracy faster. Best effort.
func snapshotOnShutdown(session *sensor.Session, store *baseline.Store) {
	b, err := session.Baseline()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read calibration baseline on shutdown")
		return
	}

	if err := store.Save(b); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist calibration baseline on shutdown")
		return
	}

	logger.Info().
		Uint16("co2eq_baseline", b.CO2eq).
		Uint16("tvoc_baseline", b.TVOC).
		Msg("Persisted calibration baseline on shutdown")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	<-sigs
	logger.Info().Msg("Received interrupt.")
	cancel()
}
