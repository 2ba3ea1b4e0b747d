// Package history optionally records successful measurements to a local
// sqlite database for later analysis. Recording is best effort: a failed
// insert is logged and dropped, it never disturbs the telemetry loop.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/logger"
)

const defaultDirPerm = 0o755

// Snapshot is one recorded measurement.
type Snapshot struct {
	Timestamp time.Time
	CO2eq     uint16
	TVOC      uint16
	// AbsoluteHumidity is the last compensation value pushed to the sensor,
	// 0 until the first successful humidity refresh.
	AbsoluteHumidity float64
}

// Recorder accepts snapshots. The no-op implementation is returned when
// history is disabled.
type Recorder interface {
	Record(s *Snapshot) error
	Close() error
}

type Config struct {
	Enabled bool
	DBPath  string
	// BatchSize snapshots are buffered before being flushed in one
	// transaction. BatchTimeout (seconds) bounds how long a partial batch
	// may linger.
	BatchSize    int
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		BatchSize:    60,
		BatchTimeout: 300,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}

	return nil
}

type noopRecorder struct{}

func (*noopRecorder) Record(_ *Snapshot) error { return nil }
func (*noopRecorder) Close() error             { return nil }

type repository struct {
	db            *sql.DB
	cfg           Config
	mu            sync.Mutex
	buffer        []*Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// NewRecorder opens the history database, or returns a no-op recorder when
// history is disabled.
func NewRecorder(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Measurement history disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{Phase: "create_directory", Path: cfg.DBPath, Error: err.Error()})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{Phase: "open_database", Error: err.Error()})
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().
		Str("path", cfg.DBPath).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Measurement history enabled")

	repo := &repository{
		db:            db,
		cfg:           cfg,
		buffer:        make([]*Snapshot, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
	go repo.flusher()

	return repo, nil
}

func (r *repository) Record(s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, s)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{Phase: "checkpoint_wal", Error: err.Error()})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{Phase: "close_database", Error: err.Error()})
	}

	logger.Info().Msg("Measurement history closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Warn().Err(err).Msg("Failed to flush measurement history")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Warn().Err(err).Msg("Failed to flush measurement history on shutdown")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffered snapshots in one transaction. Caller holds the
// lock.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSnapshotSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, s := range r.buffer {
		if _, err := stmt.Exec(s.Timestamp.Unix(), int64(s.CO2eq), int64(s.TVOC), s.AbsoluteHumidity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	logger.Debug().Int("records", len(r.buffer)).Msg("Flushed measurement history")
	r.buffer = r.buffer[:0]

	return nil
}
