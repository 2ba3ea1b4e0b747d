package history_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/airqd/internal/history"
	"codeberg.org/mutker/airqd/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

func TestDisabledRecorderIsNoop(t *testing.T) {
	rec, err := history.NewRecorder(history.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, rec.Record(&history.Snapshot{CO2eq: 400}))
	require.NoError(t, rec.Close())
}

func TestRecordAndFlush(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")
	cfg.BatchSize = 2

	rec, err := history.NewRecorder(cfg)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, rec.Record(&history.Snapshot{Timestamp: now, CO2eq: 450, TVOC: 12, AbsoluteHumidity: 9.43}))
	require.NoError(t, rec.Record(&history.Snapshot{Timestamp: now.Add(time.Second), CO2eq: 452, TVOC: 13, AbsoluteHumidity: 9.43}))
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM measurements").Scan(&count))
	assert.Equal(t, 2, count, "Expected both snapshots flushed")

	var co2eq, tvoc int
	var gm3 float64
	require.NoError(t, db.QueryRow(
		"SELECT co2eq_ppm, tvoc_ppb, absolute_humidity FROM measurements ORDER BY timestamp LIMIT 1").
		Scan(&co2eq, &tvoc, &gm3))
	assert.Equal(t, 450, co2eq)
	assert.Equal(t, 12, tvoc)
	assert.InDelta(t, 9.43, gm3, 1e-9)
}

func TestCloseFlushesPartialBatch(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")

	rec, err := history.NewRecorder(cfg)
	require.NoError(t, err)

	require.NoError(t, rec.Record(&history.Snapshot{Timestamp: time.Now(), CO2eq: 400, TVOC: 0}))
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM measurements").Scan(&count))
	assert.Equal(t, 1, count, "Expected the partial batch flushed on close")
}

func TestEnabledWithoutPathFails(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Enabled = true

	_, err := history.NewRecorder(cfg)
	require.Error(t, err)
}
