package sensor

import "codeberg.org/mutker/airqd/internal/errors"

const (
	ErrInitFailed      = errors.ErrorCode("sensor_init_failed")
	ErrRestoreBaseline = errors.ErrorCode("sensor_restore_baseline_failed")
	ErrReadBaseline    = errors.ErrorCode("sensor_read_baseline_failed")
)
