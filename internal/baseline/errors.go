package baseline

import "codeberg.org/mutker/airqd/internal/errors"

const (
	ErrSaveFailed = errors.ErrorCode("baseline_save_failed")
)
