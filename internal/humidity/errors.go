package humidity

import "codeberg.org/mutker/airqd/internal/errors"

const (
	ErrTransport     = errors.ErrorCode("scrape_transport_failed")
	ErrParse         = errors.ErrorCode("scrape_parse_failed")
	ErrMissingMetric = errors.ErrorCode("scrape_missing_metric")
)
