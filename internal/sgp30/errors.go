package sgp30

import "codeberg.org/mutker/airqd/internal/errors"

const (
	ErrBusTransaction = errors.ErrorCode("sgp30_bus_transaction_failed")
	ErrChecksum       = errors.ErrorCode("sgp30_checksum_mismatch")
	ErrHumidityRange  = errors.ErrorCode("sgp30_humidity_out_of_range")
)
