package errors

// Common error codes
const (
	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Application errors
	ErrMainLoop     ErrorCode = "main_loop_failed"
	ErrBusOpen      ErrorCode = "bus_open_failed"
	ErrBindMetrics  ErrorCode = "bind_metrics_failed"
	ErrServeMetrics ErrorCode = "serve_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInvalidConfig:   "Invalid configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidInterval: "Invalid interval value",
	ErrMainLoop:        "Error in main loop",
	ErrBusOpen:         "Failed to open sensor bus",
	ErrBindMetrics:     "Failed to bind metrics endpoint",
	ErrServeMetrics:    "Metrics exposition failed",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
