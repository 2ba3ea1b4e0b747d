// Package humidity derives the absolute humidity the SGP30's on-chip
// compensation algorithm expects from ambient temperature and relative
// humidity scraped off a peer telemetry endpoint.
package humidity

import "math"

// VaporPressureHpa returns the saturation water vapor pressure in hPa at
// temperature t (°C), using the Magnus formula with the coefficients the
// sensor compensation was calibrated against. Do not change them.
func VaporPressureHpa(t float64) float64 {
	return 6.112 * math.Exp(17.67*t/(243.5+t))
}

// AbsoluteGm3 returns the absolute humidity in g/m³ at temperature t (°C)
// and relative humidity rh (percent, 0-100).
func AbsoluteGm3(t, rh float64) float64 {
	return VaporPressureHpa(t) * rh * 2.1674 / (273.15 + t)
}
