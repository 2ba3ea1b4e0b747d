// Package baseline persists the SGP30 calibration baseline across restarts.
//
// The baseline is an opaque pair of calibration words produced by the
// sensor's dynamic baseline compensation algorithm. It is never interpreted,
// only round-tripped between the sensor and a small text file.
package baseline

import (
	"fmt"
	"os"

	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/logger"
)

const defaultFilePerm = 0o644

// Baseline holds the two raw calibration words reported by the sensor.
type Baseline struct {
	CO2eq uint16
	TVOC  uint16
}

// Store reads and writes a Baseline at a fixed path. The process is the
// single writer, so no locking is done.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted baseline, or ok=false when no usable baseline
// exists. A missing, empty or corrupt file is not an error: calibration
// simply starts cold.
func (s *Store) Load() (Baseline, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read baseline file")
		}
		return Baseline{}, false
	}

	var co2eq, tvoc uint16
	if _, err := fmt.Sscanf(string(data), "%d %d", &co2eq, &tvoc); err != nil {
		logger.Warn().Err(err).Str("path", s.path).Msg("Ignoring malformed baseline file")
		return Baseline{}, false
	}

	return Baseline{CO2eq: co2eq, TVOC: tvoc}, true
}

// Save overwrites the persisted baseline with a single write.
func (s *Store) Save(b Baseline) error {
	record := fmt.Sprintf("%d %d\n", b.CO2eq, b.TVOC)
	if err := os.WriteFile(s.path, []byte(record), defaultFilePerm); err != nil {
		return errors.New().Wrap(ErrSaveFailed, err)
	}

	return nil
}
