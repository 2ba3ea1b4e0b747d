package sensor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/airqd/internal/baseline"
	"codeberg.org/mutker/airqd/internal/errors"
	"codeberg.org/mutker/airqd/internal/logger"
	"codeberg.org/mutker/airqd/internal/sgp30"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

type measureResult struct {
	m   sgp30.Measurement
	err error
}

// fakeDevice plays back a scripted sequence of measurements and records
// every call made against it.
type fakeDevice struct {
	script       []measureResult
	measured     int
	initErr      error
	serialErr    error
	setBaselines [][2]uint16
	baselineErr  error
	humidities   []float64
	humidityErr  error
}

func (d *fakeDevice) Init() error { return d.initErr }

func (d *fakeDevice) Measure() (sgp30.Measurement, error) {
	if d.measured >= len(d.script) {
		return sgp30.Measurement{}, errors.New().New(sgp30.ErrBusTransaction)
	}
	r := d.script[d.measured]
	d.measured++

	return r.m, r.err
}

func (d *fakeDevice) Baseline() (uint16, uint16, error) {
	return 0x8e68, 0x9052, d.baselineErr
}

func (d *fakeDevice) SetBaseline(co2eq, tvoc uint16) error {
	d.setBaselines = append(d.setBaselines, [2]uint16{co2eq, tvoc})
	return d.baselineErr
}

func (d *fakeDevice) SetHumidity(gm3 float64) error {
	d.humidities = append(d.humidities, gm3)
	return d.humidityErr
}

func (d *fakeDevice) Serial() (uint64, error) { return 0x6405d2, d.serialErr }

func (d *fakeDevice) Features() (sgp30.FeatureSet, error) { return 0x0022, d.serialErr }

func newTestSession(dev Device) *Session {
	s := NewSession(dev)
	s.warmPeriod = time.Millisecond

	return s
}

func defaultReading() measureResult {
	return measureResult{m: sgp30.Measurement{CO2eq: sgp30.DefaultCO2eq, TVOC: sgp30.DefaultTVOC}}
}

func TestWarmUpBothFieldsMustDiffer(t *testing.T) {
	// (450, 0) and (400, 12) each differ in only one field and must not end
	// the warm-up; (450, 12) is the first real reading.
	dev := &fakeDevice{script: []measureResult{
		defaultReading(),
		defaultReading(),
		{m: sgp30.Measurement{CO2eq: 450, TVOC: 0}},
		{m: sgp30.Measurement{CO2eq: 400, TVOC: 12}},
		{m: sgp30.Measurement{CO2eq: 450, TVOC: 12}},
		{m: sgp30.Measurement{CO2eq: 999, TVOC: 99}},
	}}

	s := newTestSession(dev)
	require.NoError(t, s.WarmUp(context.Background()))

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 5, dev.measured, "Expected warm-up to end exactly at the fifth measurement")
}

func TestWarmUpSurvivesMeasurementErrors(t *testing.T) {
	busErr := errors.New().New(sgp30.ErrBusTransaction)
	dev := &fakeDevice{script: []measureResult{
		defaultReading(),
		{err: busErr},
		{err: busErr},
		defaultReading(),
		{m: sgp30.Measurement{CO2eq: 412, TVOC: 7}},
	}}

	s := newTestSession(dev)
	require.NoError(t, s.WarmUp(context.Background()))

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 5, dev.measured)
}

func TestWarmUpStateProgression(t *testing.T) {
	dev := &fakeDevice{script: []measureResult{
		defaultReading(),
		{m: sgp30.Measurement{CO2eq: 450, TVOC: 12}},
	}}

	s := newTestSession(dev)
	assert.Equal(t, StateCold, s.State())

	require.NoError(t, s.WarmUp(context.Background()))
	assert.Equal(t, StateReady, s.State())
}

func TestWarmUpCancellation(t *testing.T) {
	// Endless default readings: warm-up can only end via the context.
	script := make([]measureResult, 1000)
	for i := range script {
		script[i] = defaultReading()
	}
	dev := &fakeDevice{script: script}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s := newTestSession(dev)
	err := s.WarmUp(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, StateReady, s.State())
}

func TestInitReportsDeviceErrors(t *testing.T) {
	dev := &fakeDevice{initErr: errors.New().New(sgp30.ErrBusTransaction)}

	err := newTestSession(dev).Init()
	require.Error(t, err)

	var appErr errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrInitFailed, appErr.Code())
}

func TestRestoreBaseline(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	require.NoError(t, s.RestoreBaseline(baseline.Baseline{CO2eq: 0x8e68, TVOC: 0x9052}))
	require.Len(t, dev.setBaselines, 1)
	assert.Equal(t, [2]uint16{0x8e68, 0x9052}, dev.setBaselines[0])
}

func TestBaselineSnapshot(t *testing.T) {
	s := newTestSession(&fakeDevice{})

	b, err := s.Baseline()
	require.NoError(t, err)
	assert.Equal(t, baseline.Baseline{CO2eq: 0x8e68, TVOC: 0x9052}, b)
}
