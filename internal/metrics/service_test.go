package metrics

import (
	"testing"
	"time"

	"codeberg.org/mutker/blowerctl/internal/errors"
	"codeberg.org/mutker/blowerctl/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService() (*Service, *fakeClock) {
	clock := newFakeClock()
	s := NewService()
	s.now = clock.Now

	return s, clock
}

func sample(pressurePa, temperatureC float64) *sensor.Sample {
	return &sensor.Sample{PressurePa: pressurePa, TemperatureC: temperatureC}
}

func TestGetSnapshotBeforeInitialize(t *testing.T) {
	s, _ := newTestService()

	_, err := s.GetSnapshot()
	require.Error(t, err)

	var coded errors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrNotInitialized, coded.Code())
}

func TestUpdateSelfInitializes(t *testing.T) {
	s, _ := newTestService()

	s.Update(sample(12.5, 21.0), true, sample(-3.0, 20.5), true)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.True(t, snap.FanValid)
	assert.True(t, snap.EnvelopeValid)
	assert.InDelta(t, 12.5, snap.FanPressurePa, 1e-9)
	assert.InDelta(t, -3.0, snap.EnvelopePressurePa, 1e-9)
	assert.InDelta(t, 21.0, snap.FanTemperatureC, 1e-9)
	assert.Equal(t, uint32(1), snap.UpdateSequence)
}

func TestUpdateSequenceIncrementsPerCall(t *testing.T) {
	s, _ := newTestService()
	s.Initialize(nil, nil)

	const n = 17
	for i := 0; i < n; i++ {
		s.Update(sample(1.0, 20.0), true, nil, false)
	}

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(n), snap.UpdateSequence)
}

func TestInvalidRoleLeavesStaleValueFlagged(t *testing.T) {
	s, _ := newTestService()
	s.Initialize(nil, nil)

	s.Update(sample(8.0, 22.0), true, sample(2.0, 22.0), true)
	s.Update(nil, false, sample(2.5, 22.0), true)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.False(t, snap.FanValid)
	assert.InDelta(t, 8.0, snap.FanPressurePa, 1e-9, "stale pressure stays published")
	assert.True(t, snap.EnvelopeValid)
	assert.InDelta(t, 2.5, snap.EnvelopePressurePa, 1e-9)
}

func TestInitializeResetsStateButKeepsModels(t *testing.T) {
	s, _ := newTestService()
	s.Initialize(LinearFanSpeedModel{PascalToSpeedGain: 3.0}, nil)

	s.Update(sample(2.0, 20.0), true, nil, false)
	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, snap.FanSpeedUnits, 1e-9)

	s.Initialize(nil, nil)
	snap, err = s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), snap.UpdateSequence, "reinitialize resets the snapshot")

	s.Update(sample(2.0, 20.0), true, nil, false)
	snap, err = s.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, snap.FanSpeedUnits, 1e-9, "installed model survives reinitialize")
}

func TestCaptureZeroOffsetsNothingValid(t *testing.T) {
	s, _ := newTestService()
	s.Initialize(nil, nil)

	assert.False(t, s.CaptureZeroOffsets())

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), snap.UpdateSequence, "no capture, no sequence bump")
}

func TestCaptureZeroOffsetsRoundTrip(t *testing.T) {
	s, _ := newTestService()
	s.Initialize(LinearFanSpeedModel{PascalToSpeedGain: 2.0}, LinearAirLeakageModel{LeakageGain: 4.0})

	s.Update(sample(5.25, 23.0), true, sample(1.75, 23.0), true)

	require.True(t, s.CaptureZeroOffsets())

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, snap.FanPressurePa, 1e-9)
	assert.InDelta(t, 0.0, snap.EnvelopePressurePa, 1e-9)
	assert.InDelta(t, 0.0, snap.FanSpeedUnits, 1e-9, "speed recomputed from zeroed pressure")
	assert.InDelta(t, 0.0, snap.AirLeakageUnits, 1e-9)
	assert.Equal(t, uint32(2), snap.UpdateSequence)

	// The next cycle's raw reading is published against the captured offset.
	s.Update(sample(5.25, 23.0), true, sample(1.75, 23.0), true)
	snap, err = s.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, snap.FanPressurePa, 1e-9)
}

func TestCaptureZeroOffsetsSingleRole(t *testing.T) {
	s, _ := newTestService()
	s.Initialize(nil, nil)

	s.Update(sample(4.0, 20.0), true, nil, false)

	require.True(t, s.CaptureZeroOffsets())

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, snap.FanPressurePa, 1e-9)
	assert.False(t, snap.EnvelopeValid)
}

func TestCalibrationProgressFormula(t *testing.T) {
	s, clock := newTestService()
	s.Initialize(nil, nil)
	s.BeginCalibration()

	cases := []struct {
		elapsed  time.Duration
		progress int
	}{
		{0, 0},
		{100 * time.Millisecond, 1},
		{2500 * time.Millisecond, 25},
		{5 * time.Second, 50},
		{9900 * time.Millisecond, 99},
		{9999 * time.Millisecond, 99},
	}

	start := clock.now
	for _, tc := range cases {
		clock.now = start.Add(tc.elapsed)
		s.Update(sample(1.0, 20.0), true, sample(1.0, 20.0), true)

		snap, err := s.GetSnapshot()
		require.NoError(t, err)
		assert.Equal(t, CalibrationSampling, snap.CalibrationState)
		assert.Equal(t, tc.progress, snap.CalibrationProgress, "elapsed %v", tc.elapsed)
	}

	clock.now = start.Add(10 * time.Second)
	s.Update(sample(1.0, 20.0), true, sample(1.0, 20.0), true)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, CalibrationDone, snap.CalibrationState)
	assert.Equal(t, 100, snap.CalibrationProgress)
}

func TestCalibrationFinalizesPerRole(t *testing.T) {
	s, clock := newTestService()
	s.Initialize(nil, nil)
	s.BeginCalibration()

	// Fan contributes only 10 valid samples, envelope 25.
	for i := 0; i < 25; i++ {
		clock.advance(100 * time.Millisecond)
		fanValid := i < 10
		s.Update(sample(3.0, 20.0), fanValid, sample(float64(i), 20.0), true)
	}

	clock.advance(10 * time.Second)
	s.Update(nil, false, sample(24.0, 20.0), true)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, CalibrationDone, snap.CalibrationState)
	assert.Equal(t, 100, snap.CalibrationProgress)

	// Envelope: 25 in-window samples 0..24 plus the finalizing cycle's 24.0.
	wantMean := (24.0*25.0/2.0 + 24.0) / 26.0
	assert.InDelta(t, wantMean, snap.EnvelopeOffsetPa, 1e-9)
	assert.InDelta(t, 0.0, snap.FanOffsetPa, 1e-9, "fan offset untouched below minimum samples")
	assert.InDelta(t, 24.0-wantMean, snap.EnvelopePressurePa, 1e-9)
}

func TestCalibrationWithNoValidSamplesStillReportsDone(t *testing.T) {
	s, clock := newTestService()
	s.Initialize(nil, nil)
	s.BeginCalibration()

	clock.advance(11 * time.Second)
	s.Update(nil, false, nil, false)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, CalibrationDone, snap.CalibrationState)
	assert.Equal(t, 100, snap.CalibrationProgress)
	assert.InDelta(t, 0.0, snap.FanOffsetPa, 1e-9)
	assert.InDelta(t, 0.0, snap.EnvelopeOffsetPa, 1e-9)
}

func TestBeginCalibrationResetsOffsets(t *testing.T) {
	s, clock := newTestService()
	s.Initialize(nil, nil)

	s.Update(sample(7.0, 20.0), true, sample(7.0, 20.0), true)
	require.True(t, s.CaptureZeroOffsets())

	s.BeginCalibration()
	clock.advance(time.Second)
	s.Update(sample(7.0, 20.0), true, sample(7.0, 20.0), true)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 7.0, snap.FanPressurePa, 1e-9, "accumulation window publishes raw pressure")
	assert.InDelta(t, 7.0, snap.EnvelopePressurePa, 1e-9)
}

func TestCalibrationLivenessTiedToIngestion(t *testing.T) {
	s, clock := newTestService()
	s.Initialize(nil, nil)
	s.BeginCalibration()

	// The window elapsed long ago, but no Update means no finalization.
	clock.advance(time.Minute)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, CalibrationSampling, snap.CalibrationState)
	assert.Equal(t, 0, snap.CalibrationProgress)

	s.Update(sample(1.0, 20.0), true, nil, false)
	snap, err = s.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, CalibrationDone, snap.CalibrationState)
}
