package metrics

import (
	"sync"
	"time"

	"codeberg.org/mutker/blowerctl/internal/errors"
	"codeberg.org/mutker/blowerctl/internal/logger"
	"codeberg.org/mutker/blowerctl/internal/sensor"
)

const (
	calibrationDuration   = 10 * time.Second
	calibrationMinSamples = 20
)

// calibrationAccumulator collects per-channel raw pressure sums over
// one timed window. It only exists while a window is active.
type calibrationAccumulator struct {
	active        bool
	start         time.Time
	fanSum        float64
	envelopeSum   float64
	fanCount      uint32
	envelopeCount uint32
}

// Service aggregates the acquisition cycle's samples into the published
// snapshot. One acquisition goroutine calls Update; any number of other
// goroutines read the snapshot or request calibration. Every operation
// holds the one mutex for its full body.
type Service struct {
	mu sync.Mutex

	fanModel  FanSpeedModel
	leakModel AirLeakageModel

	snap Snapshot

	fanOffsetPa      float64
	envelopeOffsetPa float64

	lastFanRawPa      float64
	lastEnvelopeRawPa float64
	hasFanRaw         bool
	hasEnvelopeRaw    bool

	initialized bool
	cal         calibrationAccumulator

	now func() time.Time
}

func NewService() *Service {
	return &Service{now: time.Now}
}

// Initialize installs the model pipeline and resets all published
// state. Nil models keep whatever is already installed, or the linear
// defaults on first call. Safe to call repeatedly.
func (s *Service) Initialize(fanModel FanSpeedModel, leakModel AirLeakageModel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initializeLocked(fanModel, leakModel)
}

func (s *Service) initializeLocked(fanModel FanSpeedModel, leakModel AirLeakageModel) {
	if fanModel != nil {
		s.fanModel = fanModel
	}
	if leakModel != nil {
		s.leakModel = leakModel
	}
	if s.fanModel == nil {
		s.fanModel = LinearFanSpeedModel{}
	}
	if s.leakModel == nil {
		s.leakModel = LinearAirLeakageModel{}
	}

	s.snap = Snapshot{}
	s.fanOffsetPa = 0
	s.envelopeOffsetPa = 0
	s.lastFanRawPa = 0
	s.lastEnvelopeRawPa = 0
	s.hasFanRaw = false
	s.hasEnvelopeRaw = false
	s.cal = calibrationAccumulator{}
	s.initialized = true
}

// Update is the single ingestion entry point, called once per
// acquisition cycle with this cycle's (sample, validity) pair for each
// role. Invalid roles leave the previously published pressure and
// temperature stale; the validity flag tells consumers to disregard
// them.
func (s *Service) Update(fan *sensor.Sample, fanValid bool, envelope *sensor.Sample, envelopeValid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.initializeLocked(nil, nil)
	}

	if fanValid && fan != nil {
		s.lastFanRawPa = fan.PressurePa
		s.hasFanRaw = true
		s.snap.FanPressurePa = s.lastFanRawPa - s.fanOffsetPa
		s.snap.FanTemperatureC = fan.TemperatureC
		s.snap.FanValid = true
	} else {
		s.snap.FanValid = false
	}

	if envelopeValid && envelope != nil {
		s.lastEnvelopeRawPa = envelope.PressurePa
		s.hasEnvelopeRaw = true
		s.snap.EnvelopePressurePa = s.lastEnvelopeRawPa - s.envelopeOffsetPa
		s.snap.EnvelopeTemperatureC = envelope.TemperatureC
		s.snap.EnvelopeValid = true
	} else {
		s.snap.EnvelopeValid = false
	}

	if s.cal.active {
		s.advanceCalibrationLocked(fan, fanValid, envelope, envelopeValid)
	}

	s.recomputeModelsLocked()
	s.snap.UpdateSequence++
	s.snap.LastUpdate = s.now()
}

// advanceCalibrationLocked accumulates this cycle's valid raw readings
// and finalizes the window once its duration has elapsed. Finalization
// rides on ingestion cadence: if Update stops being called, the window
// never completes.
func (s *Service) advanceCalibrationLocked(fan *sensor.Sample, fanValid bool, envelope *sensor.Sample, envelopeValid bool) {
	elapsed := s.now().Sub(s.cal.start)

	if fanValid && fan != nil {
		s.cal.fanSum += fan.PressurePa
		s.cal.fanCount++
	}
	if envelopeValid && envelope != nil {
		s.cal.envelopeSum += envelope.PressurePa
		s.cal.envelopeCount++
	}

	if elapsed < calibrationDuration {
		pct := int(elapsed.Milliseconds() * 100 / calibrationDuration.Milliseconds())
		if pct > 99 {
			pct = 99
		}
		s.snap.CalibrationState = CalibrationSampling
		s.snap.CalibrationProgress = pct

		return
	}

	// Window complete: commit the mean per role, but only when the
	// role collected enough samples; otherwise its offset is left
	// untouched.
	if s.cal.fanCount >= calibrationMinSamples {
		s.fanOffsetPa = s.cal.fanSum / float64(s.cal.fanCount)
		s.snap.FanPressurePa = s.lastFanRawPa - s.fanOffsetPa
	}
	if s.cal.envelopeCount >= calibrationMinSamples {
		s.envelopeOffsetPa = s.cal.envelopeSum / float64(s.cal.envelopeCount)
		s.snap.EnvelopePressurePa = s.lastEnvelopeRawPa - s.envelopeOffsetPa
	}

	s.snap.FanOffsetPa = s.fanOffsetPa
	s.snap.EnvelopeOffsetPa = s.envelopeOffsetPa
	s.snap.CalibrationState = CalibrationDone
	s.snap.CalibrationProgress = 100
	s.cal.active = false

	logger.Info().
		Float64("fan_offset_pa", s.fanOffsetPa).
		Uint32("fan_samples", s.cal.fanCount).
		Float64("envelope_offset_pa", s.envelopeOffsetPa).
		Uint32("envelope_samples", s.cal.envelopeCount).
		Msg("Calibration window finalized")
}

func (s *Service) recomputeModelsLocked() {
	s.snap.FanSpeedUnits = s.fanModel.SpeedUnits(s.snap.FanPressurePa)
	s.snap.AirLeakageUnits = s.leakModel.LeakageUnits(s.snap.FanSpeedUnits, s.snap.EnvelopePressurePa)
}

// GetSnapshot copies the current snapshot. It fails only when the
// service was never initialized.
func (s *Service) GetSnapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return Snapshot{}, errors.New().New(ErrNotInitialized)
	}

	return s.snap, nil
}

// CaptureZeroOffsets performs a one-shot manual zero: each role with a
// valid sample this cycle has its offset set to the latest cached raw
// pressure, zeroing the published value. Returns whether anything was
// captured.
func (s *Service) CaptureZeroOffsets() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false
	}

	captured := false

	if s.snap.FanValid && s.hasFanRaw {
		s.fanOffsetPa = s.lastFanRawPa
		s.snap.FanPressurePa = 0
		captured = true
	}

	if s.snap.EnvelopeValid && s.hasEnvelopeRaw {
		s.envelopeOffsetPa = s.lastEnvelopeRawPa
		s.snap.EnvelopePressurePa = 0
		captured = true
	}

	if captured {
		s.recomputeModelsLocked()
		s.snap.UpdateSequence++
		s.snap.LastUpdate = s.now()
		logger.Debug().
			Float64("fan_offset_pa", s.fanOffsetPa).
			Float64("envelope_offset_pa", s.envelopeOffsetPa).
			Msg("Zero offsets captured")
	}

	return captured
}

// BeginCalibration arms a fresh calibration window. Offsets are reset
// first so the window accumulates raw, uncorrected pressure.
func (s *Service) BeginCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return
	}

	s.fanOffsetPa = 0
	s.envelopeOffsetPa = 0

	s.cal = calibrationAccumulator{
		active: true,
		start:  s.now(),
	}

	s.snap.CalibrationState = CalibrationSampling
	s.snap.CalibrationProgress = 0

	logger.Info().Msg("Calibration window started")
}
