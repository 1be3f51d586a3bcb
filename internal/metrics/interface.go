package metrics

import "time"

// CalibrationState tracks the timed-window calibration procedure.
type CalibrationState int

const (
	CalibrationIdle CalibrationState = iota
	CalibrationSampling
	CalibrationDone
)

func (s CalibrationState) String() string {
	switch s {
	case CalibrationIdle:
		return "idle"
	case CalibrationSampling:
		return "sampling"
	case CalibrationDone:
		return "done"
	default:
		return "unknown"
	}
}

// Snapshot is the single published record of the latest derived
// metrics. Every field is written inside one critical section, so a
// copy handed out by the service is always a consistent point-in-time
// view.
type Snapshot struct {
	FanPressurePa        float64
	FanTemperatureC      float64
	FanValid             bool
	EnvelopePressurePa   float64
	EnvelopeTemperatureC float64
	EnvelopeValid        bool

	FanSpeedUnits   float64
	AirLeakageUnits float64

	CalibrationState    CalibrationState
	CalibrationProgress int
	FanOffsetPa         float64
	EnvelopeOffsetPa    float64

	// UpdateSequence increases by one per committed mutation and wraps
	// modulo 2^32; a wrapped value still counts as newer.
	UpdateSequence uint32
	LastUpdate     time.Time
}

// FanSpeedModel derives fan speed units from fan pressure. Pure; no
// side effects.
type FanSpeedModel interface {
	SpeedUnits(pressurePa float64) float64
}

// AirLeakageModel derives estimated air leakage units from fan speed
// and envelope pressure. Pure; no side effects.
type AirLeakageModel interface {
	LeakageUnits(speedUnits, envelopePressurePa float64) float64
}
