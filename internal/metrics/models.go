package metrics

import "math"

// LinearFanSpeedModel is the built-in pressure-to-speed strategy:
// abs(pressure) scaled by a configurable gain. A non-positive gain
// falls back to the neutral 1.0.
type LinearFanSpeedModel struct {
	PascalToSpeedGain float64
}

func (m LinearFanSpeedModel) SpeedUnits(pressurePa float64) float64 {
	gain := m.PascalToSpeedGain
	if gain <= 0 {
		gain = 1.0
	}

	return math.Abs(pressurePa) * gain
}

// LinearAirLeakageModel is the built-in leakage strategy: fan speed
// scaled by abs(envelope pressure) and a configurable gain.
type LinearAirLeakageModel struct {
	LeakageGain float64
}

func (m LinearAirLeakageModel) LeakageUnits(speedUnits, envelopePressurePa float64) float64 {
	gain := m.LeakageGain
	if gain <= 0 {
		gain = 1.0
	}

	return speedUnits * math.Abs(envelopePressurePa) * gain
}
