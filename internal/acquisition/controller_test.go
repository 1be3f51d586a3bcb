package acquisition

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/blowerctl/internal/metrics"
	"codeberg.org/mutker/blowerctl/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(fanDriver, envelopeDriver sensor.Driver) (*Controller, *metrics.Service) {
	service := metrics.NewService()
	service.Initialize(nil, nil)

	fan := NewChannel("fan", testPort, fanDriver)
	envelope := NewChannel("envelope", testPort, envelopeDriver)

	controller := NewController(fan, envelope, service, 0)

	return controller, service
}

func TestControllerCycleIngestsBothChannels(t *testing.T) {
	fanDriver := &sensor.MockDriver{
		ReadResults: []sensor.ReadResult{
			{Sample: sensor.Sample{PressurePa: 10.0, TemperatureC: 21.0}, Status: sensor.StatusOK},
		},
	}
	envelopeDriver := &sensor.MockDriver{
		ReadResults: []sensor.ReadResult{
			{Sample: sensor.Sample{PressurePa: -2.0, TemperatureC: 20.0}, Status: sensor.StatusOK},
		},
	}
	controller, service := newTestController(fanDriver, envelopeDriver)

	controller.Cycle()

	snap, err := service.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), snap.UpdateSequence)
	assert.True(t, snap.FanValid)
	assert.InDelta(t, 10.0, snap.FanPressurePa, 1e-9)
	assert.True(t, snap.EnvelopeValid)
	assert.InDelta(t, -2.0, snap.EnvelopePressurePa, 1e-9)
}

func TestControllerCycleMarksFailedReadInvalid(t *testing.T) {
	fanDriver := &sensor.MockDriver{
		ReadResults: []sensor.ReadResult{
			{Sample: sensor.Sample{PressurePa: 10.0}, Status: sensor.StatusOK},
			{Status: sensor.StatusCRCMismatch},
		},
	}
	envelopeDriver := &sensor.MockDriver{
		ReadResults: []sensor.ReadResult{
			{Sample: sensor.Sample{PressurePa: 3.0}, Status: sensor.StatusOK},
		},
	}
	controller, service := newTestController(fanDriver, envelopeDriver)

	controller.Cycle()
	controller.Cycle()

	snap, err := service.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), snap.UpdateSequence)
	assert.False(t, snap.FanValid)
	assert.InDelta(t, 10.0, snap.FanPressurePa, 1e-9, "stale value remains published")
	assert.True(t, snap.EnvelopeValid)
}

func TestControllerReinitEligibleNextCycle(t *testing.T) {
	fanDriver := &sensor.MockDriver{
		ReadResults: []sensor.ReadResult{
			{Status: sensor.StatusBusError},
			{Status: sensor.StatusBusError},
			{Status: sensor.StatusBusError},
			{Sample: sensor.Sample{PressurePa: 5.0}, Status: sensor.StatusOK},
		},
	}
	envelopeDriver := &sensor.MockDriver{}
	controller, _ := newTestController(fanDriver, envelopeDriver)

	// Three failing cycles drop the fan channel.
	controller.Cycle()
	controller.Cycle()
	controller.Cycle()
	require.False(t, controller.fan.ready)
	initCallsAfterDrop := fanDriver.InitCalls

	// The forced transition did not advance the retry deadline, so the
	// very next cycle re-attempts init and reads successfully.
	controller.Cycle()
	assert.Equal(t, initCallsAfterDrop+1, fanDriver.InitCalls)
	assert.True(t, controller.fan.ready)
	assert.True(t, controller.fan.sampleValid)
}

func TestControllerChannelFailureIsolated(t *testing.T) {
	fanDriver := &sensor.MockDriver{
		InitStatuses: []sensor.Status{sensor.StatusBusError},
	}
	envelopeDriver := &sensor.MockDriver{
		ReadResults: []sensor.ReadResult{
			{Sample: sensor.Sample{PressurePa: 1.5}, Status: sensor.StatusOK},
		},
	}
	controller, service := newTestController(fanDriver, envelopeDriver)

	controller.Cycle()

	snap, err := service.GetSnapshot()
	require.NoError(t, err)
	assert.False(t, snap.FanValid)
	assert.True(t, snap.EnvelopeValid)
	assert.InDelta(t, 1.5, snap.EnvelopePressurePa, 1e-9)
}

func TestControllerRunRejectsInvalidInterval(t *testing.T) {
	controller, _ := newTestController(&sensor.MockDriver{}, &sensor.MockDriver{})

	err := controller.Run(context.Background(), 0)
	require.Error(t, err)
}

func TestControllerRunStopsOnCancel(t *testing.T) {
	controller, service := newTestController(&sensor.MockDriver{}, &sensor.MockDriver{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- controller.Run(ctx, time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		snap, err := service.GetSnapshot()
		return err == nil && snap.UpdateSequence > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("controller did not stop on context cancel")
	}
}
