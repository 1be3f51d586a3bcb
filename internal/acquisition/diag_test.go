package acquisition

import (
	"testing"

	"codeberg.org/mutker/blowerctl/internal/sensor"
	"github.com/stretchr/testify/assert"
)

func TestDiagnosticsRecord(t *testing.T) {
	var d Diagnostics

	d.Record(sensor.StatusOK)
	d.Record(sensor.StatusOK)
	d.Record(sensor.StatusBusError)
	d.Record(sensor.StatusCRCMismatch)
	d.Record(sensor.StatusUnknown)

	assert.Equal(t, uint32(2), d.Count(sensor.StatusOK))
	assert.Equal(t, uint32(1), d.Count(sensor.StatusBusError))
	assert.Equal(t, uint32(1), d.Count(sensor.StatusCRCMismatch))
	assert.Equal(t, uint32(1), d.Count(sensor.StatusUnknown))
	assert.Equal(t, uint32(0), d.Count(sensor.StatusNotReady))
	assert.Equal(t, sensor.StatusUnknown, d.LastStatus())
}

func TestDiagnosticsReset(t *testing.T) {
	var d Diagnostics

	d.Record(sensor.StatusBusError)
	d.Reset()

	assert.Equal(t, uint32(0), d.Count(sensor.StatusBusError))
	assert.Equal(t, sensor.StatusOK, d.LastStatus())
}
