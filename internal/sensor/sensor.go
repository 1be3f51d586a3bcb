// Package sensor defines the boundary to the differential-pressure
// sensor hardware: the outcome classification shared by every driver,
// the sample and port descriptor types, and the Driver interface the
// acquisition layer consumes.
package sensor

// Status is the classified outcome of a bus initialization or read
// attempt. The set is closed; callers are expected to switch over it
// exhaustively so a new outcome kind cannot slip through unclassified.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusBusError
	StatusNotReady
	StatusCRCMismatch
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusBusError:
		return "bus_error"
	case StatusNotReady:
		return "not_ready"
	case StatusCRCMismatch:
		return "crc_mismatch"
	default:
		return "unknown"
	}
}

// Sample is one corrected reading from a sensor.
type Sample struct {
	PressurePa   float64
	TemperatureC float64
}

// PortConfig describes where a sensor sits on the bus. The fields are
// opaque to the acquisition layer beyond logging and diagnostics.
type PortConfig struct {
	Device      string
	Bus         int
	Address     uint8
	SDAPin      int
	SCLPin      int
	FrequencyHz uint32
}

// Driver is the sensor-driver collaborator. Initialize and ReadSample
// are synchronous and bounded; there is no cancellation path. A stuck
// transaction stalls the acquisition cycle, which is an accepted risk
// at this layer.
type Driver interface {
	Initialize(port PortConfig) Status
	ReadSample() (Sample, Status)

	// LastBusResult returns the raw result code of the most recent bus
	// transaction, for field debugging only.
	LastBusResult() int

	// PinLevels reports the current logic levels of the SDA and SCL
	// pins, best effort.
	PinLevels() (sda, scl bool)
}
