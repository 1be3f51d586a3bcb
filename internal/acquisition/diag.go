package acquisition

import "codeberg.org/mutker/blowerctl/internal/sensor"

// Diagnostics tallies bus outcomes for one channel. Counts only grow;
// they survive forced reinitialization and are cleared only by Reset.
type Diagnostics struct {
	ok              uint32
	invalidArgument uint32
	busError        uint32
	notReady        uint32
	crcMismatch     uint32
	other           uint32
	lastStatus      sensor.Status
}

func (d *Diagnostics) Record(status sensor.Status) {
	d.lastStatus = status

	switch status {
	case sensor.StatusOK:
		d.ok++
	case sensor.StatusInvalidArgument:
		d.invalidArgument++
	case sensor.StatusBusError:
		d.busError++
	case sensor.StatusNotReady:
		d.notReady++
	case sensor.StatusCRCMismatch:
		d.crcMismatch++
	default:
		d.other++
	}
}

func (d *Diagnostics) Reset() {
	*d = Diagnostics{}
}

// Count returns the tally for one outcome kind.
func (d *Diagnostics) Count(status sensor.Status) uint32 {
	switch status {
	case sensor.StatusOK:
		return d.ok
	case sensor.StatusInvalidArgument:
		return d.invalidArgument
	case sensor.StatusBusError:
		return d.busError
	case sensor.StatusNotReady:
		return d.notReady
	case sensor.StatusCRCMismatch:
		return d.crcMismatch
	default:
		return d.other
	}
}

func (d *Diagnostics) LastStatus() sensor.Status {
	return d.lastStatus
}
