package sensor

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/blowerctl/internal/logger"
	"go.bug.st/serial"
)

const (
	bridgeBaudRate    = 115200
	bridgeReadTimeout = 500 * time.Millisecond
)

// BridgeDriver talks to a USB sensor bridge that carries the pressure
// sensors on its I2C buses. The bridge speaks a line-oriented protocol:
//
//	INIT <bus> <addr> <sda> <scl> <hz>  ->  OK | ERR <kind> <code>
//	READ <bus> <addr>                   ->  DP <pressure_pa> <temp_c> | ERR <kind> <code>
//	PINS <sda> <scl>                    ->  PINS <0|1> <0|1>
//
// One BridgeDriver owns one serial device and serves one sensor.
type BridgeDriver struct {
	port          serial.Port
	reader        *bufio.Reader
	cfg           PortConfig
	lastBusResult int
}

func NewBridgeDriver() *BridgeDriver {
	return &BridgeDriver{}
}

func (d *BridgeDriver) Initialize(port PortConfig) Status {
	if port.Device == "" {
		return StatusInvalidArgument
	}

	if d.port == nil {
		mode := &serial.Mode{
			BaudRate: bridgeBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}

		p, err := serial.Open(port.Device, mode)
		if err != nil {
			logger.Warn().
				Str("device", port.Device).
				Err(err).
				Msg("Failed to open sensor bridge")
			d.lastBusResult = -1

			return StatusBusError
		}

		if err := p.SetReadTimeout(bridgeReadTimeout); err != nil {
			p.Close()
			d.lastBusResult = -1

			return StatusBusError
		}

		d.port = p
		d.reader = bufio.NewReader(p)
	}

	d.cfg = port

	reply, ok := d.roundTrip(fmt.Sprintf("INIT %d %d %d %d %d",
		port.Bus, port.Address, port.SDAPin, port.SCLPin, port.FrequencyHz))
	if !ok {
		return StatusBusError
	}

	if reply == "OK" {
		return StatusOK
	}

	return d.parseError(reply)
}

func (d *BridgeDriver) ReadSample() (Sample, Status) {
	if d.port == nil {
		return Sample{}, StatusNotReady
	}

	reply, ok := d.roundTrip(fmt.Sprintf("READ %d %d", d.cfg.Bus, d.cfg.Address))
	if !ok {
		return Sample{}, StatusBusError
	}

	fields := strings.Fields(reply)
	if len(fields) == 3 && fields[0] == "DP" {
		pressure, errP := strconv.ParseFloat(fields[1], 64)
		temperature, errT := strconv.ParseFloat(fields[2], 64)
		if errP != nil || errT != nil {
			return Sample{}, StatusCRCMismatch
		}

		return Sample{PressurePa: pressure, TemperatureC: temperature}, StatusOK
	}

	return Sample{}, d.parseError(reply)
}

func (d *BridgeDriver) LastBusResult() int {
	return d.lastBusResult
}

func (d *BridgeDriver) PinLevels() (bool, bool) {
	if d.port == nil {
		return false, false
	}

	reply, ok := d.roundTrip(fmt.Sprintf("PINS %d %d", d.cfg.SDAPin, d.cfg.SCLPin))
	if !ok {
		return false, false
	}

	fields := strings.Fields(reply)
	if len(fields) != 3 || fields[0] != "PINS" {
		return false, false
	}

	return fields[1] == "1", fields[2] == "1"
}

func (d *BridgeDriver) Close() error {
	if d.port == nil {
		return nil
	}

	err := d.port.Close()
	d.port = nil
	d.reader = nil

	return err
}

func (d *BridgeDriver) roundTrip(command string) (string, bool) {
	if _, err := d.port.Write([]byte(command + "\n")); err != nil {
		logger.Debug().Err(err).Str("command", command).Msg("Bridge write failed")
		d.lastBusResult = -1

		return "", false
	}

	line, err := d.reader.ReadString('\n')
	if err != nil {
		logger.Debug().Err(err).Str("command", command).Msg("Bridge read failed")
		d.lastBusResult = -1

		return "", false
	}

	return strings.TrimSpace(line), true
}

// parseError maps an ERR reply onto a Status and records the bridge's
// raw I/O code.
func (d *BridgeDriver) parseError(reply string) Status {
	fields := strings.Fields(reply)
	if len(fields) < 2 || fields[0] != "ERR" {
		return StatusUnknown
	}

	if len(fields) >= 3 {
		if code, err := strconv.Atoi(fields[2]); err == nil {
			d.lastBusResult = code
		}
	}

	switch fields[1] {
	case "einval":
		return StatusInvalidArgument
	case "ebus":
		return StatusBusError
	case "ebusy", "eagain":
		return StatusNotReady
	case "ecrc":
		return StatusCRCMismatch
	default:
		return StatusUnknown
	}
}
