package acquisition

import (
	"time"

	"codeberg.org/mutker/blowerctl/internal/logger"
	"codeberg.org/mutker/blowerctl/internal/sensor"
)

const (
	initRetryBackoff  = 1000 * time.Millisecond
	reinitErrorStreak = 3
	maxErrorStreak    = 255
)

// Channel owns one physical sensor's acquisition state. It is touched
// only by the acquisition goroutine; cross-thread visibility of its
// results goes exclusively through the metrics snapshot.
type Channel struct {
	id          string
	port        sensor.PortConfig
	driver      sensor.Driver
	ready       bool
	nextInitAt  time.Time
	sample      sensor.Sample
	sampleValid bool
	lastStatus  sensor.Status
	errorStreak int
	diag        Diagnostics
}

func NewChannel(id string, port sensor.PortConfig, driver sensor.Driver) *Channel {
	return &Channel{
		id:         id,
		port:       port,
		driver:     driver,
		lastStatus: sensor.StatusNotReady,
	}
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Ready() bool {
	return c.ready
}

func (c *Channel) Diagnostics() *Diagnostics {
	return &c.diag
}

// resetCycle clears the sample to the invalid baseline so no stale
// value survives an unread cycle.
func (c *Channel) resetCycle() {
	c.sample = sensor.Sample{}
	c.sampleValid = false
	c.lastStatus = sensor.StatusNotReady
}

// tryInit attempts to bring a not-ready channel up, honoring the retry
// deadline. A failed attempt backs off for a fixed interval.
func (c *Channel) tryInit(now time.Time) {
	if c.ready || now.Before(c.nextInitAt) {
		return
	}

	status := c.driver.Initialize(c.port)
	c.ready = status == sensor.StatusOK
	c.diag.Record(status)

	if !c.ready {
		c.errorStreak = 0
		sda, scl := c.driver.PinLevels()
		logger.Warn().
			Str("channel", c.id).
			Str("status", status.String()).
			Int("bus", c.port.Bus).
			Uint8("address", c.port.Address).
			Int("sda_pin", c.port.SDAPin).
			Bool("sda_level", sda).
			Int("scl_pin", c.port.SCLPin).
			Bool("scl_level", scl).
			Uint32("frequency_hz", c.port.FrequencyHz).
			Int("bus_result", c.driver.LastBusResult()).
			Msg("Sensor init failed")
		c.nextInitAt = now.Add(initRetryBackoff)

		return
	}

	logger.Info().
		Str("channel", c.id).
		Int("bus", c.port.Bus).
		Uint8("address", c.port.Address).
		Int("sda_pin", c.port.SDAPin).
		Int("scl_pin", c.port.SCLPin).
		Uint32("frequency_hz", c.port.FrequencyHz).
		Msg("Sensor initialized")
	c.errorStreak = 0
}

// read takes one sample from a ready channel and classifies the
// outcome. Only bus-error and not-ready outcomes count toward the
// forced-reinit streak; protocol-level anomalies are counted but do not
// tear down a working bus session.
func (c *Channel) read() {
	if !c.ready {
		return
	}

	sample, status := c.driver.ReadSample()
	c.lastStatus = status
	c.diag.Record(status)
	c.sampleValid = status == sensor.StatusOK
	if c.sampleValid {
		c.sample = sample
	}

	switch status {
	case sensor.StatusOK:
		c.errorStreak = 0
	case sensor.StatusBusError, sensor.StatusNotReady:
		if c.errorStreak < maxErrorStreak {
			c.errorStreak++
		}
		sda, scl := c.driver.PinLevels()
		logger.Warn().
			Str("channel", c.id).
			Str("status", status.String()).
			Int("streak", c.errorStreak).
			Bool("sda_level", sda).
			Bool("scl_level", scl).
			Int("bus_result", c.driver.LastBusResult()).
			Msg("Sensor read failed")
		if c.errorStreak >= reinitErrorStreak {
			// The retry deadline stays where it was, so the next
			// cycle may re-attempt init immediately.
			c.ready = false
			c.errorStreak = 0
		}
	case sensor.StatusCRCMismatch, sensor.StatusInvalidArgument, sensor.StatusUnknown:
		// Counted in diagnostics; the bus session stays up.
	}
}
