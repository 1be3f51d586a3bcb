package acquisition

import (
	"context"
	"time"

	"codeberg.org/mutker/blowerctl/internal/errors"
	"codeberg.org/mutker/blowerctl/internal/logger"
	"codeberg.org/mutker/blowerctl/internal/metrics"
	"codeberg.org/mutker/blowerctl/internal/sensor"
)

// Controller drives the two sensor channels once per period and hands
// the results to the metrics service. It owns no locking: it is the
// sole writer of channel state and the sole caller of Update.
type Controller struct {
	fan       *Channel
	envelope  *Channel
	service   *metrics.Service
	logEveryN int
	cycles    uint64
	now       func() time.Time
}

func NewController(fan, envelope *Channel, service *metrics.Service, logEveryN int) *Controller {
	fan.diag.Reset()
	envelope.diag.Reset()

	return &Controller{
		fan:       fan,
		envelope:  envelope,
		service:   service,
		logEveryN: logEveryN,
		now:       time.Now,
	}
}

// Run drives cycles at the given interval until the context is
// cancelled.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New().New(errors.ErrInvalidInterval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Cycle()
		}
	}
}

// Cycle performs one acquisition period: clear, init-attempt, read,
// ingest, and optionally a consolidated summary line.
func (c *Controller) Cycle() {
	now := c.now()
	channels := [...]*Channel{c.fan, c.envelope}

	for _, channel := range channels {
		channel.resetCycle()
	}
	for _, channel := range channels {
		channel.tryInit(now)
	}
	for _, channel := range channels {
		channel.read()
	}

	var fanSample, envelopeSample *sensor.Sample
	if c.fan.sampleValid {
		sample := c.fan.sample
		fanSample = &sample
	}
	if c.envelope.sampleValid {
		sample := c.envelope.sample
		envelopeSample = &sample
	}

	c.service.Update(fanSample, c.fan.sampleValid, envelopeSample, c.envelope.sampleValid)

	c.cycles++
	if c.logEveryN > 0 && c.cycles%uint64(c.logEveryN) == 0 {
		c.logSummary()
	}
}

func (c *Controller) logSummary() {
	snap, err := c.service.GetSnapshot()
	if err != nil {
		return
	}

	event := logger.Info().Uint32("sequence", snap.UpdateSequence)
	for _, channel := range [...]*Channel{c.fan, c.envelope} {
		prefix := channel.id + "_"
		event = event.
			Bool(prefix+"ready", channel.ready).
			Str(prefix+"last", channel.diag.LastStatus().String()).
			Uint32(prefix+"ok", channel.diag.Count(sensor.StatusOK)).
			Uint32(prefix+"bus", channel.diag.Count(sensor.StatusBusError)).
			Uint32(prefix+"crc", channel.diag.Count(sensor.StatusCRCMismatch)).
			Uint32(prefix+"not_ready", channel.diag.Count(sensor.StatusNotReady))
	}
	event.
		Float64("fan_pressure_pa", snap.FanPressurePa).
		Float64("envelope_pressure_pa", snap.EnvelopePressurePa).
		Msg("Acquisition summary")
}
