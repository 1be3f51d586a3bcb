package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/blowerctl/internal/acquisition"
	"codeberg.org/mutker/blowerctl/internal/config"
	"codeberg.org/mutker/blowerctl/internal/logger"
	"codeberg.org/mutker/blowerctl/internal/metrics"
	"codeberg.org/mutker/blowerctl/internal/pid"
	"codeberg.org/mutker/blowerctl/internal/sensor"
	"codeberg.org/mutker/blowerctl/internal/telemetry"
)

const telemetryPollInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
		os.Exit(1)
	}

	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	service := metrics.NewService()
	service.Initialize(
		metrics.LinearFanSpeedModel{PascalToSpeedGain: cfg.PascalToSpeedGain},
		metrics.LinearAirLeakageModel{LeakageGain: cfg.LeakageGain},
	)

	fan := acquisition.NewChannel("fan", portConfig(cfg.FanSensor), newDriver(cfg))
	envelope := acquisition.NewChannel("envelope", portConfig(cfg.EnvelopeSensor), newDriver(cfg))
	controller := acquisition.NewController(fan, envelope, service, cfg.LogEveryNCycles)

	collector, err := telemetry.NewService(telemetryConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close telemetry collector")
		}
	}()

	go recordTelemetry(ctx, service, collector)

	interval := time.Duration(cfg.Interval) * time.Millisecond
	logger.Info().
		Dur("interval", interval).
		Bool("mock", cfg.Mock).
		Msg("Starting acquisition")

	return controller.Run(ctx, interval)
}

func newDriver(cfg *config.Config) sensor.Driver {
	if cfg.Mock {
		return &sensor.MockDriver{}
	}

	return sensor.NewBridgeDriver()
}

func portConfig(port config.SensorPort) sensor.PortConfig {
	return sensor.PortConfig{
		Device:      port.Device,
		Bus:         port.Bus,
		Address:     uint8(port.Address),
		SDAPin:      port.SDAPin,
		SCLPin:      port.SCLPin,
		FrequencyHz: uint32(port.FrequencyHz),
	}
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = cfg.Telemetry
	if cfg.TelemetryDB != "" {
		tcfg.DBPath = cfg.TelemetryDB
	}

	return tcfg
}

// recordTelemetry polls the published snapshot and hands it to the
// collector. A snapshot read failing before first initialization is
// expected and skipped.
func recordTelemetry(ctx context.Context, service *metrics.Service, collector telemetry.Collector) {
	ticker := time.NewTicker(telemetryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := service.GetSnapshot()
			if err != nil {
				continue
			}
			if err := collector.Record(ctx, &snap); err != nil {
				logger.Error().Err(err).Msg("Failed to record telemetry snapshot")
			}
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
