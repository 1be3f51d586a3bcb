package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/blowerctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval        = 100 // milliseconds
	defaultLogEveryNCycles = 50
	defaultTelemetryDB     = "/var/lib/blowerctl/telemetry.db"
)

// SensorPort describes one sensor's position on the bridge. The values
// are passed through to the driver and logged; nothing in this daemon
// interprets them further.
type SensorPort struct {
	Device      string `mapstructure:"device"`
	Bus         int    `mapstructure:"bus"`
	Address     int    `mapstructure:"address"`
	SDAPin      int    `mapstructure:"sda_pin"`
	SCLPin      int    `mapstructure:"scl_pin"`
	FrequencyHz int    `mapstructure:"frequency_hz"`
}

type Config struct {
	Interval          int     `mapstructure:"interval"` // acquisition period in milliseconds
	LogLevel          string  `mapstructure:"log_level"`
	LogEveryNCycles   int     `mapstructure:"log_every_n_cycles"` // 0 disables periodic summaries
	PascalToSpeedGain float64 `mapstructure:"pascal_to_speed_gain"`
	LeakageGain       float64 `mapstructure:"leakage_gain"`
	Telemetry         bool    `mapstructure:"telemetry"`
	TelemetryDB       string  `mapstructure:"database"`
	Mock              bool    `mapstructure:"mock"`

	FanSensor      SensorPort `mapstructure:"fan_sensor"`
	EnvelopeSensor SensorPort `mapstructure:"envelope_sensor"`
}

// Load reads configuration from the TOML config file, environment and
// command-line flags, in ascending precedence.
func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("blowerctl", pflag.ContinueOnError)
	flags.String("config", "", "Path to config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Int("interval", 0, "Acquisition interval in milliseconds")
	flags.Bool("mock", false, "Use the mock sensor driver instead of the bridge")
	flags.Bool("telemetry", false, "Enable telemetry recording")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = os.Getenv("BLOWERCTL_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName("blowerctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	v.SetEnvPrefix("BLOWERCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Flags that were actually set override everything else.
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_every_n_cycles", defaultLogEveryNCycles)
	v.SetDefault("pascal_to_speed_gain", 1.0)
	v.SetDefault("leakage_gain", 1.0)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", defaultTelemetryDB)
	v.SetDefault("mock", false)

	v.SetDefault("fan_sensor.device", "/dev/ttyACM0")
	v.SetDefault("fan_sensor.bus", 0)
	v.SetDefault("fan_sensor.address", 0x25)
	v.SetDefault("fan_sensor.sda_pin", 4)
	v.SetDefault("fan_sensor.scl_pin", 5)
	v.SetDefault("fan_sensor.frequency_hz", 400000)

	v.SetDefault("envelope_sensor.device", "/dev/ttyACM1")
	v.SetDefault("envelope_sensor.bus", 1)
	v.SetDefault("envelope_sensor.address", 0x25)
	v.SetDefault("envelope_sensor.sda_pin", 6)
	v.SetDefault("envelope_sensor.scl_pin", 7)
	v.SetDefault("envelope_sensor.frequency_hz", 400000)
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "telemetry enabled without a database path")
	}

	return nil
}
