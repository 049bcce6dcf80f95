package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/cpuctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval        = 5
	defaultDatabase        = "/var/lib/cpuctl/cpuctl.db"
	defaultSurgeThreshold  = 85.0
	defaultMediumThreshold = 60.0
	defaultLowThreshold    = 30.0
	defaultCooldown        = 60
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warning": true,
	"error":   true,
}

type Config struct {
	Interval        int     `mapstructure:"interval"`
	LogLevel        string  `mapstructure:"log_level"`
	Simulate        bool    `mapstructure:"simulate"`
	SysfsPath       string  `mapstructure:"sysfs_path"`
	Audit           bool    `mapstructure:"audit"`
	Database        string  `mapstructure:"database"`
	AutoScale       bool    `mapstructure:"auto_scale"`
	SurgeThreshold  float64 `mapstructure:"surge_threshold"`
	MediumThreshold float64 `mapstructure:"medium_threshold"`
	LowThreshold    float64 `mapstructure:"low_threshold"`
	CooldownSeconds int     `mapstructure:"cooldown"`
}

func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

func (c *Config) IsVerbose() bool {
	return c.LogLevel == "debug" || c.LogLevel == "info"
}

// Load reads configuration from /etc/cpuctl.toml (or CPUCTL_CONFIG),
// environment variables prefixed CPUCTL_, and command-line flags, with later
// sources overriding earlier ones.
func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("simulate", false)
	v.SetDefault("sysfs_path", "")
	v.SetDefault("audit", false)
	v.SetDefault("database", defaultDatabase)
	v.SetDefault("auto_scale", false)
	v.SetDefault("surge_threshold", defaultSurgeThreshold)
	v.SetDefault("medium_threshold", defaultMediumThreshold)
	v.SetDefault("low_threshold", defaultLowThreshold)
	v.SetDefault("cooldown", defaultCooldown)

	flags := pflag.NewFlagSet("cpuctl", pflag.ContinueOnError)
	flags.Int("interval", defaultInterval, "Seconds between sweep/auto-scaling ticks")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("simulate", false, "Force the simulated CPU control backend")
	flags.Bool("audit", false, "Enable the durable audit database")
	flags.String("database", defaultDatabase, "Path to the audit database")
	flags.Bool("auto-scale", false, "Enable CPU-usage auto-scaling")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"interval":   "interval",
		"log_level":  "log-level",
		"simulate":   "simulate",
		"audit":      "audit",
		"database":   "database",
		"auto_scale": "auto-scale",
	}
	for key, flagName := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix("CPUCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CPUCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cpuctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if !validLogLevels[c.LogLevel] {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Audit && c.Database == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "audit enabled without a database path")
	}
	if c.CooldownSeconds < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "cooldown must not be negative")
	}
	for _, threshold := range []float64{c.SurgeThreshold, c.MediumThreshold, c.LowThreshold} {
		if threshold < 0 || threshold > 100 {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "thresholds must be within 0-100 percent")
		}
	}
	if c.SurgeThreshold < c.MediumThreshold || c.MediumThreshold < c.LowThreshold {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "thresholds must be ordered surge >= medium >= low")
	}

	return nil
}
