package config

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/mutker/airqd/internal/errors"
)

const (
	DefaultPort        = 9185
	DefaultHumidityURL = "http://192.168.1.40:9521/metrics"
	DefaultHumidityMAC = "E7:2E:00:C6:8C:9E"

	defaultInterval     = 1
	defaultBaselinePath = "sgp30.baseline"
	defaultHistoryDB    = "/var/lib/airqd/history.db"
)

type Config struct {
	// Port is the bind port of the metrics exposition endpoint.
	Port int
	// HumidityURL is the peer metrics endpoint scraped for ambient
	// temperature and relative humidity.
	HumidityURL string `mapstructure:"humidity_url"`
	// HumidityMAC selects the device label to consume from the scraped body.
	HumidityMAC string `mapstructure:"humidity_mac"`
	// Bus is the I2C bus name or alias. Empty selects the first available bus.
	Bus string
	// BaselinePath is where the sensor calibration baseline is persisted.
	BaselinePath string `mapstructure:"baseline_path"`
	// Interval is the measurement period in seconds.
	Interval int
	// History enables recording measurements to a local database.
	History   bool
	HistoryDB string `mapstructure:"history_db"`
	Debug     bool
	Verbose   bool
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("humidity_url", DefaultHumidityURL)
	v.SetDefault("humidity_mac", DefaultHumidityMAC)
	v.SetDefault("bus", "")
	v.SetDefault("baseline_path", defaultBaselinePath)
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("history", false)
	v.SetDefault("history_db", defaultHistoryDB)

	fs := pflag.NewFlagSet("airqd", pflag.ContinueOnError)
	fs.Int("port", DefaultPort, "Metrics exposition port")
	fs.String("humidity-url", DefaultHumidityURL, "Peer endpoint scraped for humidity compensation")
	fs.String("humidity-mac", DefaultHumidityMAC, "Device label to select from the scraped endpoint")
	fs.String("bus", "", "I2C bus name (empty for first available)")
	fs.String("baseline-path", defaultBaselinePath, "Path of the persisted calibration baseline")
	fs.Int("interval", defaultInterval, "Measurement interval in seconds")
	fs.Bool("history", false, "Record measurements to a local database")
	fs.String("history-db", defaultHistoryDB, "Path of the measurement history database")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	fs.Visit(func(f *pflag.Flag) {
		key := f.Name
		switch f.Name {
		case "humidity-url":
			key = "humidity_url"
		case "humidity-mac":
			key = "humidity_mac"
		case "baseline-path":
			key = "baseline_path"
		case "history-db":
			key = "history_db"
		}
		v.Set(key, f.Value.String())
	})

	// Recognized environment overrides.
	for key, env := range map[string]string{
		"port":         "PORT",
		"humidity_url": "HUMIDITY_URL",
		"humidity_mac": "HUMIDITY_MAC",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetConfigName("airqd")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if path := os.Getenv("AIRQD_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
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

	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if config.Verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Port <= 0 || c.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{Field: "port", Value: c.Port})
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Field string
			Value int
		}{Field: "interval", Value: c.Interval})
	}
	if c.HumidityURL == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
		}{Field: "humidity_url"})
	}
	if c.History && c.HistoryDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
		}{Field: "history_db"})
	}

	return nil
}
