package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-ingest/internal/common"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Store    StoreConfig
	Fetch    FetchConfig
	Geocoder GeocoderConfig
	Events   EventsConfig
	Schedule ScheduleConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type StoreConfig struct {
	Driver         string
	MongoURI       string
	MongoDB        string
	Collection     string
	ConnectTimeout time.Duration
	SQLitePath     string
}

type FetchConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

type GeocoderConfig struct {
	APIKey string
}

// EventsConfig enables run events when Brokers is non-empty.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

type ScheduleConfig struct {
	Interval time.Duration
	// Window is how far back each scheduled run reaches.
	Window time.Duration
}

type ServerConfig struct {
	Port int
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment, after merging a .env file
// if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getenvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	integer := func(key string, def int) int {
		n, err := getenvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}

	cfg := &Config{
		Store: StoreConfig{
			Driver:         getenvDefault("STORE_DRIVER", DriverMongo),
			MongoURI:       getenvDefault("MONGO_URI", "mongodb://localhost:27017/"),
			MongoDB:        getenvDefault("MONGO_DB", "etl_db"),
			Collection:     getenvDefault("COLLECTION_NAME", "open_meteo_raw"),
			ConnectTimeout: duration("MONGO_CONNECT_TIMEOUT", 5*time.Second),
			SQLitePath:     getenvDefault("SQLITE_PATH", "./data/weather-ingest.db"),
		},
		Fetch: FetchConfig{
			BaseURL:        getenvDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
			Timeout:        duration("HTTP_TIMEOUT", 30*time.Second),
			MaxRetries:     integer("FETCH_MAX_RETRIES", 5),
			BackoffInitial: duration("FETCH_BACKOFF_INITIAL", 500*time.Millisecond),
			BackoffMax:     duration("FETCH_BACKOFF_MAX", 10*time.Second),
		},
		Geocoder: GeocoderConfig{
			APIKey: os.Getenv("GEOCODER_API_KEY"),
		},
		Events: EventsConfig{
			Brokers: common.SplitAndTrim(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenvDefault("KAFKA_TOPIC", "weather.ingestion.runs"),
		},
		Schedule: ScheduleConfig{
			Interval: duration("SCHEDULE_INTERVAL", time.Hour),
			Window:   duration("SCHEDULE_WINDOW", 48*time.Hour),
		},
		Server: ServerConfig{
			Port: integer("PORT", 8080),
		},
		Logging: LoggingConfig{
			Level: getenvDefault("LOG_LEVEL", "info"),
		},
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q (want mongo, sqlite or memory)", c.Store.Driver)
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("COLLECTION_NAME must not be empty")
	}
	if c.Store.Driver == DriverMongo && c.Store.MongoDB == "" {
		return fmt.Errorf("MONGO_DB must not be empty")
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES must not be negative")
	}
	if c.Fetch.BackoffInitial <= 0 {
		return fmt.Errorf("FETCH_BACKOFF_INITIAL must be positive")
	}
	if c.Fetch.BackoffMax < c.Fetch.BackoffInitial {
		return fmt.Errorf("FETCH_BACKOFF_MAX must be at least FETCH_BACKOFF_INITIAL")
	}

	if c.Schedule.Interval < time.Minute {
		return fmt.Errorf("SCHEDULE_INTERVAL must be at least 1 minute")
	}
	if c.Schedule.Window < 0 {
		return fmt.Errorf("SCHEDULE_WINDOW must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// EventsEnabled reports whether run events should be published.
func (c *Config) EventsEnabled() bool {
	return len(c.Events.Brokers) > 0
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
