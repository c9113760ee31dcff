package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Geofence GeofenceConfig `yaml:"geofence" envPrefix:"GEOFENCE_"`
	Location LocationConfig `yaml:"location" envPrefix:"LOCATION_"`
	Refresh  RefreshConfig  `yaml:"refresh" envPrefix:"REFRESH_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port              int     `yaml:"port" env:"PORT"`
	RateLimitPerSec   float64 `yaml:"rate_limit_per_sec" env:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst    int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CacheTTLSeconds   int     `yaml:"cache_ttl_seconds" env:"CACHE_TTL_SECONDS"`
	MessageTTLSeconds int     `yaml:"message_ttl_seconds" env:"MESSAGE_TTL_SECONDS"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"DRIVER"`
	DSN                    string `yaml:"dsn" env:"DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" env:"CONN_MAX_LIFETIME_MINUTES"`
	LogQueries             bool   `yaml:"log_queries" env:"LOG_QUERIES"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// GeofenceConfig is the fixed reference point of the library.
type GeofenceConfig struct {
	Latitude     float64 `yaml:"latitude" env:"LATITUDE"`
	Longitude    float64 `yaml:"longitude" env:"LONGITUDE"`
	RadiusMeters float64 `yaml:"radius_meters" env:"RADIUS_METERS"`
}

// LocationConfig selects and tunes the location source.
type LocationConfig struct {
	// Source is "feed" (samples posted to the API) or "poll".
	Source              string             `yaml:"source" env:"SOURCE"`
	Enabled             bool               `yaml:"enabled" env:"ENABLED"`
	HighAccuracy        bool               `yaml:"high_accuracy" env:"HIGH_ACCURACY"`
	MaxSampleAgeSeconds int                `yaml:"max_sample_age_seconds" env:"MAX_SAMPLE_AGE_SECONDS"`
	TimeoutSeconds      int                `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxSampleAge        time.Duration      `yaml:"-"`
	Timeout             time.Duration      `yaml:"-"`
	Poll                LocationPollConfig `yaml:"poll" envPrefix:"POLL_"`
}

// LocationPollConfig describes an HTTP endpoint reporting the device position.
type LocationPollConfig struct {
	URL             string            `yaml:"url" env:"URL"`
	Headers         map[string]string `yaml:"headers"`
	HTTPProxy       string            `yaml:"http_proxy" env:"HTTP_PROXY"`
	IntervalSeconds int               `yaml:"interval_seconds" env:"INTERVAL_SECONDS"`
	Interval        time.Duration     `yaml:"-"`
}

// RefreshConfig controls the occupancy and leaderboard refresh loop.
type RefreshConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds" env:"INTERVAL_SECONDS"`
	Interval        time.Duration `yaml:"-"`
	LeaderboardSize int           `yaml:"leaderboard_size" env:"LEADERBOARD_SIZE"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// Load reads the configuration from the given path, applies PRESENCE_*
// environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PRESENCE_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Server.MessageTTLSeconds <= 0 {
		cfg.Server.MessageTTLSeconds = 3
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "presence.db"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Geofence.RadiusMeters <= 0 {
		cfg.Geofence.RadiusMeters = 50
	}

	if cfg.Location.Source == "" {
		cfg.Location.Source = "feed"
	}
	if cfg.Location.MaxSampleAgeSeconds <= 0 {
		cfg.Location.MaxSampleAgeSeconds = 60
	}
	cfg.Location.MaxSampleAge = time.Duration(cfg.Location.MaxSampleAgeSeconds) * time.Second
	if cfg.Location.TimeoutSeconds <= 0 {
		cfg.Location.TimeoutSeconds = 10
	}
	cfg.Location.Timeout = time.Duration(cfg.Location.TimeoutSeconds) * time.Second
	if cfg.Location.Poll.IntervalSeconds <= 0 {
		cfg.Location.Poll.IntervalSeconds = 15
	}
	cfg.Location.Poll.Interval = time.Duration(cfg.Location.Poll.IntervalSeconds) * time.Second

	if cfg.Refresh.IntervalSeconds <= 0 {
		cfg.Refresh.IntervalSeconds = 30
	}
	cfg.Refresh.Interval = time.Duration(cfg.Refresh.IntervalSeconds) * time.Second
	if cfg.Refresh.LeaderboardSize <= 0 {
		cfg.Refresh.LeaderboardSize = 10
	}
}

// Validate checks values defaults cannot fix.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
	}
	if cfg.Geofence.Latitude < -90 || cfg.Geofence.Latitude > 90 {
		return fmt.Errorf("geofence.latitude out of range: %v", cfg.Geofence.Latitude)
	}
	if cfg.Geofence.Longitude < -180 || cfg.Geofence.Longitude > 180 {
		return fmt.Errorf("geofence.longitude out of range: %v", cfg.Geofence.Longitude)
	}
	switch cfg.Location.Source {
	case "feed":
	case "poll":
		if cfg.Location.Poll.URL == "" {
			return fmt.Errorf("location.poll.url is required when location.source is poll")
		}
	default:
		return fmt.Errorf("location.source must be feed or poll, got %q", cfg.Location.Source)
	}
	return nil
}
