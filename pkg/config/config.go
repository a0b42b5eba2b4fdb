// Package config loads configuration for the provisioning and
// execution-logging components from a config file and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/cache"
)

// Configuration errors raised before any remote call is attempted
var (
	ErrMissingAPIKey    = errors.New("control plane API key is required")
	ErrMissingBaseURL   = errors.New("control plane base URL is required")
	ErrMissingSystemDSN = errors.New("system database DSN is required")
)

// ControlPlaneConfig holds settings for the database-hosting API
type ControlPlaneConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	DefaultDatabase string        `mapstructure:"default_database"`
	DefaultRole     string        `mapstructure:"default_role"`

	// Rate limit applied to outbound control-plane calls
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestBurst      int     `mapstructure:"request_burst"`

	// Readiness polling after an asynchronous create
	ReadinessTimeout  time.Duration `mapstructure:"readiness_timeout"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval"`
}

// DatabaseConfig holds settings for the system (non-tenant) database and
// for pools opened against tenant connection strings.
type DatabaseConfig struct {
	SystemDSN       string        `mapstructure:"system_dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig selects the provisioning cache backend. Redis is optional;
// when disabled everything stays process-local.
type CacheConfig struct {
	RedisEnabled bool              `mapstructure:"redis_enabled"`
	Redis        cache.RedisConfig `mapstructure:"redis"`
	TTL          time.Duration     `mapstructure:"ttl"`
}

// LoggingConfig holds the configuration for logging
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds the complete configuration
type Config struct {
	Environment  string             `mapstructure:"environment"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Local development reads a .env file when present
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("AGENT_BASE_CONFIG_FILE")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AGENT_BASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind well-known environment variables that don't follow the prefix
	_ = v.BindEnv("control_plane.api_key", "NEON_API_KEY")
	_ = v.BindEnv("control_plane.api_key", "CONTROL_PLANE_API_KEY")
	_ = v.BindEnv("control_plane.base_url", "CONTROL_PLANE_BASE_URL")
	_ = v.BindEnv("database.system_dsn", "DATABASE_URL")
	_ = v.BindEnv("cache.redis.address", "REDIS_ADDR")
	_ = v.BindEnv("cache.redis.address", "REDIS_ADDRESS")

	v.AllowEmptyEnv(true)

	if err := v.ReadInConfig(); err != nil {
		// Config file is not required if environment variables are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// Validate checks configuration that provisioning code paths require.
// Failures here are fatal and must be raised before any remote call.
func (c *Config) Validate() error {
	if c.ControlPlane.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.ControlPlane.BaseURL == "" {
		return ErrMissingBaseURL
	}
	return nil
}

// ValidateSystemDatabase checks configuration that system-wide (non-tenant)
// logging requires.
func (c *Config) ValidateSystemDatabase() error {
	if c.Database.SystemDSN == "" {
		return ErrMissingSystemDSN
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("control_plane.timeout", 30*time.Second)
	v.SetDefault("control_plane.default_database", "main")
	v.SetDefault("control_plane.default_role", "app")
	v.SetDefault("control_plane.requests_per_second", 10.0)
	v.SetDefault("control_plane.request_burst", 20)
	v.SetDefault("control_plane.readiness_timeout", 2*time.Minute)
	v.SetDefault("control_plane.readiness_interval", 500*time.Millisecond)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("cache.redis_enabled", false)
	v.SetDefault("cache.redis.key_prefix", "provision:")
	v.SetDefault("cache.redis.dial_timeout", 5*time.Second)
	v.SetDefault("cache.redis.read_timeout", 3*time.Second)
	v.SetDefault("cache.redis.write_timeout", 3*time.Second)
	v.SetDefault("cache.ttl", time.Duration(0))

	v.SetDefault("logging.level", "info")
}
