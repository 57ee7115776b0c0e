// Package config loads engine configuration from file and environment via
// viper, with hot reload on file change.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
)

// Config represents the engine configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SLA      SLAConfig      `mapstructure:"sla"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SLAConfig holds the engine-specific settings.
type SLAConfig struct {
	// CatalogPath points at the YAML catalog document (calendars +
	// policies) supplied by the configuration service.
	CatalogPath string `mapstructure:"catalog_path"`
	// HoldStatuses are the ticket statuses that pause the SLA clock.
	HoldStatuses []string `mapstructure:"hold_statuses"`
	// DispatchSchedule is the cron expression for the obligation loop.
	DispatchSchedule string `mapstructure:"dispatch_schedule"`
	// MarkerTTL bounds how long fired markers are retained.
	MarkerTTL time.Duration `mapstructure:"marker_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "slaengine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "slaengine.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("sla.catalog_path", "catalog.yaml")
	v.SetDefault("sla.hold_statuses", []string{"pending", "on_hold"})
	v.SetDefault("sla.dispatch_schedule", "* * * * *")
	v.SetDefault("sla.marker_ttl", 90*24*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from the given file path. Environment variables
// prefixed with SLAENGINE_ override file values. The file is watched and
// reloaded on change.
func Load(path string) error {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	v.SetEnvPrefix("SLAENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	cfg = &loaded
	mu.Unlock()

	once.Do(func() {
		v.OnConfigChange(func(e fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				return
			}
			mu.Lock()
			cfg = &next
			mu.Unlock()
		})
		v.WatchConfig()
	})

	return nil
}

// Get returns the current configuration, or nil when Load has not run.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Default returns the built-in defaults without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}
