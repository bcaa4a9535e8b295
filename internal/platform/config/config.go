package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PUNCHCLOCK_"

type Config struct {
	DataDir         string         `yaml:"data_dir" env:"DATA_DIR"`
	DisplayTimezone string         `yaml:"display_timezone" env:"DISPLAY_TIMEZONE"`
	EmployeeID      string         `yaml:"employee_id" env:"EMPLOYEE_ID"`
	AccessToken     string         `yaml:"-" env:"TOKEN"`
	Remote          RemoteConfig   `yaml:"remote" envPrefix:"REMOTE_"`
	Session         SessionConfig  `yaml:"session" envPrefix:"SESSION_"`
	Location        LocationConfig `yaml:"location" envPrefix:"LOCATION_"`
	Cache           CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Log             LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

type RemoteConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Timezone string        `yaml:"timezone" env:"TIMEZONE"`
}

type SessionConfig struct {
	MaxDuration  time.Duration `yaml:"max_duration" env:"MAX_DURATION"`
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
}

type LocationConfig struct {
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	Permission string        `yaml:"permission" env:"PERMISSION"`
	Latitude   float64       `yaml:"latitude" env:"LATITUDE"`
	Longitude  float64       `yaml:"longitude" env:"LONGITUDE"`
	PluginPath string        `yaml:"plugin_path" env:"PLUGIN_PATH"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	Key           string `yaml:"key" env:"KEY"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() Config {
	dataDir := ".punchclock"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".punchclock")
	}
	return Config{
		DataDir:         dataDir,
		DisplayTimezone: "Asia/Karachi",
		Remote: RemoteConfig{
			BaseURL:  "https://hrmfiles.com",
			Timeout:  10 * time.Second,
			Timezone: "Asia/Karachi",
		},
		Session: SessionConfig{
			MaxDuration:  12 * time.Hour,
			TickInterval: time.Second,
		},
		Location: LocationConfig{
			Provider:   "static",
			Permission: "prompt",
			Timeout:    15 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     "sqlite",
			Key:         "attendance.snapshot",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "punchclock",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load layers defaults, the YAML file at path, an optional .env file and
// PUNCHCLOCK_* environment variables, in that order. An empty path falls back
// to <data dir>/config.yaml and tolerates its absence.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "punchclock.db")
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data dir is required")
	}
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return fmt.Errorf("remote base url is required")
	}
	if c.Remote.Timeout <= 0 || c.Session.MaxDuration <= 0 || c.Session.TickInterval <= 0 || c.Location.Timeout <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	if c.Session.TickInterval > c.Session.MaxDuration {
		return fmt.Errorf("tick interval %s exceeds max session duration %s", c.Session.TickInterval, c.Session.MaxDuration)
	}
	for _, tz := range []string{c.Remote.Timezone, c.DisplayTimezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	if !oneOf(c.Location.Provider, "static", "plugin") {
		return fmt.Errorf("location provider must be static|plugin, got %q", c.Location.Provider)
	}
	if !oneOf(c.Location.Permission, "granted", "denied", "prompt", "provider") {
		return fmt.Errorf("location permission must be granted|denied|prompt|provider, got %q", c.Location.Permission)
	}
	if c.Location.Permission == "provider" && c.Location.Provider != "plugin" {
		return fmt.Errorf("location permission %q requires the plugin provider", c.Location.Permission)
	}
	if c.Location.Provider == "plugin" && strings.TrimSpace(c.Location.PluginPath) == "" {
		return fmt.Errorf("location plugin path is required for the plugin provider")
	}
	if !oneOf(c.Cache.Backend, "sqlite", "file", "redis") {
		return fmt.Errorf("cache backend must be sqlite|file|redis, got %q", c.Cache.Backend)
	}
	if strings.TrimSpace(c.Cache.Key) == "" {
		return fmt.Errorf("cache key is required")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
