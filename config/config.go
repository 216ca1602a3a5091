// Package config loads finance-tracker settings.
//
// Sources are layered, later ones win:
//
//	defaults -> YAML file (optional) -> .env file -> FINANCE_* environment
//
// Command-line flags are applied on top by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FINANCE_"

type Config struct {
	DBPath    string          `yaml:"db_path"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // json or text
	SafetyCap int             `yaml:"safety_cap"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	CORS      CORSConfig      `yaml:"cors"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		DBPath:    "./data/finance.db",
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "json",
		SafetyCap: 100,
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
	}
}

// Options selects the files Load reads. Empty paths fall back to defaults:
// no YAML file, and ".env" in the working directory if it exists.
type Options struct {
	File    string
	EnvFile string
}

// Load builds the configuration from all sources and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", opts.File, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return cfg, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// a missing .env is fine
		_ = godotenv.Load()
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.DBPath = getEnvOrDefault("DB_PATH", c.DBPath)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)

	var err error
	if c.Port, err = parseIntEnv("PORT", c.Port); err != nil {
		return err
	}
	if c.SafetyCap, err = parseIntEnv("SAFETY_CAP", c.SafetyCap); err != nil {
		return err
	}

	if v := os.Getenv(envPrefix + "SCHEDULER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %sSCHEDULER_ENABLED: %s", envPrefix, v)
		}
		c.Scheduler.Enabled = enabled
	}
	if v := os.Getenv(envPrefix + "SCHEDULER_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration for %sSCHEDULER_INTERVAL: %s", envPrefix, v)
		}
		c.Scheduler.Interval = interval
	}
	if v := os.Getenv(envPrefix + "CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
	return nil
}

// Validate rejects settings the server can't start with.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.SafetyCap <= 0 {
		errs = append(errs, fmt.Errorf("safety_cap must be positive, got %d", c.SafetyCap))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s%s: %s", envPrefix, key, value)
	}
	return parsed, nil
}
