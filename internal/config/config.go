// Package config loads server settings from an optional YAML file overlaid with
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the API server.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	// DBMigrate applies embedded migrations at startup.
	DBMigrate bool   `yaml:"dbMigrate"`
	RedisURL  string `yaml:"redisUrl"`

	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	EvalInterval time.Duration `yaml:"evalInterval"`
	// PurgeAt is the local HH:MM at which alert history is cleared daily.
	PurgeAt string `yaml:"purgeAt"`

	Webhook Webhook `yaml:"webhook"`
}

// Webhook configures outbound alert delivery. An empty URL disables it.
type Webhook struct {
	URL         string `yaml:"url"`
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:         "8080",
		DBMigrate:    true,
		RateRPS:      20,
		RateBurst:    40,
		LogLevel:     "info",
		LogFormat:    "json",
		EvalInterval: 30 * time.Second,
		PurgeAt:      "00:00",
		Webhook:      Webhook{MaxAttempts: 10},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("PURGE_AT", &c.PurgeAt)
	str("ALERT_WEBHOOK_URL", &c.Webhook.URL)
	str("ALERT_WEBHOOK_SECRET", &c.Webhook.Secret)

	if v, ok := lookup("DB_MIGRATE"); ok && v != "" {
		c.DBMigrate = v != "false"
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.RateRPS = f
	}
	if v, ok := lookup("RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		c.RateBurst = n
	}
	if v, ok := lookup("EVAL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EVAL_INTERVAL: %w", err)
		}
		c.EvalInterval = d
	}
	if v, ok := lookup("WEBHOOK_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
		}
		c.Webhook.MaxAttempts = n
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.EvalInterval <= 0 {
		errs = append(errs, errors.New("evalInterval must be positive"))
	}
	if _, _, err := c.PurgeClock(); err != nil {
		errs = append(errs, err)
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.Webhook.MaxAttempts <= 0 {
		errs = append(errs, errors.New("webhook maxAttempts must be positive"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logFormat %q: want json or console", c.LogFormat))
	}
	return errors.Join(errs...)
}

// PurgeClock splits PurgeAt into hour and minute.
func (c Config) PurgeClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.PurgeAt)
	if err != nil {
		return 0, 0, fmt.Errorf("purgeAt %q: want HH:MM", c.PurgeAt)
	}
	return t.Hour(), t.Minute(), nil
}
