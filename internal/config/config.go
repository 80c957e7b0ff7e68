// Package config provides configuration loading and validation for the
// wohnblitz service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonathan/wohnblitz/internal/bot"
	"github.com/jonathan/wohnblitz/internal/listings"
	"github.com/jonathan/wohnblitz/internal/maintenance"
	"github.com/jonathan/wohnblitz/internal/session"
)

// Duration is a time.Duration written as a Go duration string ("15m") in
// JSON config files.
type Duration time.Duration

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"15m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the process configuration. Values come from the defaults, then an
// optional JSON file, then the environment.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	Port        int    `json:"port,omitempty"`         // HTTP port for serve

	// Crawling and applying
	ListingsURL   string   `json:"listings_url,omitempty"`
	PollInterval  Duration `json:"poll_interval,omitempty"`
	PauseMin      Duration `json:"pause_min,omitempty"`
	PauseMax      Duration `json:"pause_max,omitempty"`
	ErrorCooldown Duration `json:"error_cooldown,omitempty"`
	MaxCooldown   Duration `json:"max_cooldown,omitempty"`
	MaxRestarts   int      `json:"max_restarts,omitempty"` // 0 retries forever
	StopTimeout   Duration `json:"stop_timeout,omitempty"`

	// Maintenance
	MaintenanceInterval Duration `json:"maintenance_interval,omitempty"`
	LogRetention        Duration `json:"log_retention,omitempty"`
	StaleAfter          Duration `json:"stale_after,omitempty"`

	// Browser
	BrowserHeadless bool     `json:"browser_headless"`
	ChromePath      string   `json:"chrome_path,omitempty"`
	PageTimeout     Duration `json:"page_timeout,omitempty"`
	FormTimeout     Duration `json:"form_timeout,omitempty"`
	ConfirmWait     Duration `json:"confirm_wait,omitempty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	b := bot.DefaultOptions()
	s := session.DefaultOptions()
	m := maintenance.DefaultOptions()
	return Config{
		Port:                8080,
		ListingsURL:         listings.DefaultListingsURL,
		PollInterval:        Duration(b.PollInterval),
		PauseMin:            Duration(b.PauseMin),
		PauseMax:            Duration(b.PauseMax),
		ErrorCooldown:       Duration(b.ErrorCooldown),
		MaxCooldown:         Duration(b.MaxCooldown),
		MaxRestarts:         b.MaxRestarts,
		StopTimeout:         Duration(b.StopTimeout),
		MaintenanceInterval: Duration(m.Interval),
		LogRetention:        Duration(m.Retention),
		StaleAfter:          Duration(m.StaleAfter),
		BrowserHeadless:     s.Headless,
		PageTimeout:         Duration(s.PageTimeout),
		FormTimeout:         Duration(s.FormTimeout),
		ConfirmWait:         Duration(s.ConfirmWait),
	}
}

// LoadConfig loads configuration from a JSON file on top of the defaults.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// Load builds the configuration from the defaults, the optional JSON file at
// path and the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fromFile, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *fromFile
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields with the environment variables that are set.
// Unparseable values are ignored.
func (c *Config) ApplyEnv() {
	c.DatabaseURL = getEnvString("DATABASE_URL", c.DatabaseURL)
	c.Port = getEnvInt("PORT", c.Port)

	c.ListingsURL = getEnvString("WB_LISTINGS_URL", c.ListingsURL)
	c.PollInterval = getEnvDuration("WB_POLL_INTERVAL", c.PollInterval)
	c.PauseMin = getEnvDuration("WB_PAUSE_MIN", c.PauseMin)
	c.PauseMax = getEnvDuration("WB_PAUSE_MAX", c.PauseMax)
	c.ErrorCooldown = getEnvDuration("WB_ERROR_COOLDOWN", c.ErrorCooldown)
	c.MaxCooldown = getEnvDuration("WB_MAX_COOLDOWN", c.MaxCooldown)
	c.MaxRestarts = getEnvInt("WB_MAX_RESTARTS", c.MaxRestarts)
	c.StopTimeout = getEnvDuration("WB_STOP_TIMEOUT", c.StopTimeout)

	c.MaintenanceInterval = getEnvDuration("WB_MAINTENANCE_INTERVAL", c.MaintenanceInterval)
	c.LogRetention = getEnvDuration("WB_LOG_RETENTION", c.LogRetention)
	c.StaleAfter = getEnvDuration("WB_STALE_AFTER", c.StaleAfter)

	c.BrowserHeadless = getEnvBool("WB_BROWSER_HEADLESS", c.BrowserHeadless)
	c.ChromePath = getEnvString("WB_CHROME_PATH", c.ChromePath)
	c.PageTimeout = getEnvDuration("WB_PAGE_TIMEOUT", c.PageTimeout)
	c.FormTimeout = getEnvDuration("WB_FORM_TIMEOUT", c.FormTimeout)
	c.ConfirmWait = getEnvDuration("WB_CONFIRM_WAIT", c.ConfirmWait)
}

// Validate checks that the configuration has valid values. The database URL
// is checked separately by RequireDatabase since not every command needs it.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535")
	}

	u, err := url.Parse(c.ListingsURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config error: 'listings_url' must be an absolute http(s) URL")
	}

	positive := []struct {
		name  string
		value Duration
	}{
		{"poll_interval", c.PollInterval},
		{"error_cooldown", c.ErrorCooldown},
		{"max_cooldown", c.MaxCooldown},
		{"stop_timeout", c.StopTimeout},
		{"maintenance_interval", c.MaintenanceInterval},
		{"log_retention", c.LogRetention},
		{"stale_after", c.StaleAfter},
		{"page_timeout", c.PageTimeout},
		{"form_timeout", c.FormTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("config error: '%s' must be positive", p.name)
		}
	}

	if c.PauseMin < 0 || c.ConfirmWait < 0 {
		return fmt.Errorf("config error: 'pause_min' and 'confirm_wait' must be non-negative")
	}
	if c.PauseMax < c.PauseMin {
		return fmt.Errorf("config error: 'pause_max' must not be less than 'pause_min'")
	}
	if c.MaxCooldown < c.ErrorCooldown {
		return fmt.Errorf("config error: 'max_cooldown' must not be less than 'error_cooldown'")
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("config error: 'max_restarts' must be non-negative")
	}
	if c.ChromePath != "" {
		if _, err := os.Stat(c.ChromePath); os.IsNotExist(err) {
			return fmt.Errorf("config error: chrome binary not found: %s", c.ChromePath)
		}
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is not set")
	}
	return nil
}

// ----- Component Options -----

// BotOptions returns the per-user bot timing.
func (c *Config) BotOptions() bot.Options {
	return bot.Options{
		PollInterval:  time.Duration(c.PollInterval),
		PauseMin:      time.Duration(c.PauseMin),
		PauseMax:      time.Duration(c.PauseMax),
		ErrorCooldown: time.Duration(c.ErrorCooldown),
		MaxCooldown:   time.Duration(c.MaxCooldown),
		MaxRestarts:   c.MaxRestarts,
		StopTimeout:   time.Duration(c.StopTimeout),
	}
}

// SessionOptions returns the browser options, starting from the site
// defaults for everything the config does not cover.
func (c *Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.ListingsURL = c.ListingsURL
	opts.Headless = c.BrowserHeadless
	opts.ExecPath = c.ChromePath
	opts.PageTimeout = time.Duration(c.PageTimeout)
	opts.FormTimeout = time.Duration(c.FormTimeout)
	opts.ConfirmWait = time.Duration(c.ConfirmWait)
	return opts
}

// MaintenanceOptions returns the scheduler options.
func (c *Config) MaintenanceOptions() maintenance.Options {
	opts := maintenance.DefaultOptions()
	opts.Interval = time.Duration(c.MaintenanceInterval)
	opts.Retention = time.Duration(c.LogRetention)
	opts.StaleAfter = time.Duration(c.StaleAfter)
	return opts
}

// ----- Environment Helpers -----

func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return defaultValue
}
