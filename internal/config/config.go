package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RefreshInterval         time.Duration `yaml:"-"`
	RawInterval             string        `yaml:"refresh_interval"`
	NotificationInterval    time.Duration `yaml:"-"`
	RawNotificationInterval string        `yaml:"notification_interval"`
	LogFile                 string        `yaml:"log_file"`
	GitHub                  GitHubConfig  `yaml:"github"`
	Log                     LogConfig     `yaml:"log"`
	TUI                     TUIConfig     `yaml:"tui"`
}

type GitHubConfig struct {
	APIURL        string        `yaml:"api_url"`
	MaxWorkers    int           `yaml:"max_workers"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"-"`
	RawRetryDelay string        `yaml:"retry_delay"`
	CacheTTL      time.Duration `yaml:"-"`
	RawCacheTTL   string        `yaml:"cache_ttl"`
	Timeout       time.Duration `yaml:"-"`
	RawTimeout    string        `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TUIConfig struct {
	RefreshInterval time.Duration `yaml:"-"`
	RawInterval     string        `yaml:"refresh_interval"`
}

// Load reads the YAML config at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	var err error
	if c.RefreshInterval, err = parseDuration("refresh_interval", &c.RawInterval, "5m"); err != nil {
		return err
	}
	if c.NotificationInterval, err = parseDuration("notification_interval", &c.RawNotificationInterval, "1h"); err != nil {
		return err
	}
	if c.TUI.RefreshInterval, err = parseDuration("tui.refresh_interval", &c.TUI.RawInterval, "1s"); err != nil {
		return err
	}
	if c.GitHub.RetryDelay, err = parseDuration("github.retry_delay", &c.GitHub.RawRetryDelay, "1s"); err != nil {
		return err
	}
	if c.GitHub.CacheTTL, err = parseDuration("github.cache_ttl", &c.GitHub.RawCacheTTL, "1h"); err != nil {
		return err
	}
	if c.GitHub.Timeout, err = parseDuration("github.timeout", &c.GitHub.RawTimeout, "30s"); err != nil {
		return err
	}

	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = "https://api.github.com/"
	}
	if c.GitHub.RetryAttempts == 0 {
		c.GitHub.RetryAttempts = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.LogFile == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		c.LogFile = filepath.Join(dir, "pr-monitor", "logs", "pr-monitor.log")
	}

	return nil
}

func parseDuration(name string, raw *string, def string) (time.Duration, error) {
	if *raw == "" {
		*raw = def
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, *raw, err)
	}
	return d, nil
}

func (c *Config) validate() error {
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh_interval must be at least 1m, got %s", c.RawInterval)
	}
	if c.NotificationInterval <= 0 {
		return fmt.Errorf("notification_interval must be positive, got %s", c.RawNotificationInterval)
	}
	if c.TUI.RefreshInterval <= 0 {
		return fmt.Errorf("tui.refresh_interval must be positive, got %s", c.TUI.RawInterval)
	}
	if c.GitHub.MaxWorkers < 0 {
		return fmt.Errorf("github.max_workers must not be negative, got %d", c.GitHub.MaxWorkers)
	}
	if c.GitHub.RetryDelay <= 0 {
		return fmt.Errorf("github.retry_delay must be positive, got %s", c.GitHub.RawRetryDelay)
	}
	if c.GitHub.CacheTTL < 0 {
		return fmt.Errorf("github.cache_ttl must not be negative, got %s", c.GitHub.RawCacheTTL)
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be positive, got %s", c.GitHub.RawTimeout)
	}
	u, err := url.Parse(c.GitHub.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid github.api_url %q", c.GitHub.APIURL)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (debug|info|warn|error)", c.Log.Level)
	}
	return nil
}
