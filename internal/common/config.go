package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Browser     BrowserConfig `toml:"browser"`
	Naver       NaverConfig   `toml:"naver"`
	Tasks       TasksConfig   `toml:"tasks"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger   BadgerConfig   `toml:"badger"`
	Sessions SessionsConfig `toml:"sessions"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// SessionsConfig selects the cookie session backend
type SessionsConfig struct {
	Backend string `toml:"backend"` // "badger" (document store) or "file"
	Dir     string `toml:"dir"`     // Directory for the file backend
	TTL     string `toml:"ttl"`     // Document store expiry from upload, e.g. "168h"
}

// BrowserConfig controls how browser instances are launched and pooled
type BrowserConfig struct {
	Headless        bool     `toml:"headless"`
	BinaryPath      string   `toml:"binary_path"`      // Explicit browser binary, empty = auto-discover
	DeploymentPath  string   `toml:"deployment_path"`  // Binary used when running on a dyno
	UserAgent       string   `toml:"user_agent"`       // Fallback when the session has no fingerprint
	WindowWidth     int      `toml:"window_width"`     // Fallback viewport width
	WindowHeight    int      `toml:"window_height"`    // Fallback viewport height
	NoSandbox       bool     `toml:"no_sandbox"`       // Required in most containers
	StartupTimeout  string   `toml:"startup_timeout"`  // e.g. "30s"
	Persistent      bool     `toml:"persistent"`       // Keep one browser per user between requests
	IdleTimeout     string   `toml:"idle_timeout"`     // e.g. "30m"
	SweepInterval   string   `toml:"sweep_interval"`   // e.g. "1m"
	CookieURL       string   `toml:"cookie_url"`       // Page visited before cookies are injected
	CriticalCookies []string `toml:"critical_cookies"` // Cookies whose injection failure is surfaced
}

// NaverConfig holds scraping behaviour for the place platform
type NaverConfig struct {
	DashboardURL      string  `toml:"dashboard_url"`
	PlaceBaseURL      string  `toml:"place_base_url"`
	ReviewsCacheTTL   string  `toml:"reviews_cache_ttl"`  // e.g. "10m"
	PlacesCacheTTL    string  `toml:"places_cache_ttl"`   // e.g. "5m"
	ProgressRetention string  `toml:"progress_retention"` // Terminal progress records revert to idle after this
	BufferFactor      float64 `toml:"buffer_factor"`      // Initial raw scroll target multiplier
	SkipSampling      bool    `toml:"skip_sampling"`      // Estimate the filtered-out ratio while scrolling
	NoChangeLimit     int     `toml:"no_change_limit"`    // Consecutive unchanged scrolls before giving up
	ScrollDelay       string  `toml:"scroll_delay"`       // Wait between scrolls
	PostInterval      string  `toml:"post_interval"`      // Minimum spacing between reply submissions
	PlaceWaitTimeout  string  `toml:"place_wait_timeout"` // Ceiling for business links to render
}

// TasksConfig controls the background executor
type TasksConfig struct {
	Concurrency     int    `toml:"concurrency"`      // Worker goroutines
	Retention       string `toml:"retention"`        // Tasks older than this are deleted, e.g. "168h"
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron schedule (with seconds) for the retention sweep
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			Sessions: SessionsConfig{
				Backend: "badger",
				Dir:     "./data/naver_sessions",
				TTL:     "168h", // 7 days from upload
			},
		},
		Browser: BrowserConfig{
			Headless:        true,
			DeploymentPath:  "/app/.chrome-for-testing/chrome-linux64/chrome",
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:     1280,
			WindowHeight:    720,
			NoSandbox:       true,
			StartupTimeout:  "30s",
			Persistent:      true,
			IdleTimeout:     "30m",
			SweepInterval:   "1m",
			CookieURL:       "https://www.naver.com",
			CriticalCookies: []string{"NID_AUT", "NID_SES", "NID_JKL"},
		},
		Naver: NaverConfig{
			DashboardURL:      "https://new.smartplace.naver.com/bizes",
			PlaceBaseURL:      "https://new.smartplace.naver.com/bizes/place",
			ReviewsCacheTTL:   "10m",
			PlacesCacheTTL:    "5m",
			ProgressRetention: "30s",
			BufferFactor:      1.8,
			SkipSampling:      true,
			NoChangeLimit:     10,
			ScrollDelay:       "500ms",
			PostInterval:      "3s",
			PlaceWaitTimeout:  "10s",
		},
		Tasks: TasksConfig{
			Concurrency:     4,
			Retention:       "168h",
			CleanupSchedule: "0 0 3 * * *", // 03:00 daily
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("REPLYDESK_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("REPLYDESK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	} else if port := os.Getenv("PORT"); port != "" {
		// Platform-assigned port on dynos
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("REPLYDESK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("REPLYDESK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if backend := os.Getenv("REPLYDESK_SESSION_BACKEND"); backend != "" {
		config.Storage.Sessions.Backend = backend
	}
	if dir := os.Getenv("REPLYDESK_SESSION_DIR"); dir != "" {
		config.Storage.Sessions.Dir = dir
	}

	// Browser configuration
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		config.Browser.BinaryPath = bin
	}
	if headless := os.Getenv("REPLYDESK_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if idle := os.Getenv("REPLYDESK_BROWSER_IDLE_TIMEOUT"); idle != "" {
		config.Browser.IdleTimeout = idle
	}

	// Tasks configuration
	if concurrency := os.Getenv("REPLYDESK_TASKS_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Tasks.Concurrency = c
		}
	}

	// Logging configuration
	if level := os.Getenv("REPLYDESK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("REPLYDESK_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate rejects configurations the services cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Sessions.Backend {
	case "badger", "file":
	default:
		return fmt.Errorf("invalid storage.sessions.backend %q (expected badger or file)", c.Storage.Sessions.Backend)
	}
	if c.Tasks.Concurrency <= 0 {
		return fmt.Errorf("tasks.concurrency must be greater than 0, got: %d", c.Tasks.Concurrency)
	}
	if c.Naver.BufferFactor < 1 {
		return fmt.Errorf("naver.buffer_factor must be at least 1, got: %v", c.Naver.BufferFactor)
	}
	if c.Tasks.CleanupSchedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Tasks.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid tasks.cleanup_schedule: %w", err)
		}
	}
	return nil
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseDuration parses a config duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
