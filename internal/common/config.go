package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Scanner     ScannerConfig   `toml:"scanner"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Browser     BrowserConfig   `toml:"browser"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig holds the sqlite database location. DatabaseURL accepts a
// plain file path or a "file:..." DSN.
type StorageConfig struct {
	DatabaseURL string `toml:"database_url"`
}

// ScannerConfig controls page fetching and site crawling defaults. Per-job
// options override these at scan-creation time.
type ScannerConfig struct {
	MaxPages         int      `toml:"max_pages"`          // Site crawl page cap
	DefaultSiteDepth int      `toml:"default_site_depth"` // BFS depth for site scans
	UserAgent        string   `toml:"user_agent"`         // Sent on static fetches and browser loads
	RequestTimeoutMs int      `toml:"request_timeout_ms"` // Per-request timeout, clamped to 1000..120000
	UseBrowser       bool     `toml:"use_browser"`        // Render pages in a headless browser
	DeviceProfiles   []string `toml:"device_profiles"`    // Profiles scanned per page in browser mode
	RequestsPerSec   float64  `toml:"requests_per_sec"`   // Politeness limit for static crawl fetches
}

// SchedulerConfig controls the worker pool and housekeeping sweep
type SchedulerConfig struct {
	MaxConcurrency int    `toml:"max_concurrency"` // Concurrent scan jobs, clamped to 1..50
	StaleAfter     string `toml:"stale_after"`     // Running jobs older than this are re-enqueued (duration string)
	SweepSchedule  string `toml:"sweep_schedule"`  // Cron schedule for the stale-job sweep
}

type BrowserConfig struct {
	TimeoutMs     int  `toml:"timeout_ms"`      // Per-page browser deadline
	NetworkIdleMs int  `toml:"network_idle_ms"` // Quiet period treated as network idle
	Headless      bool `toml:"headless"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig controls the live task-event push channel
type WebSocketConfig struct {
	WriteTimeoutMs int `toml:"write_timeout_ms"`
	BufferSize     int `toml:"buffer_size"` // Per-client outbound event buffer
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			DatabaseURL: "./data/seoscan.db",
		},
		Scanner: ScannerConfig{
			MaxPages:         100,
			DefaultSiteDepth: 2,
			UserAgent:        "BunSEOChecker/1.0",
			RequestTimeoutMs: 15000,
			UseBrowser:       true,
			DeviceProfiles:   []string{"desktop"},
			RequestsPerSec:   4,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrency: 5,
			StaleAfter:     "30m",
			SweepSchedule:  "0 * * * * *", // Every minute
		},
		Browser: BrowserConfig{
			TimeoutMs:     30000,
			NetworkIdleMs: 500,
			Headless:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			WriteTimeoutMs: 5000,
			BufferSize:     64,
		},
	}
}

// LoadConfig loads configuration from a TOML file with environment overrides.
// A missing file is not an error; defaults plus environment apply.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)
	config.clamp()

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.DatabaseURL = v
	}
	if v := os.Getenv("SCAN_WORKERS_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scheduler.MaxConcurrency = n
		}
	}
	if v := os.Getenv("SCANNER_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scanner.MaxPages = n
		}
	}
	if v := os.Getenv("SCANNER_DEFAULT_SITE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scanner.DefaultSiteDepth = n
		}
	}
	if v := os.Getenv("SCANNER_USER_AGENT"); v != "" {
		config.Scanner.UserAgent = v
	}
	if v := os.Getenv("SCANNER_REQUEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scanner.RequestTimeoutMs = n
		}
	}
	if v := os.Getenv("SCANNER_USE_BROWSER"); v != "" {
		config.Scanner.UseBrowser = parseBool(v, config.Scanner.UseBrowser)
	}
	if v := os.Getenv("SCANNER_DEVICE_PROFILES"); v != "" {
		profiles := []string{}
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(strings.ToLower(p))
			if p != "" {
				profiles = append(profiles, p)
			}
		}
		if len(profiles) > 0 {
			config.Scanner.DeviceProfiles = profiles
		}
	}
	if v := os.Getenv("SCANNER_BROWSER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Browser.TimeoutMs = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// clamp enforces the documented ranges on tunables regardless of where the
// value came from.
func (c *Config) clamp() {
	c.Scheduler.MaxConcurrency = clampInt(c.Scheduler.MaxConcurrency, 1, 50)
	c.Scanner.RequestTimeoutMs = clampInt(c.Scanner.RequestTimeoutMs, 1000, 120000)
	if c.Scanner.MaxPages < 1 {
		c.Scanner.MaxPages = 1
	}
	if c.Scanner.DefaultSiteDepth < 1 {
		c.Scanner.DefaultSiteDepth = 1
	}
	if c.Browser.TimeoutMs < 1000 {
		c.Browser.TimeoutMs = 1000
	}
	if len(c.Scanner.DeviceProfiles) == 0 {
		c.Scanner.DeviceProfiles = []string{"desktop"}
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}
