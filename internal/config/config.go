// Package config loads netscope settings from a JSON file, the environment
// and a .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"netscope/internal/logger"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvDatabase    = "NETSCOPE_DB"
	EnvLogLevel    = "NETSCOPE_LOG_LEVEL"
	EnvOllamaURL   = "NETSCOPE_OLLAMA_URL"
	EnvOllamaModel = "NETSCOPE_OLLAMA_MODEL"
)

// SearchPaths are tried in order by Find.
var SearchPaths = []string{
	"/etc/netscope/config.json",
	"config.json",
}

// Config represents the application configuration
type Config struct {
	Logging struct {
		// Level is the minimum log level to output (debug, info, warn, error)
		Level string `json:"level"`
		// File is the path to the log file. If empty, logs go to stderr only
		File string `json:"file"`
		// MaxSizeMB is the size at which the log file is rotated
		MaxSizeMB int `json:"max_size_mb"`
		// MaxBackups is how many rotated files are kept
		MaxBackups int `json:"max_backups"`
		// RetentionDays is how long rotated files are kept
		RetentionDays int `json:"retention_days"`
	} `json:"logging"`

	Store struct {
		// Path is the SQLite database file holding all session tables
		Path string `json:"path"`
		// BusyTimeoutMS is how long a statement waits on a locked database
		BusyTimeoutMS int `json:"busy_timeout_ms"`
	} `json:"store"`

	Capture struct {
		// SnapLen is the maximum number of bytes read per frame
		SnapLen int `json:"snap_len"`
		// Promiscuous opens the interface in promiscuous mode
		Promiscuous *bool `json:"promiscuous"`
		// PollIntervalMS bounds how long a read blocks before the loop re-polls
		PollIntervalMS int `json:"poll_interval_ms"`
	} `json:"capture"`

	Insight struct {
		// URL is the base URL of the Ollama server
		URL string `json:"url"`
		// Model is the model name sent with each request
		Model string `json:"model"`
		// TimeoutSeconds bounds one generate request
		TimeoutSeconds int `json:"timeout_seconds"`
		// RecordLimit is how many records are included in the prompt
		RecordLimit int `json:"record_limit"`
		// CacheMinutes is how long a summary is reused for the same session
		CacheMinutes int `json:"cache_minutes"`
	} `json:"insight"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Find loads the given path, or the first of SearchPaths that exists. When
// no file exists the defaults are returned. The .env file in the working
// directory and the NETSCOPE_* variables are applied last.
func Find(path string) (*Config, string, error) {
	_ = godotenv.Load()

	var (
		cfg    *Config
		source string
		err    error
	)
	if path != "" {
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		source = path
	} else {
		for _, candidate := range SearchPaths {
			cfg, err = LoadConfig(candidate)
			if err == nil {
				source = candidate
				break
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, "", err
			}
		}
		if cfg == nil {
			cfg = Default()
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, source, nil
}

// ApplyEnv overrides settings from NETSCOPE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		if _, err := logger.ParseLogLevel(v); err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvOllamaURL); v != "" {
		c.Insight.URL = v
	}
	if v := os.Getenv(EnvOllamaModel); v != "" {
		c.Insight.Model = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Store.Path == "" {
		c.Store.Path = "packet_data.db"
	}
	if c.Store.BusyTimeoutMS == 0 {
		c.Store.BusyTimeoutMS = 5000
	}
	if c.Capture.SnapLen == 0 {
		c.Capture.SnapLen = 65536
	}
	if c.Capture.Promiscuous == nil {
		promisc := true
		c.Capture.Promiscuous = &promisc
	}
	if c.Capture.PollIntervalMS == 0 {
		c.Capture.PollIntervalMS = 100
	}
	if c.Insight.URL == "" {
		c.Insight.URL = "http://localhost:11434"
	}
	if c.Insight.Model == "" {
		c.Insight.Model = "llama3.1"
	}
	if c.Insight.TimeoutSeconds == 0 {
		c.Insight.TimeoutSeconds = 120
	}
	if c.Insight.RecordLimit == 0 {
		c.Insight.RecordLimit = 50
	}
	if c.Insight.CacheMinutes == 0 {
		c.Insight.CacheMinutes = 5
	}
}

// PollInterval is the capture read timeout as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Capture.PollIntervalMS) * time.Millisecond
}

// LoggerConfig converts the logging section for logger.Initialize.
func (c *Config) LoggerConfig() (logger.Config, error) {
	level, err := logger.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return logger.Config{}, fmt.Errorf("invalid log level: %w", err)
	}
	return logger.Config{
		Level:      level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.RetentionDays,
	}, nil
}

// InitializeLogging sets up the default logger from the logging section.
func (c *Config) InitializeLogging() error {
	lc, err := c.LoggerConfig()
	if err != nil {
		return err
	}
	if err := logger.Initialize(lc); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// String renders the configuration for a startup log line.
func (c *Config) String() string {
	return fmt.Sprintf("store=%s log_level=%s poll=%s snaplen=%d insight=%s/%s",
		c.Store.Path, c.Logging.Level, c.PollInterval(), c.Capture.SnapLen,
		c.Insight.URL, c.Insight.Model)
}
