// Package common provides shared utilities for frontier
package common

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for frontier
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Simulation  SimulationConfig `toml:"simulation"`
	Clients     ClientsConfig    `toml:"clients"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"` // "0" disables the per-request deadline
}

// GetRequestTimeout parses the per-request deadline. An unparsable value
// falls back to two minutes.
func (c *ServerConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// SimulationConfig holds defaults and limits for Monte Carlo runs
type SimulationConfig struct {
	DefaultPortfolios int    `toml:"default_portfolios"` // used when a request omits num_portfolios
	MaxPortfolios     int    `toml:"max_portfolios"`     // upper bound accepted from a request
	MaxChartPoints    int    `toml:"max_chart_points"`   // trial cloud is downsampled to this many points
	MaxTickers        int    `toml:"max_tickers"`
	Workers           int    `toml:"workers"`     // 0 = runtime.NumCPU()
	MaxWorkers        int    `toml:"max_workers"` // ceiling for a request's workers; 0 = runtime.NumCPU()
	Scheme            string `toml:"scheme"`  // "uniform" or "dirichlet"
	DefaultPeriod     string `toml:"default_period"`
}

// GetWorkers returns the configured worker count, resolving 0 to the CPU count.
func (c *SimulationConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// GetMaxWorkers returns the largest worker count a request may ask for,
// resolving 0 to the CPU count. It is never below GetWorkers.
func (c *SimulationConfig) GetMaxWorkers() int {
	limit := c.MaxWorkers
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return max(limit, c.GetWorkers())
}

// ClientsConfig holds price provider configuration
type ClientsConfig struct {
	Provider       string      `toml:"provider"` // "yahoo" or "eodhd"
	MaxConcurrency int         `toml:"max_concurrency"`
	CacheTTL       string      `toml:"cache_ttl"`
	Yahoo          YahooConfig `toml:"yahoo"`
	EODHD          EODHDConfig `toml:"eodhd"`
}

// GetCacheTTL parses and returns the price history cache TTL
func (c *ClientsConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return FreshnessPriceHistory
	}
	return d
}

// YahooConfig holds Yahoo Finance chart API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"` // "console" or "json"
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: "2m",
		},
		Simulation: SimulationConfig{
			DefaultPortfolios: 50000,
			MaxPortfolios:     500000,
			MaxChartPoints:    5000,
			MaxTickers:        50,
			Workers:           0,
			MaxWorkers:        0,
			Scheme:            "uniform",
			DefaultPeriod:     "1y",
		},
		Clients: ClientsConfig{
			Provider:       "yahoo",
			MaxConcurrency: 4,
			CacheTTL:       "1h",
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 5,
				Timeout:   "30s",
			},
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Outputs:    []string{"console"},
			FilePath:   "./logs/frontier.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
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
	if env := os.Getenv("FRONTIER_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FRONTIER_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FRONTIER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FRONTIER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if provider := os.Getenv("FRONTIER_PROVIDER"); provider != "" {
		config.Clients.Provider = strings.ToLower(provider)
	}

	if w := os.Getenv("FRONTIER_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			config.Simulation.Workers = n
		}
	}

	if n := os.Getenv("FRONTIER_DEFAULT_PORTFOLIOS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			config.Simulation.DefaultPortfolios = v
		}
	}
}

// Validate checks values that cannot be defaulted silently
func (c *Config) Validate() error {
	switch c.Clients.Provider {
	case "yahoo", "eodhd":
	default:
		return fmt.Errorf("unknown price provider %q (want yahoo or eodhd)", c.Clients.Provider)
	}
	if c.Simulation.DefaultPortfolios <= 0 {
		return fmt.Errorf("simulation.default_portfolios must be positive, got %d", c.Simulation.DefaultPortfolios)
	}
	if c.Simulation.MaxPortfolios < c.Simulation.DefaultPortfolios {
		return fmt.Errorf("simulation.max_portfolios (%d) is below default_portfolios (%d)",
			c.Simulation.MaxPortfolios, c.Simulation.DefaultPortfolios)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves an API key from environment or fallback
func ResolveAPIKey(name string, fallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"eodhd_api_key": {"EODHD_API_KEY", "FRONTIER_EODHD_API_KEY"},
	}

	// Environment variables take priority
	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}
