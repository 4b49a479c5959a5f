package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/frontier/internal/clients/eodhd"
	"github.com/bobmcallan/frontier/internal/clients/yahoo"
	"github.com/bobmcallan/frontier/internal/common"
	"github.com/bobmcallan/frontier/internal/interfaces"
	"github.com/bobmcallan/frontier/internal/services/simulation"
)

// App holds the initialized clients and services.
// It is the shared core used by both cmd/frontier-server and cmd/frontier.
type App struct {
	Config            *common.Config
	Logger            *common.Logger
	PriceClient       interfaces.PriceClient
	SimulationService interfaces.SimulationService
	StartupTime       time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: explicit path, FRONTIER_CONFIG,
// frontier.toml next to the binary, then config/frontier.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FRONTIER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "frontier.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/frontier.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and initializes all clients and services.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative log file path to binary directory
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(getBinaryDir(), config.Logging.FilePath)
	}

	return NewAppWithConfig(config, common.NewLoggerFromConfig(config.Logging))
}

// NewAppWithConfig wires clients and services from an already-loaded config
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	client, err := NewPriceClient(config, logger)
	if err != nil {
		return nil, err
	}

	simService := simulation.NewService(client, config.Simulation, config.Clients, logger)

	logger.Info().
		Str("provider", client.Name()).
		Int("workers", config.Simulation.GetWorkers()).
		Int("default_portfolios", config.Simulation.DefaultPortfolios).
		Dur("startup", time.Since(startupStart)).
		Msg("Application initialized")

	return &App{
		Config:            config,
		Logger:            logger,
		PriceClient:       client,
		SimulationService: simService,
		StartupTime:       time.Now(),
	}, nil
}

// NewPriceClient builds the configured price provider
func NewPriceClient(config *common.Config, logger *common.Logger) (interfaces.PriceClient, error) {
	switch config.Clients.Provider {
	case "", "yahoo":
		yc := config.Clients.Yahoo
		return yahoo.NewClient(
			yahoo.WithBaseURL(yc.BaseURL),
			yahoo.WithRateLimit(yc.RateLimit),
			yahoo.WithTimeout(yc.GetTimeout()),
			yahoo.WithLogger(logger),
		), nil
	case "eodhd":
		ec := config.Clients.EODHD
		key, err := common.ResolveAPIKey("eodhd_api_key", ec.APIKey)
		if err != nil {
			return nil, fmt.Errorf("eodhd provider selected: %w", err)
		}
		return eodhd.NewClient(key,
			eodhd.WithBaseURL(ec.BaseURL),
			eodhd.WithRateLimit(ec.RateLimit),
			eodhd.WithTimeout(ec.GetTimeout()),
			eodhd.WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown price provider %q", config.Clients.Provider)
	}
}
