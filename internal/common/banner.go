package common

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ternarybob/banner"
)

var bannerArt = []string{
	` 8888888888 8888888b.   .d88888b.  888b    888 88888888888 8888888 8888888888 8888888b.`,
	` 888        888   Y88b d88P" "Y88b 8888b   888     888       888   888        888   Y88b`,
	` 888        888    888 888     888 88888b  888     888       888   888        888    888`,
	` 8888888    888   d88P 888     888 888Y88b 888     888       888   8888888    888   d88P`,
	` 888        8888888P"  888     888 888 Y88b888     888       888   888        8888888P"`,
	` 888        888 T88b   888     888 888  Y88888     888       888   888        888 T88b`,
	` 888        888  T88b  Y88b. .d88P 888   Y8888     888       888   888        888  T88b`,
	` 888        888   T88b  "Y88888P"  888    Y888     888     8888888 8888888888 888   T88b`,
}

const bannerText = banner.ColorBold + banner.ColorWhite

func bannerRule(width int) string {
	return banner.ColorCyan + strings.Repeat("═", width) + banner.ColorReset
}

// bannerFields lists the settings that shape a simulation run.
func bannerFields(config *Config) [][2]string {
	sim := config.Simulation
	return [][2]string{
		{"Version", GetVersion()},
		{"Build", GetBuild()},
		{"Commit", GetGitCommit()},
		{"Environment", config.Environment},
		{"Service URL", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)},
		{"Provider", config.Clients.Provider},
		{"Workers", strconv.Itoa(sim.GetWorkers())},
		{"Scheme", sim.Scheme},
		{"Portfolios", fmt.Sprintf("%d (max %d)", sim.DefaultPortfolios, sim.MaxPortfolios)},
		{"Period", sim.DefaultPeriod},
	}
}

func writeBanner(w io.Writer, config *Config) {
	rule := bannerRule(70)
	fmt.Fprintf(w, "\n%s\n\n", rule)
	for _, line := range bannerArt {
		fmt.Fprintln(w, bannerText+line+banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s  Monte Carlo Efficient Portfolio Search%s\n\n%s\n\n", bannerText, banner.ColorReset, rule)
	for _, kv := range bannerFields(config) {
		fmt.Fprintf(w, "%s  %-16s %s%s\n", bannerText, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s\n\n", rule)
}

// PrintBanner writes the startup banner to stderr and logs the same facts.
func PrintBanner(config *Config, logger *Logger) {
	writeBanner(os.Stderr, config)

	logger.Info().
		Str("version", GetVersion()).
		Str("environment", config.Environment).
		Str("provider", config.Clients.Provider).
		Int("workers", config.Simulation.GetWorkers()).
		Str("scheme", config.Simulation.Scheme).
		Int("default_portfolios", config.Simulation.DefaultPortfolios).
		Msg("Application started")
}

// PrintShutdownBanner writes the shutdown notice to stderr.
func PrintShutdownBanner(logger *Logger) {
	rule := bannerRule(42)
	fmt.Fprintf(os.Stderr, "\n%s\n%s  FRONTIER: SHUTTING DOWN%s\n%s\n\n", rule, bannerText, banner.ColorReset, rule)
	logger.Info().Msg("Application shutting down")
}
