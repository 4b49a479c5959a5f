package common

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build metadata, injected via ldflags:
//
//	-X github.com/bobmcallan/frontier/internal/common.Version=...
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the semantic version string
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp
func GetBuild() string {
	return Build
}

// GetGitCommit returns the short git commit hash
func GetGitCommit() string {
	return GitCommit
}

// GetFullVersion returns a one-line version string for CLI output
func GetFullVersion() string {
	return fmt.Sprintf("frontier %s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// VersionInfo returns the build metadata as a JSON-friendly map
func VersionInfo() map[string]string {
	return map[string]string{
		"version": Version,
		"build":   Build,
		"commit":  GitCommit,
	}
}

// LoadVersionFromFile reads "key: value" lines from a .version file next to
// the binary. Values only fill fields still at their defaults, so ldflags win.
func LoadVersionFromFile() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	loadVersionFile(filepath.Join(filepath.Dir(exe), ".version"))
}

func loadVersionFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "version":
			if Version == "dev" {
				Version = val
			}
		case "build":
			if Build == "unknown" {
				Build = val
			}
		case "commit":
			if GitCommit == "unknown" {
				GitCommit = val
			}
		}
	}
}
