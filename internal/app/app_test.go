package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/frontier/internal/clients/eodhd"
	"github.com/bobmcallan/frontier/internal/clients/yahoo"
	"github.com/bobmcallan/frontier/internal/common"
)

func TestNewPriceClient_DefaultsToYahoo(t *testing.T) {
	cfg := common.NewDefaultConfig()
	client, err := NewPriceClient(cfg, common.NewSilentLogger())
	require.NoError(t, err)

	_, ok := client.(*yahoo.Client)
	assert.True(t, ok, "expected *yahoo.Client, got %T", client)
	assert.Equal(t, "yahoo", client.Name())
}

func TestNewPriceClient_EODHDNeedsKey(t *testing.T) {
	t.Setenv("EODHD_API_KEY", "")
	t.Setenv("FRONTIER_EODHD_API_KEY", "")

	cfg := common.NewDefaultConfig()
	cfg.Clients.Provider = "eodhd"

	_, err := NewPriceClient(cfg, common.NewSilentLogger())
	assert.Error(t, err)

	cfg.Clients.EODHD.APIKey = "from-config"
	client, err := NewPriceClient(cfg, common.NewSilentLogger())
	require.NoError(t, err)
	_, ok := client.(*eodhd.Client)
	assert.True(t, ok, "expected *eodhd.Client, got %T", client)
}

func TestNewPriceClient_UnknownProvider(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Clients.Provider = "bloomberg"
	_, err := NewPriceClient(cfg, common.NewSilentLogger())
	assert.Error(t, err)
}

func TestNewAppWithConfig_WiresServices(t *testing.T) {
	a, err := NewAppWithConfig(common.NewDefaultConfig(), common.NewSilentLogger())
	require.NoError(t, err)

	assert.NotNil(t, a.PriceClient)
	assert.NotNil(t, a.SimulationService)
	assert.False(t, a.StartupTime.IsZero())
}

func TestNewApp_LoadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frontier.toml")
	content := "[server]\nport = 9191\n\n[logging]\nlevel = \"disabled\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a, err := NewApp(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, a.Config.Server.Port)
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.toml", ResolveConfigPath("explicit.toml"))

	t.Setenv("FRONTIER_CONFIG", "/etc/frontier/frontier.toml")
	assert.Equal(t, "/etc/frontier/frontier.toml", ResolveConfigPath(""))
}
