package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "render.db", cfg.Store.Path)
	assert.Equal(t, 4444, cfg.Browser.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10, cfg.Browser.ImplicitWaitSecs)
	assert.Equal(t, "rendered", cfg.Fetch.OutputDir)
	assert.Equal(t, 1, cfg.Fetch.Workers)
	assert.InDelta(t, 1.0, cfg.Fetch.RatePerSec, 0.001)
	assert.Equal(t, 30, cfg.Fetch.PageTimeoutSecs)
	assert.False(t, cfg.Fetch.Screenshot)
	assert.Equal(t, "logs", cfg.Log.Dir)
	assert.Equal(t, "chromedriver", cfg.Log.Suppress)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/render
browser:
  headless: false
  driver_path: /opt/chromedriver
fetch:
  workers: 4
  screenshot: true
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/render", cfg.Store.DatabaseURL)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/opt/chromedriver", cfg.Browser.DriverPath)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.True(t, cfg.Fetch.Screenshot)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Browser.ImplicitWaitSecs)
	assert.Equal(t, "rendered", cfg.Fetch.OutputDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
browser:
  port: 4444
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RENDER_STORE_DRIVER", "postgres")
	t.Setenv("RENDER_BROWSER_PORT", "9515")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9515, cfg.Browser.Port)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("RENDER_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestBrowserConfigWrapper(t *testing.T) {
	b := BrowserConfig{
		DriverPath:       "/usr/bin/chromedriver",
		Port:             9515,
		Headless:         true,
		ImplicitWaitSecs: 7,
	}

	w := b.Wrapper()

	assert.Equal(t, "/usr/bin/chromedriver", w.DriverPath)
	assert.Equal(t, 9515, w.Port)
	assert.True(t, w.Headless)
	assert.Equal(t, 7*time.Second, w.ImplicitWait)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "render.db"
	cfg.Fetch.OutputDir = "rendered"
	cfg.Fetch.Workers = 1
	cfg.Fetch.RatePerSec = 1.0
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateFetch_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("fetch"))
}

func TestValidateFetch_WorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Fetch.Workers = 0
	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.workers must be between 1 and 16")

	cfg.Fetch.Workers = 17
	err = cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.workers must be between 1 and 16")

	cfg.Fetch.Workers = 16
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidatePostgres_RequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/render"
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("sessions")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateCheck_SkipsStore(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate("check"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRate(t *testing.T) {
	cfg := validDefaults()
	cfg.Fetch.RatePerSec = 0

	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.rate_per_sec must be > 0")
}
