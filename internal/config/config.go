package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/sells-group/render-cli/internal/browser"
	"github.com/sells-group/render-cli/internal/logging"
	"github.com/sells-group/render-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig    `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Fetch   FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server  ServerConfig   `yaml:"server" mapstructure:"server"`
	Log     logging.Config `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session store backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`                 // sqlite database file
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"` // postgres connection string
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// BrowserConfig configures the Chrome sessions used for rendering.
type BrowserConfig struct {
	DriverPath       string `yaml:"driver_path" mapstructure:"driver_path"`
	Port             int    `yaml:"port" mapstructure:"port"`
	Headless         bool   `yaml:"headless" mapstructure:"headless"`
	ImplicitWaitSecs int    `yaml:"implicit_wait_secs" mapstructure:"implicit_wait_secs"`
	ProfilesPath     string `yaml:"profiles_path" mapstructure:"profiles_path"`
}

// Wrapper converts the raw section into the browser package's config.
func (b BrowserConfig) Wrapper() browser.Config {
	return browser.Config{
		DriverPath:   b.DriverPath,
		Port:         b.Port,
		Headless:     b.Headless,
		ImplicitWait: time.Duration(b.ImplicitWaitSecs) * time.Second,
	}
}

// FetchConfig configures the render engine.
type FetchConfig struct {
	OutputDir       string  `yaml:"output_dir" mapstructure:"output_dir"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	PageTimeoutSecs int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	Screenshot      bool    `yaml:"screenshot" mapstructure:"screenshot"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "render.db")
	v.SetDefault("browser.port", browser.DefaultPort)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.implicit_wait_secs", 10)
	v.SetDefault("fetch.output_dir", "rendered")
	v.SetDefault("fetch.workers", 1)
	v.SetDefault("fetch.rate_per_sec", 1.0)
	v.SetDefault("fetch.page_timeout_secs", 30)
	v.SetDefault("log.dir", logging.DefaultDir)
	v.SetDefault("log.suppress", logging.DefaultSuppressed)
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for a given command mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "fetch", "serve", "sessions":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		if c.Store.Driver == "sqlite" && c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "check":
		// The smoke test needs no store.
	default:
		return eris.Errorf("config: unknown mode %s", mode)
	}

	switch mode {
	case "fetch", "serve":
		if c.Fetch.Workers < 1 || c.Fetch.Workers > 16 {
			problems = append(problems, "fetch.workers must be between 1 and 16")
		}
		if c.Fetch.RatePerSec <= 0 {
			problems = append(problems, "fetch.rate_per_sec must be > 0")
		}
		if c.Fetch.OutputDir == "" {
			problems = append(problems, "fetch.output_dir is required")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if c.Browser.ImplicitWaitSecs < 0 {
		problems = append(problems, "browser.implicit_wait_secs must be >= 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
