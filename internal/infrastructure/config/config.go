package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Provision ProvisionConfig
	Storage   StorageConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// BackendConfig holds the CLI daemon connection settings.
type BackendConfig struct {
	Address          string `envconfig:"CLI_ADDR" default:"localhost:50051"`
	Enabled          bool   `envconfig:"CLI_ENABLED" default:"true"`
	DiscoveryEnabled bool   `envconfig:"DISCOVERY_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ProvisionConfig holds the first-start provisioning settings.
type ProvisionConfig struct {
	Enabled         bool          `envconfig:"PROVISION_ENABLED" default:"true"`
	ManifestURL     string        `envconfig:"PROVISION_MANIFEST_URL" default:"https://raw.githubusercontent.com/PTSolns/PTSolns-IDE-Library-Registry/refs/heads/main/default_included.txt"`
	Pattern         string        `envconfig:"PROVISION_PATTERN" default:"github\\.com/PTSolns/([^/]+)"`
	Platforms       []string      `envconfig:"PROVISION_PLATFORMS" default:"arduino:avr"`
	VendorPlatforms []string      `envconfig:"PROVISION_VENDOR_PLATFORMS" default:"PTSolnsAVR:avr,PTSolnsESP32:esp32"`
	Library         string        `envconfig:"PROVISION_LIBRARY" default:"Arduino_BuiltIn"`
	Attempts        int           `envconfig:"PROVISION_ATTEMPTS" default:"5"`
	Delay           time.Duration `envconfig:"PROVISION_DELAY" default:"5s"`
	IndexURL        string        `envconfig:"PROVISION_INDEX_URL" default:"https://ptsolns.github.io/PTSolnsCore/boards.json"`
	Profile         string        `envconfig:"PROVISION_PROFILE"`
	CuratedTag      string        `envconfig:"CURATED_TAG" default:"PTSolns"`
}

// StorageConfig holds local state settings.
type StorageConfig struct {
	StatePath string `envconfig:"STATE_PATH"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = DefaultStatePath()
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Backend: BackendConfig{
			Address:          "localhost:50051",
			Enabled:          true,
			DiscoveryEnabled: true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Provision: ProvisionConfig{
			Enabled:         true,
			ManifestURL:     "https://raw.githubusercontent.com/PTSolns/PTSolns-IDE-Library-Registry/refs/heads/main/default_included.txt",
			Pattern:         `github\.com/PTSolns/([^/]+)`,
			Platforms:       []string{"arduino:avr"},
			VendorPlatforms: []string{"PTSolnsAVR:avr", "PTSolnsESP32:esp32"},
			Library:         "Arduino_BuiltIn",
			Attempts:        5,
			Delay:           5 * time.Second,
			IndexURL:        "https://ptsolns.github.io/PTSolnsCore/boards.json",
			CuratedTag:      "PTSolns",
		},
		Storage: StorageConfig{
			StatePath: DefaultStatePath(),
		},
	}
}

// DefaultStatePath returns the state file under the user's home directory
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".ptsolns-ide", "state.json")
}
