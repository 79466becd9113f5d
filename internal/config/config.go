package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string   `json:"serverAddress"`
	DatabasePath  string   `json:"databasePath"`
	DatabaseURL   string   `json:"databaseUrl"`
	Security      Security `json:"security"`
	Sync          Sync     `json:"sync"`
}

// Security configuration
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// Sync configuration for the reconciliation engine and replica links
type Sync struct {
	// QuietWindowMS is the debounce quiet period in milliseconds.
	QuietWindowMS int `json:"quietWindowMs"`
	// CompanionPayloadLimitKB caps outgoing companion messages.
	CompanionPayloadLimitKB int `json:"companionPayloadLimitKb"`
	// CloudRelayURL is the optional cloud relay websocket URL. Empty
	// disables the cloud link (offline-first).
	CloudRelayURL string `json:"cloudRelayUrl"`
	// SeedStarterContent controls first-run placeholder lists.
	SeedStarterContent bool `json:"seedStarterContent"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// QuietWindow returns the debounce window as a duration
func (c *Config) QuietWindow() time.Duration {
	return time.Duration(c.Sync.QuietWindowMS) * time.Millisecond
}

// CompanionPayloadLimit returns the companion payload ceiling in bytes
func (c *Config) CompanionPayloadLimit() int {
	return c.Sync.CompanionPayloadLimitKB * 1024
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		DatabasePath:  "listsync.db",
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
		Sync: Sync{
			QuietWindowMS:           500,
			CompanionPayloadLimitKB: 256,
			SeedStarterContent:      true,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if relay := os.Getenv("CLOUD_RELAY_URL"); relay != "" {
		cfg.Sync.CloudRelayURL = relay
	}
	if window := os.Getenv("SYNC_QUIET_WINDOW_MS"); window != "" {
		if ms, err := strconv.Atoi(window); err == nil && ms > 0 {
			cfg.Sync.QuietWindowMS = ms
		}
	}
	if seed := os.Getenv("SYNC_SEED_STARTER_CONTENT"); seed != "" {
		cfg.Sync.SeedStarterContent = seed == "true" || seed == "1"
	}

	return cfg, nil
}
