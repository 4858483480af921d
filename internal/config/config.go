// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/mod/semver"

	"storefront-cart/internal/model"
	"storefront-cart/internal/transport"
)

// Backend names.
const (
	BackendMemory      = "memory"
	BackendPostgres    = "postgres"
	BackendWooCommerce = "woocommerce"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort            = "8080"
	DefaultMutationTimeout = 10 * time.Second
	DefaultSessionIdleTTL  = 30 * time.Minute
	DefaultMaxSessions     = 10000
)

// Config holds all service configuration.
// Environment determines whether store credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// Authoritative cart store: memory, postgres or woocommerce
	Backend     string
	DatabaseURL string

	// Session behavior
	MutationTimeout      time.Duration
	SessionIdleTTL       time.Duration
	MaxSessions          int
	MinStorefrontVersion string // empty disables the version gate

	// GCP settings (required in production for the woocommerce backend)
	GCPProject string
	StoreID    string

	// Store-specific configuration (loaded from secrets)
	Store StoreConfig

	// Products seeds the memory backend's catalog. File config only.
	Products []model.Product
}

// StoreConfig contains the WooCommerce connection settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type StoreConfig struct {
	StoreURL      string `json:"store_url"`
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	Currency      string `json:"currency,omitempty"`
	BatchStrategy string `json:"batch_strategy,omitempty"` // "multi" or "sequential"
	Fingerprint   string `json:"tls_fingerprint,omitempty"` // chrome (default), firefox, safari, edge
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:                 envOrDefault("PORT", DefaultPort),
		Environment:          envOrDefault("ENVIRONMENT", "development"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		Backend:              envOrDefault("BACKEND", BackendMemory),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MinStorefrontVersion: os.Getenv("MIN_STOREFRONT_VERSION"),
		GCPProject:           os.Getenv("GCP_PROJECT"),
		StoreID:              os.Getenv("STORE_ID"),
	}

	var err error
	if cfg.MutationTimeout, err = envDuration("MUTATION_TIMEOUT", DefaultMutationTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = envDuration("SESSION_IDLE_TTL", DefaultSessionIdleTTL); err != nil {
		return nil, err
	}
	if cfg.MaxSessions, err = envInt("MAX_SESSIONS", DefaultMaxSessions); err != nil {
		return nil, err
	}

	// Store credentials are only needed for the woocommerce backend
	if cfg.Backend == BackendWooCommerce {
		if cfg.Environment == "production" {
			if cfg.GCPProject == "" {
				return nil, fmt.Errorf("GCP_PROJECT required in production environment")
			}
			if cfg.StoreID == "" {
				return nil, fmt.Errorf("STORE_ID required in production environment")
			}
			err = cfg.loadFromSecretManager(ctx)
		} else {
			cfg.loadFromEnv()
		}
		if err != nil {
			return nil, fmt.Errorf("loading store config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port                 string          `json:"port"`
		Environment          string          `json:"environment"`
		LogLevel             string          `json:"log_level"`
		Backend              string          `json:"backend"`
		DatabaseURL          string          `json:"database_url"`
		MutationTimeout      string          `json:"mutation_timeout"`
		SessionIdleTTL       string          `json:"session_idle_ttl"`
		MaxSessions          int             `json:"max_sessions"`
		MinStorefrontVersion string          `json:"min_storefront_version"`
		Store                StoreConfig     `json:"store"`
		Products             []model.Product `json:"products"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:                 withDefault(fileConfig.Port, DefaultPort),
		Environment:          withDefault(fileConfig.Environment, "development"),
		LogLevel:             withDefault(fileConfig.LogLevel, "info"),
		Backend:              fileConfig.Backend,
		DatabaseURL:          fileConfig.DatabaseURL,
		MaxSessions:          fileConfig.MaxSessions,
		MinStorefrontVersion: fileConfig.MinStorefrontVersion,
		Store:                fileConfig.Store,
		Products:             fileConfig.Products,
	}

	if cfg.Backend == "" {
		return nil, fmt.Errorf("backend is required (memory, postgres or woocommerce)")
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MutationTimeout, err = parseDuration("mutation_timeout", fileConfig.MutationTimeout, DefaultMutationTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = parseDuration("session_idle_ttl", fileConfig.SessionIdleTTL, DefaultSessionIdleTTL); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches store config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads store config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() {
	c.Store = StoreConfig{
		StoreURL:      os.Getenv("STORE_URL"),
		APIKey:        os.Getenv("STORE_API_KEY"),
		APISecret:     os.Getenv("STORE_API_SECRET"),
		Currency:      os.Getenv("STORE_CURRENCY"),
		BatchStrategy: os.Getenv("STORE_BATCH_STRATEGY"),
		Fingerprint:   os.Getenv("STORE_TLS_FINGERPRINT"),
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.MutationTimeout <= 0 {
		return fmt.Errorf("mutation timeout must be positive")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("session idle TTL must be positive")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max sessions must be at least 1")
	}
	if v := c.MinStorefrontVersion; v != "" && !semver.IsValid(canonicalVersion(v)) {
		return fmt.Errorf("invalid min storefront version %q", v)
	}

	switch c.Backend {
	case BackendMemory:
		return nil

	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend")
		}
		return nil

	case BackendWooCommerce:
		if c.Store.StoreURL == "" {
			return fmt.Errorf("store_url is required")
		}
		if c.Store.APIKey == "" {
			return fmt.Errorf("api_key is required")
		}
		if c.Store.APISecret == "" {
			return fmt.Errorf("api_secret is required")
		}

		// Validate store URL is well-formed
		u, err := url.Parse(c.Store.StoreURL)
		if err != nil {
			return fmt.Errorf("invalid store_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid store_url: scheme must be http or https")
		}

		switch c.Store.BatchStrategy {
		case "", "multi", "sequential":
		default:
			return fmt.Errorf("invalid batch_strategy %q (multi or sequential)", c.Store.BatchStrategy)
		}
		if _, err := transport.ParseFingerprint(c.Store.Fingerprint); err != nil {
			return fmt.Errorf("invalid tls_fingerprint: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
}

// StoreURL returns the configured store URL without a trailing slash.
func (c *Config) StoreURL() string {
	return strings.TrimSuffix(c.Store.StoreURL, "/")
}

// canonicalVersion adds the "v" prefix semver expects.
func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

// parseDuration accepts Go durations ("15s") and bare seconds ("15").
func parseDuration(name, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	return d, nil
}

func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}
