// Package config handles loading and validation of service configuration.
// Supports both development (env vars / CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"gopkg.in/yaml.v3"

	"storefront-checkout/internal/checkout"
)

// RegionOverridePrefix prefixes per-locale region override env vars,
// e.g. NEXT_PUBLIC_REGION_US=reg_123.
const RegionOverridePrefix = "NEXT_PUBLIC_REGION_"

// Config holds all service configuration.
// Environment determines whether store settings load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	// Store-specific configuration (loaded from secrets in production)
	Store StoreConfig
}

// StoreConfig contains storefront settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type StoreConfig struct {
	BackendURL string `json:"backend_url" yaml:"backend_url"`

	// BackendVersion gates error classification; see medusa.Config.
	BackendVersion string `json:"backend_version,omitempty" yaml:"backend_version"`

	// BackendTransport selects the HTTP transport: "" (standard) or "chrome".
	BackendTransport string `json:"backend_transport,omitempty" yaml:"backend_transport"`

	// PublishableKey is used for backend hosts without an entry in
	// PublishableKeys.
	PublishableKey  string            `json:"publishable_key" yaml:"publishable_key"`
	PublishableKeys map[string]string `json:"publishable_keys,omitempty" yaml:"publishable_keys"`

	DefaultLocale string `json:"default_locale" yaml:"default_locale"`

	// RegionOverrides maps upper-cased locale codes to region IDs.
	RegionOverrides map[string]string `json:"region_overrides,omitempty" yaml:"region_overrides"`

	// PaymentAdapters declares emulated payment methods.
	PaymentAdapters  []checkout.PaymentAdapter `json:"payment_adapters,omitempty" yaml:"payment_adapters"`
	FallbackProvider string                    `json:"fallback_provider,omitempty" yaml:"fallback_provider"`

	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Cookie CookieConfig `json:"cookie" yaml:"cookie"`

	// AdminToken guards operator endpoints. Empty disables them.
	AdminToken string `json:"admin_token,omitempty" yaml:"admin_token"`
}

// CacheConfig bounds the in-process caches. TTLs use time.ParseDuration syntax.
type CacheConfig struct {
	Size       int    `json:"size" yaml:"size"`
	TTL        string `json:"ttl" yaml:"ttl"`
	RegionSize int    `json:"region_size" yaml:"region_size"`
	RegionTTL  string `json:"region_ttl" yaml:"region_ttl"`

	ttl, regionTTL time.Duration
}

// CookieConfig controls session cookies.
type CookieConfig struct {
	Domain string `json:"domain,omitempty" yaml:"domain"`
	Secure bool   `json:"secure" yaml:"secure"`
	MaxAge string `json:"max_age,omitempty" yaml:"max_age"`

	maxAge time.Duration
}

// EntryTTL returns the parsed response cache TTL.
func (c CacheConfig) EntryTTL() time.Duration { return c.ttl }

// RegionEntryTTL returns the parsed region cache TTL.
func (c CacheConfig) RegionEntryTTL() time.Duration { return c.regionTTL }

// MaxAgeDuration returns the parsed cookie lifetime.
func (c CookieConfig) MaxAgeDuration() time.Duration { return c.maxAge }

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Region overrides from NEXT_PUBLIC_REGION_* env vars apply in every mode.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		StoreID:     os.Getenv("STORE_ID"),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreID == "" {
			return nil, fmt.Errorf("STORE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig is the CONFIG_FILE layout.
type fileConfig struct {
	Port        string      `json:"port" yaml:"port"`
	Environment string      `json:"environment" yaml:"environment"`
	LogLevel    string      `json:"log_level" yaml:"log_level"`
	StoreID     string      `json:"store_id" yaml:"store_id"`
	Store       StoreConfig `json:"store" yaml:"store"`
}

// loadFromFile reads all configuration from a JSON or YAML file, chosen by
// extension.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fc.Port, "8080"),
		Environment: withDefault(fc.Environment, "development"),
		LogLevel:    withDefault(fc.LogLevel, "info"),
		StoreID:     fc.StoreID,
		Store:       fc.Store,
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides and defaults, then validates.
func (c *Config) finish() error {
	overrides, err := regionOverridesFromEnv(os.Environ())
	if err != nil {
		return err
	}
	if len(overrides) > 0 && c.Store.RegionOverrides == nil {
		c.Store.RegionOverrides = make(map[string]string, len(overrides))
	}
	for k, v := range overrides {
		c.Store.RegionOverrides[k] = v
	}

	c.Store.DefaultLocale = strings.ToLower(withDefault(c.Store.DefaultLocale, "us"))
	if c.Store.PaymentAdapters == nil {
		c.Store.PaymentAdapters = checkout.DefaultAdapters()
	}
	if c.Store.FallbackProvider == "" {
		c.Store.FallbackProvider = checkout.DefaultTechnicalProvider
	}
	if c.Store.Cache.Size == 0 {
		c.Store.Cache.Size = 1024
	}
	if c.Store.Cache.RegionSize == 0 {
		c.Store.Cache.RegionSize = 256
	}

	if c.Store.Cache.ttl, err = parseDuration("cache.ttl", c.Store.Cache.TTL, 5*time.Minute); err != nil {
		return err
	}
	if c.Store.Cache.regionTTL, err = parseDuration("cache.region_ttl", c.Store.Cache.RegionTTL, time.Hour); err != nil {
		return err
	}
	if c.Store.Cookie.maxAge, err = parseDuration("cookie.max_age", c.Store.Cookie.MaxAge, 7*24*time.Hour); err != nil {
		return err
	}

	return c.validate()
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
func (c *Config) loadFromEnv() error {
	c.Store = StoreConfig{
		BackendURL:       os.Getenv("BACKEND_URL"),
		BackendVersion:   os.Getenv("BACKEND_VERSION"),
		BackendTransport: os.Getenv("BACKEND_TRANSPORT"),
		PublishableKey:   os.Getenv("PUBLISHABLE_KEY"),
		DefaultLocale:    os.Getenv("DEFAULT_LOCALE"),
		FallbackProvider: os.Getenv("PAYMENT_FALLBACK_PROVIDER"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		Cache: CacheConfig{
			TTL:       os.Getenv("CACHE_TTL"),
			RegionTTL: os.Getenv("REGION_CACHE_TTL"),
		},
		Cookie: CookieConfig{
			Domain: os.Getenv("COOKIE_DOMAIN"),
			Secure: os.Getenv("COOKIE_SECURE") == "true",
			MaxAge: os.Getenv("COOKIE_MAX_AGE"),
		},
	}

	var err error
	if c.Store.Cache.Size, err = envInt("CACHE_SIZE"); err != nil {
		return err
	}
	if c.Store.Cache.RegionSize, err = envInt("REGION_CACHE_SIZE"); err != nil {
		return err
	}

	// Parse publishable keys JSON if provided
	if keysJSON := os.Getenv("PUBLISHABLE_KEYS"); keysJSON != "" {
		if err := json.Unmarshal([]byte(keysJSON), &c.Store.PublishableKeys); err != nil {
			return fmt.Errorf("parsing PUBLISHABLE_KEYS JSON: %w", err)
		}
	}

	// Parse payment adapters JSON if provided
	if adaptersJSON := os.Getenv("PAYMENT_ADAPTERS"); adaptersJSON != "" {
		if err := json.Unmarshal([]byte(adaptersJSON), &c.Store.PaymentAdapters); err != nil {
			return fmt.Errorf("parsing PAYMENT_ADAPTERS JSON: %w", err)
		}
	}

	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	u, err := url.Parse(c.Store.BackendURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid backend_url: %q", c.Store.BackendURL)
	}
	if c.PublishableKey() == "" {
		return fmt.Errorf("publishable_key is required for %s", u.Host)
	}
	switch c.Store.BackendTransport {
	case "", "standard", "chrome":
	default:
		return fmt.Errorf("unknown backend_transport %q", c.Store.BackendTransport)
	}
	for i, a := range c.Store.PaymentAdapters {
		if a.Logical == "" || a.Technical == "" {
			return fmt.Errorf("payment_adapters[%d]: logical and technical are required", i)
		}
	}
	return nil
}

// PublishableKey returns the key for the configured backend host, falling
// back to the default key.
func (c *Config) PublishableKey() string {
	if u, err := url.Parse(c.Store.BackendURL); err == nil {
		if key, ok := c.Store.PublishableKeys[u.Host]; ok && key != "" {
			return key
		}
		if key, ok := c.Store.PublishableKeys[u.Hostname()]; ok && key != "" {
			return key
		}
	}
	return c.Store.PublishableKey
}

// regionOverridesFromEnv collects NEXT_PUBLIC_REGION_<CC>=<region_id> pairs.
func regionOverridesFromEnv(environ []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, RegionOverridePrefix) {
			continue
		}
		locale := strings.TrimPrefix(key, RegionOverridePrefix)
		if locale == "" {
			return nil, fmt.Errorf("%s: missing locale", key)
		}
		if value == "" {
			continue
		}
		out[strings.ToUpper(locale)] = value
	}
	return out, nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
