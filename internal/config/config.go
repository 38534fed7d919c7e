// Package config loads and validates the shield.yaml runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the shield subsystem.
type Config struct {
	// Service is the logical service name, used as the default encryption
	// binding context and event source.
	Service string `yaml:"service"`

	// Environment is the deployment environment (e.g., "production").
	Environment string `yaml:"environment"`

	Debug bool `yaml:"debug"`

	SecretStore SecretStoreConfig `yaml:"secretStore"`
	Auth        AuthConfig        `yaml:"auth"`
	Crypto      CryptoConfig      `yaml:"crypto"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Server      ServerConfig      `yaml:"server"`
}

// SecretStoreConfig configures the external secret store client and the
// secret cache in front of it.
type SecretStoreConfig struct {
	// Type selects the backend: "ssm" or "memory".
	Type string `yaml:"type"`

	Region          string `yaml:"region,omitempty"`
	Profile         string `yaml:"profile,omitempty"`
	ParameterPrefix string `yaml:"parameter_prefix,omitempty"`

	// CacheTTL is how long fetched secrets stay live in the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AuthConfig configures token verification against the identity provider.
type AuthConfig struct {
	// Issuer is the expected identity-provider issuer URL.
	Issuer string `yaml:"issuer"`

	// Audience is the expected client identifier.
	Audience string `yaml:"audience"`

	// JWKSURL is the provider's published-keys endpoint.
	JWKSURL string `yaml:"jwks_url"`

	// KeyCacheSize bounds the signing-key cache entry count.
	KeyCacheSize int `yaml:"key_cache_size"`

	// KeyCacheMaxAge bounds how long a cached signing key may be used.
	KeyCacheMaxAge time.Duration `yaml:"key_cache_max_age"`
}

// CryptoConfig configures envelope encryption.
type CryptoConfig struct {
	// KMSKeyID is the key-management provider key used for envelopes.
	KMSKeyID string `yaml:"kms_key_id"`

	Region  string `yaml:"region,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

// RateLimitConfig configures the request-rate counter store.
type RateLimitConfig struct {
	// Backend selects the counter store: "redis" or "memory".
	Backend string `yaml:"backend"`

	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`

	// Limit is the request allowance per identifier per window.
	Limit int `yaml:"limit"`

	// WindowSeconds is the counter window length.
	WindowSeconds int `yaml:"window_seconds"`
}

// MonitorConfig configures security-event emission.
type MonitorConfig struct {
	// MetricNamespace is the namespace for the metrics sink.
	MetricNamespace string `yaml:"metric_namespace"`

	// AlertTopicARN is the notification topic for high/critical events.
	AlertTopicARN string `yaml:"alert_topic_arn"`

	// AuditLogPath is the append-only audit stream destination.
	AuditLogPath string `yaml:"audit_log_path"`

	Region string `yaml:"region,omitempty"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads and validates configuration from path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Service == "" {
		c.Service = "shield"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SecretStore.Type == "" {
		c.SecretStore.Type = "ssm"
	}
	if c.SecretStore.CacheTTL == 0 {
		c.SecretStore.CacheTTL = 5 * time.Minute
	}
	if c.SecretStore.SweepInterval == 0 {
		c.SecretStore.SweepInterval = time.Minute
	}
	if c.Auth.KeyCacheSize == 0 {
		c.Auth.KeyCacheSize = 10
	}
	if c.Auth.KeyCacheMaxAge == 0 {
		c.Auth.KeyCacheMaxAge = time.Hour
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 60
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Monitor.MetricNamespace == "" {
		c.Monitor.MetricNamespace = "Shield/Security"
	}
	if c.Monitor.AuditLogPath == "" {
		c.Monitor.AuditLogPath = "shield-audit.log"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.SecretStore.Type {
	case "ssm", "memory":
	default:
		return fmt.Errorf("unknown secret store type %q (must be ssm or memory)", c.SecretStore.Type)
	}

	switch c.RateLimit.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown rate limit backend %q (must be redis or memory)", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.RedisAddr == "" {
		return fmt.Errorf("rate limit backend redis requires redis_addr")
	}

	if c.Auth.Issuer != "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth.issuer is set")
	}

	return nil
}

// BindingContext returns the default encryption binding context derived
// from the service identity. Ciphertext produced under one context never
// decrypts under another.
func (c *Config) BindingContext() map[string]string {
	return map[string]string{
		"service":     c.Service,
		"environment": c.Environment,
	}
}
