package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/joeychilson/cacheurl/mediatype"
	urlpkg "github.com/joeychilson/cacheurl/url"
)

const (
	// DefaultCacheName is the name of the cache configured by New.
	DefaultCacheName = "google"
	// DefaultSuffix is the domain suffix of the default cache.
	DefaultSuffix = "cdn.ampproject.org"

	// EnvSuffix overrides the domain suffix of the default cache.
	EnvSuffix = "CACHE_DOMAIN_SUFFIX"
)

// ErrUnknownCache is returned when a cache name is not configured.
var ErrUnknownCache = errors.New("unknown cache")

var cacheNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config represents the top-level configuration structure.
type Config struct {
	DefaultCache string            `yaml:"default_cache,omitempty"`
	Caches       []CacheConfig     `yaml:"caches"`
	Types        map[string]string `yaml:"types,omitempty"`
	DNSLimits    *bool             `yaml:"dns_limits,omitempty"`
	Server       ServerConfig      `yaml:"server,omitempty"`
}

// CacheConfig names a cache deployment and the domain suffix it serves from.
type CacheConfig struct {
	Name   string `yaml:"name" json:"name"`
	Suffix string `yaml:"suffix" json:"suffix"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig defines per-client request limits for the HTTP API.
type RateLimitConfig struct {
	Requests int           `yaml:"requests,omitempty"`
	Window   time.Duration `yaml:"window,omitempty"`
}

// GetRequests returns the request limit with a default of 100
func (r *RateLimitConfig) GetRequests() int {
	if r.Requests > 0 {
		return r.Requests
	}
	return 100
}

// GetWindow returns the limit window with a default of one minute
func (r *RateLimitConfig) GetWindow() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return time.Minute
}

// New returns a new Config with sensible defaults.
func New() *Config {
	return &Config{
		DefaultCache: DefaultCacheName,
		Caches: []CacheConfig{
			{Name: DefaultCacheName, Suffix: DefaultSuffix},
			{Name: "bing", Suffix: "bing-amp.com"},
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DefaultCache == "" && len(cfg.Caches) > 0 {
		cfg.DefaultCache = cfg.Caches[0].Name
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv applies environment overrides. A non-empty CACHE_DOMAIN_SUFFIX
// replaces the suffix of the default cache.
func (c *Config) ApplyEnv() {
	suffix := strings.TrimSpace(os.Getenv(EnvSuffix))
	if suffix == "" {
		return
	}
	for i := range c.Caches {
		if c.Caches[i].Name == c.DefaultCache {
			c.Caches[i].Suffix = suffix
			return
		}
	}
	if c.DefaultCache == "" {
		c.DefaultCache = DefaultCacheName
	}
	c.Caches = append(c.Caches, CacheConfig{Name: c.DefaultCache, Suffix: suffix})
}

// Validate checks the configuration for errors and conflicts
func (c *Config) Validate() error {
	if len(c.Caches) == 0 {
		return fmt.Errorf("caches: at least one cache is required")
	}

	seen := make(map[string]bool, len(c.Caches))
	for i, cache := range c.Caches {
		cacheCtx := fmt.Sprintf("caches[%d]", i)
		if cache.Name == "" {
			return fmt.Errorf("%s: 'name' cannot be empty", cacheCtx)
		}
		if !cacheNameRegex.MatchString(cache.Name) {
			return fmt.Errorf("%s: invalid name %q", cacheCtx, cache.Name)
		}
		if seen[cache.Name] {
			return fmt.Errorf("%s: duplicate name %q", cacheCtx, cache.Name)
		}
		seen[cache.Name] = true

		if err := validateSuffix(cache.Suffix); err != nil {
			return fmt.Errorf("%s(%s).suffix: %w", cacheCtx, cache.Name, err)
		}
	}

	if c.DefaultCache != "" && !seen[c.DefaultCache] {
		return fmt.Errorf("default_cache: unknown cache %q", c.DefaultCache)
	}

	if _, err := mediatype.NewTable(c.Types); err != nil {
		return fmt.Errorf("types: %w", err)
	}

	if c.Server.RateLimit.Requests < 0 {
		return fmt.Errorf("server.rate_limit: 'requests' must be >= 0")
	}
	if c.Server.RateLimit.Window < 0 {
		return fmt.Errorf("server.rate_limit: 'window' must be >= 0")
	}

	return nil
}

// validateSuffix rejects suffixes that cannot be appended to a hostname.
// The transformer itself accepts any string.
func validateSuffix(suffix string) error {
	if suffix == "" {
		return fmt.Errorf("cannot be empty")
	}
	if strings.HasPrefix(suffix, ".") || strings.HasSuffix(suffix, ".") {
		return fmt.Errorf("%q must not start or end with a dot", suffix)
	}
	if strings.ContainsAny(suffix, "/:@?# ") {
		return fmt.Errorf("%q must be a bare domain", suffix)
	}
	return nil
}

// Suffix returns the domain suffix of the named cache. An empty name selects
// the default cache.
func (c *Config) Suffix(name string) (string, error) {
	if name == "" {
		name = c.DefaultCache
	}
	for _, cache := range c.Caches {
		if cache.Name == name {
			return cache.Suffix, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCache, name)
}

// Lookup builds the media type table, applying configured overrides.
func (c *Config) Lookup() (*mediatype.Table, error) {
	if len(c.Types) == 0 {
		return mediatype.Default(), nil
	}
	return mediatype.NewTable(c.Types)
}

// Transformer builds a url.Transformer from the configuration.
func (c *Config) Transformer() (*urlpkg.Transformer, error) {
	table, err := c.Lookup()
	if err != nil {
		return nil, fmt.Errorf("failed to build media types: %w", err)
	}

	dnsLimits := true
	if c.DNSLimits != nil {
		dnsLimits = *c.DNSLimits
	}

	return urlpkg.NewTransformer(
		urlpkg.WithTypes(table),
		urlpkg.WithDNSLimits(dnsLimits),
	), nil
}
