package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitwire/packages/retry"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

// Config represents the hitwire configuration. Durations are milliseconds.
type Config struct {
	Timeout   int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // Default headers for all requests
	Retry     RetryConfig       `json:"retry" yaml:"retry"`
	Cache     CacheConfig       `json:"cache" yaml:"cache"`
	RateLimit RateLimitConfig   `json:"rateLimit" yaml:"rateLimit"`
	WebSocket WebSocketConfig   `json:"websocket" yaml:"websocket"`
	Verbose   *bool             `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor   *bool             `json:"noColor,omitempty" yaml:"noColor,omitempty"`
}

// RetryConfig configures request retries
type RetryConfig struct {
	MaxAttempts          int      `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`
	BaseDelay            int      `json:"baseDelay,omitempty" yaml:"baseDelay,omitempty"`
	BackoffFactor        float64  `json:"backoffFactor,omitempty" yaml:"backoffFactor,omitempty"`
	Jitter               *float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	MaxDelay             int      `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	RetryableStatusCodes []int    `json:"retryableStatusCodes,omitempty" yaml:"retryableStatusCodes,omitempty"`
	RetryableErrors      []string `json:"retryableErrors,omitempty" yaml:"retryableErrors,omitempty"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Enabled  *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Capacity int   `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TTL      int   `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// RateLimitConfig configures client side rate limiting. A zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	Burst int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// WebSocketConfig configures duplex sessions
type WebSocketConfig struct {
	ConnectTimeout       int   `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`
	PingInterval         *int  `json:"pingInterval,omitempty" yaml:"pingInterval,omitempty"` // 0 disables keepalive
	AutoReconnect        *bool `json:"autoReconnect,omitempty" yaml:"autoReconnect,omitempty"`
	MaxReconnectAttempts *int  `json:"maxReconnectAttempts,omitempty" yaml:"maxReconnectAttempts,omitempty"`
	ReconnectInterval    int   `json:"reconnectInterval,omitempty" yaml:"reconnectInterval,omitempty"`
}

// boolPtr returns a pointer to a bool value
func boolPtr(b bool) *bool {
	return &b
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}

// IntPtr returns a pointer to an int value
func IntPtr(i int) *int {
	return &i
}

func floatPtr(f float64) *float64 {
	return &f
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

func getInt(i *int, defaultVal int) int {
	if i == nil {
		return defaultVal
	}
	return *i
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetJitter returns the jitter ratio, defaulting to 0.1
func (r *RetryConfig) GetJitter() float64 {
	if r.Jitter == nil {
		return retry.DefaultJitterRatio
	}
	return *r.Jitter
}

// GetEnabled returns whether the cache is on, defaulting to false
func (c *CacheConfig) GetEnabled() bool {
	return getBool(c.Enabled, false)
}

// GetAutoReconnect returns the auto reconnect setting, defaulting to true
func (w *WebSocketConfig) GetAutoReconnect() bool {
	return getBool(w.AutoReconnect, true)
}

// GetPingInterval returns the keepalive interval in milliseconds
func (w *WebSocketConfig) GetPingInterval() int {
	return getInt(w.PingInterval, int(ws.DefaultPingInterval.Milliseconds()))
}

// GetMaxReconnectAttempts returns the reconnect budget
func (w *WebSocketConfig) GetMaxReconnectAttempts() int {
	return getInt(w.MaxReconnectAttempts, ws.DefaultMaxReconnectAttempts)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitwire.config.json",
	"hitwire.config.json",
	".hitwirerc",
	"hitwire.yaml",
	".hitwire.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	path, err := FindConfigFile(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Return defaults if no config file found
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return loadConfigFromFile(path)
}

// FindConfigFile returns the first config file present in dir
func FindConfigFile(dir string) (string, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}
	return "", fmt.Errorf("no config file in %s: %w", dir, os.ErrNotExist)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result
func Parse(data []byte, asYAML bool) (*Config, error) {
	config := DefaultConfig()
	if asYAML {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks every section and reports the first problem
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", c.Timeout)
	}
	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	if c.Cache.GetEnabled() && c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %d", c.Cache.TTL)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit.RPS)
	}
	return c.SessionConfig("ws://validate").Validate()
}

// RetryPolicy converts the retry section into a policy
func (c *Config) RetryPolicy() (retry.Policy, error) {
	r := c.Retry
	policy := retry.Policy{
		MaxAttempts:          r.MaxAttempts,
		BaseDelay:            ms(r.BaseDelay),
		BackoffFactor:        r.BackoffFactor,
		JitterRatio:          r.GetJitter(),
		MaxDelay:             ms(r.MaxDelay),
		RetryableStatusCodes: append([]int(nil), r.RetryableStatusCodes...),
	}

	for _, name := range r.RetryableErrors {
		kind, err := parseKind(name)
		if err != nil {
			return retry.Policy{}, err
		}
		policy.RetryableKinds = append(policy.RetryableKinds, kind)
	}

	if err := policy.Validate(); err != nil {
		return retry.Policy{}, fmt.Errorf("retry: %w", err)
	}
	return policy, nil
}

func parseKind(name string) (retry.ErrorKind, error) {
	kind := retry.ErrorKind(strings.ToLower(strings.TrimSpace(name)))
	switch kind {
	case retry.KindReset, retry.KindDNS, retry.KindTimeout, retry.KindRefused, retry.KindProtocol:
		return kind, nil
	}
	return "", fmt.Errorf("retry: unknown error kind %q", name)
}

// SessionConfig converts the websocket section into a session config for url
func (c *Config) SessionConfig(url string) ws.Config {
	cfg := ws.DefaultConfig(url)
	w := c.WebSocket

	if w.ConnectTimeout > 0 {
		cfg.ConnectTimeout = ms(w.ConnectTimeout)
	}
	if w.ReconnectInterval > 0 {
		cfg.ReconnectInterval = ms(w.ReconnectInterval)
	}
	cfg.PingInterval = ms(w.GetPingInterval())
	cfg.AutoReconnect = w.GetAutoReconnect()
	cfg.MaxReconnectAttempts = w.GetMaxReconnectAttempts()

	for k, v := range c.Headers {
		cfg.Headers[k] = v
	}
	return cfg
}

// CacheCapacity returns the response cache capacity, or 0 when disabled
func (c *Config) CacheCapacity() int {
	if !c.Cache.GetEnabled() {
		return 0
	}
	return c.Cache.Capacity
}

// CacheTTL returns the response cache TTL
func (c *Config) CacheTTL() time.Duration {
	return ms(c.Cache.TTL)
}

// RequestTimeout returns the per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return ms(c.Timeout)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}

	// Retry
	if other.Retry.MaxAttempts > 0 {
		result.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.BaseDelay > 0 {
		result.Retry.BaseDelay = other.Retry.BaseDelay
	}
	if other.Retry.BackoffFactor > 0 {
		result.Retry.BackoffFactor = other.Retry.BackoffFactor
	}
	if other.Retry.Jitter != nil {
		result.Retry.Jitter = other.Retry.Jitter
	}
	if other.Retry.MaxDelay > 0 {
		result.Retry.MaxDelay = other.Retry.MaxDelay
	}
	if len(other.Retry.RetryableStatusCodes) > 0 {
		result.Retry.RetryableStatusCodes = other.Retry.RetryableStatusCodes
	}
	if len(other.Retry.RetryableErrors) > 0 {
		result.Retry.RetryableErrors = other.Retry.RetryableErrors
	}

	// Cache
	if other.Cache.Enabled != nil {
		result.Cache.Enabled = other.Cache.Enabled
	}
	if other.Cache.Capacity > 0 {
		result.Cache.Capacity = other.Cache.Capacity
	}
	if other.Cache.TTL > 0 {
		result.Cache.TTL = other.Cache.TTL
	}

	// Rate limit
	if other.RateLimit.RPS > 0 {
		result.RateLimit.RPS = other.RateLimit.RPS
	}
	if other.RateLimit.Burst > 0 {
		result.RateLimit.Burst = other.RateLimit.Burst
	}

	// WebSocket
	if other.WebSocket.ConnectTimeout > 0 {
		result.WebSocket.ConnectTimeout = other.WebSocket.ConnectTimeout
	}
	if other.WebSocket.PingInterval != nil {
		result.WebSocket.PingInterval = other.WebSocket.PingInterval
	}
	if other.WebSocket.AutoReconnect != nil {
		result.WebSocket.AutoReconnect = other.WebSocket.AutoReconnect
	}
	if other.WebSocket.MaxReconnectAttempts != nil {
		result.WebSocket.MaxReconnectAttempts = other.WebSocket.MaxReconnectAttempts
	}
	if other.WebSocket.ReconnectInterval > 0 {
		result.WebSocket.ReconnectInterval = other.WebSocket.ReconnectInterval
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

// SaveConfig saves the configuration to a file. YAML is written for .yaml
// and .yml paths, JSON otherwise.
func (c *Config) SaveConfig(path string) error {
	data, err := c.Marshal(isYAML(path))
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Marshal encodes the configuration as JSON or YAML
func (c *Config) Marshal(asYAML bool) ([]byte, error) {
	if asYAML {
		return yaml.Marshal(c)
	}
	return json.MarshalIndent(c, "", "  ")
}
