package config

import (
	"github.com/abdul-hamid-achik/hitwire/packages/retry"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	policy := retry.DefaultPolicy()

	kinds := make([]string, len(policy.RetryableKinds))
	for i, k := range policy.RetryableKinds {
		kinds[i] = string(k)
	}

	return &Config{
		Timeout: 30000, // 30 seconds
		Retry: RetryConfig{
			MaxAttempts:          policy.MaxAttempts,
			BaseDelay:            int(policy.BaseDelay.Milliseconds()),
			BackoffFactor:        policy.BackoffFactor,
			Jitter:               floatPtr(policy.JitterRatio),
			MaxDelay:             0,
			RetryableStatusCodes: append([]int(nil), policy.RetryableStatusCodes...),
			RetryableErrors:      kinds,
		},
		Cache: CacheConfig{
			Enabled:  boolPtr(false),
			Capacity: 100,
			TTL:      60000, // 1 minute
		},
		WebSocket: WebSocketConfig{
			ConnectTimeout:       int(ws.DefaultConnectTimeout.Milliseconds()),
			PingInterval:         intPtr(int(ws.DefaultPingInterval.Milliseconds())),
			AutoReconnect:        boolPtr(true),
			MaxReconnectAttempts: intPtr(ws.DefaultMaxReconnectAttempts),
			ReconnectInterval:    int(ws.DefaultReconnectInterval.Milliseconds()),
		},
		Verbose: boolPtr(false),
		NoColor: boolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.Timeout == d.Timeout &&
		len(c.Headers) == 0 &&
		c.Retry.MaxAttempts == d.Retry.MaxAttempts &&
		c.Retry.BaseDelay == d.Retry.BaseDelay &&
		c.Retry.BackoffFactor == d.Retry.BackoffFactor &&
		c.Retry.GetJitter() == d.Retry.GetJitter() &&
		c.Retry.MaxDelay == d.Retry.MaxDelay &&
		c.Cache.GetEnabled() == d.Cache.GetEnabled() &&
		c.Cache.Capacity == d.Cache.Capacity &&
		c.Cache.TTL == d.Cache.TTL &&
		c.RateLimit == d.RateLimit &&
		c.WebSocket.GetAutoReconnect() == d.WebSocket.GetAutoReconnect() &&
		c.WebSocket.GetPingInterval() == d.WebSocket.GetPingInterval() &&
		c.WebSocket.GetMaxReconnectAttempts() == d.WebSocket.GetMaxReconnectAttempts() &&
		c.GetVerbose() == d.GetVerbose() &&
		c.GetNoColor() == d.GetNoColor()
}
