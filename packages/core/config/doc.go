// Package config handles configuration loading and management for hitwire.
//
// It provides functionality for:
//   - Loading configuration from JSON (.hitwire.config.json, .hitwirerc) or
//     YAML (hitwire.yaml, .hitwire.yml) files
//   - Default values for the retry, cache, rate limit and websocket settings
//   - Converting settings into retry policies and session configs
//   - Reloading a file when it changes on disk
package config
