// Package config provides configuration loading and validation for
// crusher.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/crusher/main.go)
//  2. Environment variables (CRUSHER_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hydracrusher/crusher/internal/helpers"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Uses CRUSHER_ prefix: CRUSHER_LOGGING_LEVEL -> logging.level
	v.SetEnvPrefix("CRUSHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures the global default values. Per-route defaults
// (bufferCount 16, bufferSize 16 KiB, mirroring spec.md §6's builder
// defaults) are applied by normalizeConfig, not here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("routes", []map[string]any{})

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Default to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	if err := v.UnmarshalKey("routes", &cfg.Routes); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

// normalizeConfig validates and applies per-route defaults.
func normalizeConfig(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Routes))
	for i := range cfg.Routes {
		r := &cfg.Routes[i]

		if r.Name == "" {
			return fmt.Errorf("routes[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("routes[%d]: duplicate route name %q", i, r.Name)
		}
		seen[r.Name] = true

		switch r.Protocol {
		case ProtocolTCP, ProtocolUDP:
		default:
			return fmt.Errorf("route %q: protocol must be %q or %q", r.Name, ProtocolTCP, ProtocolUDP)
		}
		if r.Local == "" || r.Remote == "" {
			return fmt.Errorf("route %q: local and remote are required", r.Name)
		}

		if r.Protocol == ProtocolTCP {
			if r.BufferCount <= 0 {
				r.BufferCount = 16
			}
			if r.BufferSize <= 0 {
				r.BufferSize = 16 * 1024
			}
			if r.Backlog <= 0 {
				r.Backlog = 128
			}
			r.BufferCount = helpers.ClampInt(r.BufferCount, 1, 4096)
			r.BufferSize = helpers.ClampInt(r.BufferSize, 1, 4*1024*1024)
			r.Backlog = helpers.ClampInt(r.Backlog, 1, 65535)
			r.ConnectionTimeoutMs = helpers.ClampInt(r.ConnectionTimeoutMs, 0, 10*60*1000)
		}
		if r.Protocol == ProtocolUDP {
			if r.PendingLimit <= 0 {
				r.PendingLimit = 256
			}
			r.PendingLimit = helpers.ClampInt(r.PendingLimit, 1, 1<<20)
			r.MaxIdleDurationMs = helpers.ClampInt(r.MaxIdleDurationMs, 0, 24*60*60*1000)
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}
