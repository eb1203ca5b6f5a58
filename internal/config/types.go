// Package config provides configuration loading for crusher using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the CRUSHER_ prefix and underscore-separated keys:
//   - CRUSHER_LOGGING_LEVEL -> logging.level
//   - CRUSHER_API_PORT -> api.port
//
// Routes (the set of TCP/UDP proxies to run) are only configurable via the
// YAML file's `routes` list; there is no sane single-value env mapping for
// a list of structured records.
package config

import (
	"os"
	"strings"
)

// Protocol selects whether a route relays TCP or UDP traffic.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// RouteConfig describes one TCP or UDP proxy instance, translated into a
// crusher.TCPOptions or crusher.UDPOptions before being opened.
type RouteConfig struct {
	Name     string   `yaml:"name"      mapstructure:"name"`
	Protocol Protocol `yaml:"protocol"  mapstructure:"protocol"`
	Local    string   `yaml:"local"     mapstructure:"local"`
	Remote   string   `yaml:"remote"    mapstructure:"remote"`

	// TCP-only.
	Backlog             int  `yaml:"backlog"               mapstructure:"backlog"`
	KeepAlive           bool `yaml:"keep_alive"            mapstructure:"keep_alive"`
	TCPNoDelay          bool `yaml:"tcp_no_delay"          mapstructure:"tcp_no_delay"`
	ConnectionTimeoutMs int  `yaml:"connection_timeout_ms" mapstructure:"connection_timeout_ms"`
	BufferCount         int  `yaml:"buffer_count"          mapstructure:"buffer_count"`
	BufferSize          int  `yaml:"buffer_size"           mapstructure:"buffer_size"`

	// UDP-only.
	MaxIdleDurationMs int `yaml:"max_idle_duration_ms" mapstructure:"max_idle_duration_ms"`
	PendingLimit      int `yaml:"pending_limit"        mapstructure:"pending_limit"`

	// Shared.
	RcvBufferSize int `yaml:"rcv_buffer_size" mapstructure:"rcv_buffer_size"`
	SndBufferSize int `yaml:"snd_buffer_size" mapstructure:"snd_buffer_size"`
}

// LoggingConfig contains logging settings, unchanged in shape from the
// reference repo's logging package.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// APIConfig contains admin HTTP API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be
// returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the root configuration structure.
type Config struct {
	Routes  []RouteConfig `yaml:"routes"  mapstructure:"routes"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	API     APIConfig     `yaml:"api"     mapstructure:"api"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("CRUSHER_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (CRUSHER_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
