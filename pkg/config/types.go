// Package config loads and validates gateway configuration: server
// settings plus the route rule collection, from a single JSON/YAML file or
// a directory of them.
package config

import (
	"github.com/mockgate/mockgate/pkg/rule"
)

// Collection is the on-disk rule document.
type Collection struct {
	Version string            `json:"version,omitempty" yaml:"version,omitempty"`
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Routes  []*rule.RouteRule `json:"routes" yaml:"routes"`
}

// ServerConfig holds the gateway's runtime settings.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// UploadDir is the directory file-kind responses resolve against.
	UploadDir string `json:"uploadDir,omitempty" yaml:"uploadDir,omitempty"`

	// DefaultProxyTimeoutMs bounds upstream exchanges for proxy routes
	// without their own timeout.
	DefaultProxyTimeoutMs int `json:"defaultProxyTimeoutMs,omitempty" yaml:"defaultProxyTimeoutMs,omitempty"`

	// MaxLogEntries caps the request diagnostics ring.
	MaxLogEntries int `json:"maxLogEntries,omitempty" yaml:"maxLogEntries,omitempty"`

	LogLevel  string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`
}

// Config is the full gateway configuration document.
type Config struct {
	Server ServerConfig      `json:"server,omitempty" yaml:"server,omitempty"`
	Routes []*rule.RouteRule `json:"routes" yaml:"routes"`
}

// DefaultServerConfig returns the settings used when nothing is configured.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr: ":4280",
	}
}
