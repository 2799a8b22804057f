// Package config provides configuration types for AppLock Forge.
//
// Configuration is file-based (YAML) with environment-variable overrides.
// The server binds to localhost by default; API keys gate any non-local
// access to the admin API.
package config

import (
	"github.com/spf13/viper"
)

// Config is the top-level configuration for AppLock Forge.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage configures where rules are persisted.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Journal configures the file-based change journal.
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`

	// Export configures XML policy generation.
	Export ExportConfig `yaml:"export" mapstructure:"export"`

	// Auth configures API keys for non-localhost admin access.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// DevMode enables development features (verbose logging, dev API key).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// Use a reverse proxy for TLS; the server itself only speaks plain HTTP.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// StorageConfig configures rule persistence.
type StorageConfig struct {
	// Backend selects the rule store: "memory" (lost on restart) or
	// "sqlite" (persisted to Path). Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database file. Required when Backend is "sqlite";
	// defaults to "applock-forge.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// JournalConfig configures the file-based change journal.
type JournalConfig struct {
	// Enabled turns change journaling on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Dir is the directory where journal files are stored.
	// Defaults to "journal" under the working directory.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is the number of days to keep journal files.
	// Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB is the maximum size per journal file before rotation.
	// Defaults to 50.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`

	// CacheSize is the number of recent entries kept in memory for the
	// changes endpoint. Defaults to 500.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// ExportConfig configures XML policy generation.
type ExportConfig struct {
	// DefaultEnforcementMode is used for collections without an explicit
	// mode. Valid values: "NotConfigured", "AuditOnly", "Enabled".
	// Defaults to "AuditOnly".
	DefaultEnforcementMode string `yaml:"default_enforcement_mode" mapstructure:"default_enforcement_mode" validate:"omitempty,enforcement_mode"`
}

// AuthConfig configures admin API authentication.
// Requests from loopback addresses are always accepted; anything else must
// present a configured API key.
type AuthConfig struct {
	// APIKeys defines the accepted API keys.
	// Optional: when empty, only localhost access works.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines one accepted API key.
type APIKeyConfig struct {
	// Name identifies the key in logs and journal entries.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// KeyHash is the hash of the API key, either "sha256:<hex>" or a full
	// argon2id encoded hash ("$argon2id$...").
	// Generate sha256 with: echo -n "your-api-key" | sha256sum
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// Provide a default dev API key if none configured.
	// SHA256 of "dev-api-key"
	if len(c.Auth.APIKeys) == 0 {
		c.Auth.APIKeys = []APIKeyConfig{
			{
				Name:    "dev",
				KeyHash: "sha256:6e1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274",
			},
		}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless explicitly configured otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "applock-forge.db"
	}

	// Journaling is on by default. viper.IsSet distinguishes "not set"
	// from an explicit false.
	if !viper.IsSet("journal.enabled") {
		c.Journal.Enabled = true
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "journal"
	}
	if c.Journal.RetentionDays == 0 {
		c.Journal.RetentionDays = 30
	}
	if c.Journal.MaxFileSizeMB == 0 {
		c.Journal.MaxFileSizeMB = 50
	}
	if c.Journal.CacheSize == 0 {
		c.Journal.CacheSize = 500
	}

	if c.Export.DefaultEnforcementMode == "" {
		c.Export.DefaultEnforcementMode = "AuditOnly"
	}
}
