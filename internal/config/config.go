// Package config provides the configuration schema for mapwarden.
//
// Configuration is file-based (YAML) with environment variable overrides.
// Secrets (the credential signing secret, password hashes) should come from
// the environment rather than the file; everything else is file-friendly.
package config

import (
	"time"
)

// Config is the top-level mapwarden configuration.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Window configures session window evaluation.
	Window WindowConfig `yaml:"window" mapstructure:"window"`

	// Auth configures credential signing, the shared passphrase, and admin
	// accounts.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Database configures scheduled-session and account persistence.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Routes are the map route identifiers embedded in issued credentials.
	Routes []string `yaml:"routes" mapstructure:"routes" validate:"required,min=1,dive,required"`

	// RoutePolicies are optional access rules for protected routes.
	// When empty, the built-in defaults apply: admins see everything,
	// regular users see the routes their credential names.
	RoutePolicies []RuleConfig `yaml:"route_policies" mapstructure:"route_policies" validate:"omitempty,dive"`

	// DevMode enables development conveniences (debug logging, relaxed
	// secret requirements).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// TLS is not configured here; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	// Defaults to "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`
}

// WindowConfig configures how session windows are evaluated.
type WindowConfig struct {
	// BufferMinutes widens each scheduled window on both sides.
	// Defaults to 15.
	BufferMinutes int `yaml:"buffer_minutes" mapstructure:"buffer_minutes" validate:"omitempty,min=0,max=120"`

	// Timezone is the IANA reference zone all calendar timestamps are
	// interpreted in. Defaults to "Europe/London".
	Timezone string `yaml:"timezone" mapstructure:"timezone" validate:"omitempty,timezone"`
}

// AuthConfig configures credentials and accounts.
type AuthConfig struct {
	// Secret signs issued credentials (HMAC-SHA256). Required outside dev
	// mode; set it via MAPWARDEN_AUTH_SECRET rather than the file.
	Secret string `yaml:"secret" mapstructure:"secret"`

	// AdminTokenTTL is the credential lifetime for admin logins (e.g., "24h").
	// Admin credentials are not bound to a session window. Defaults to "24h".
	AdminTokenTTL string `yaml:"admin_token_ttl" mapstructure:"admin_token_ttl" validate:"omitempty,duration"`

	// PassphraseHash is the Argon2id hash of the shared visitor passphrase.
	// Generate with: mapwarden hash-password
	PassphraseHash string `yaml:"passphrase_hash" mapstructure:"passphrase_hash" validate:"required,argon2_hash"`

	// Admins seeds admin accounts at startup. Existing accounts with the
	// same email are left untouched.
	Admins []AdminConfig `yaml:"admins" mapstructure:"admins" validate:"omitempty,dive"`
}

// AdminConfig seeds one admin account.
type AdminConfig struct {
	// Email is the admin login identity.
	Email string `yaml:"email" mapstructure:"email" validate:"required,email"`

	// Name is the display name.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// PasswordHash is the Argon2id hash of the admin password.
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash" validate:"required,argon2_hash"`
}

// DatabaseConfig configures persistence.
type DatabaseConfig struct {
	// Driver selects the store backend: "memory" or "sqlite".
	// Defaults to "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database file path. Required when driver is
	// "sqlite"; ignored otherwise.
	Path string `yaml:"path" mapstructure:"path"`
}

// RuleConfig defines a single route access rule.
type RuleConfig struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over the verified credential:
	// route (string), email (string), is_admin (bool), routes (list).
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Action is what to do when the condition matches: "allow" or "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless explicitly widened.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Window.BufferMinutes == 0 {
		c.Window.BufferMinutes = 15
	}
	if c.Window.Timezone == "" {
		c.Window.Timezone = "Europe/London"
	}

	if c.Auth.AdminTokenTTL == "" {
		c.Auth.AdminTokenTTL = "24h"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied before validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	if c.Auth.Secret == "" {
		c.Auth.Secret = "mapwarden-dev-secret-do-not-use"
	}
}

// Buffer returns the configured window buffer as a duration.
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.Window.BufferMinutes) * time.Minute
}

// AdminTTL returns the parsed admin credential lifetime. SetDefaults and
// Validate guarantee the string parses.
func (c *Config) AdminTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.AdminTokenTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
