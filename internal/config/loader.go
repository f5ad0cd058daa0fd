// Package config provides configuration loading for mapwarden.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for mapwarden.yaml/.yml in
// standard locations. The search requires an explicit YAML extension so the
// binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("mapwarden")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MAPWARDEN_AUTH_SECRET, etc.
	viper.SetEnvPrefix("MAPWARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a mapwarden config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mapwarden"),
		"/etc/mapwarden",
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for mapwarden.yaml or
// .yml and returns the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mapwarden"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: MAPWARDEN_SERVER_HTTP_ADDR overrides server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")

	_ = viper.BindEnv("window.buffer_minutes")
	_ = viper.BindEnv("window.timezone")

	// The signing secret and passphrase hash are the keys most likely to
	// come from the environment rather than the file.
	_ = viper.BindEnv("auth.secret")
	_ = viper.BindEnv("auth.admin_token_ttl")
	_ = viper.BindEnv("auth.passphrase_hash")
	// Note: auth.admins is an array; use the config file for admin seeds.

	_ = viper.BindEnv("database.driver")
	_ = viper.BindEnv("database.path")

	// Note: routes and route_policies are arrays; use the config file.

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates. Callers that let CLI flags override DevMode
// should use LoadConfigRaw and finish initialization themselves.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded,
// or an empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
