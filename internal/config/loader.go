// Package config provides configuration loading for the conduit gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, conduit.yaml/.yml is searched in the
// standard locations. The search requires an explicit YAML extension so the
// binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError
		// (handled gracefully by callers).
		viper.SetConfigName("conduit")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: CONDUIT_SERVER_PORT etc.
	viper.SetEnvPrefix("CONDUIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a conduit config file with
// an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".conduit"),
		"/etc/conduit",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "conduit"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all nested config keys for environment variable
// support. Example: CONDUIT_SESSION_MAX_SESSIONS overrides
// session.max_sessions.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("server.bind_all")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("security.allowed_origins")
	_ = viper.BindEnv("security.server_token")
	_ = viper.BindEnv("security.authorization_expr")
	_ = viper.BindEnv("rate_limit.requests")
	_ = viper.BindEnv("rate_limit.window")
	_ = viper.BindEnv("rate_limit.backend")
	_ = viper.BindEnv("rate_limit.redis.addr")
	_ = viper.BindEnv("rate_limit.redis.password")
	_ = viper.BindEnv("rate_limit.redis.db")
	_ = viper.BindEnv("session.max_sessions")
	_ = viper.BindEnv("session.idle_timeout")
	_ = viper.BindEnv("session.sweep_interval")
	_ = viper.BindEnv("session.evict_on_full")
	_ = viper.BindEnv("upstream.http")
	_ = viper.BindEnv("upstream.http_timeout")
	_ = viper.BindEnv("dev_mode")
}

// LoadRaw reads the configuration without applying defaults or validation,
// so CLI flags can override values first.
func LoadRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
		// Missing file is fine: env vars and defaults still apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Load reads, defaults, and validates the configuration.
func Load() (*Config, error) {
	cfg, err := LoadRaw()
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFileUsed returns the path of the config file in effect, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
