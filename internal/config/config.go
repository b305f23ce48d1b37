// Package config provides configuration types for the conduit gateway.
//
// Configuration is file-based (conduit.yaml) with environment variable
// overrides under the CONDUIT_ prefix. The schema covers the HTTP listener,
// origin/auth security policy, per-identity rate limiting, and the session
// registry bounds.
package config

import (
	"fmt"
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultPort           = 8080
	DefaultLogLevel       = "info"
	DefaultRateLimit      = 100
	DefaultRateWindow     = "1m"
	DefaultMaxSessions    = 100
	DefaultIdleTimeout    = "30m"
	DefaultSweepInterval  = "1m"
	DefaultUpstreamWait   = "30s"
	DefaultLimiterBackend = "memory"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Security configures origin policy, the optional static server
	// token, and the optional authorization expression.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// RateLimit configures per-identity admission control.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Session configures the bounded session registry.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Auth configures API keys mapping credentials to identities.
	// Optional: used by the authorization expression.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Upstream configures the backend MCP server sessions forward to.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// DevMode enables development features (debug logging, permissive
	// origin defaults).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port is the TCP port to listen on.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// BindAll binds to all interfaces instead of loopback only.
	// Default: false (loopback). Exposing the gateway beyond localhost
	// should be a deliberate act.
	BindAll bool `yaml:"bind_all" mapstructure:"bind_all"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// Addr returns the listen address derived from Port and BindAll.
func (s ServerConfig) Addr() string {
	host := "127.0.0.1"
	if s.BindAll {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, s.Port)
}

// SecurityConfig configures the security validator.
type SecurityConfig struct {
	// AllowedOrigins is the origin allow-list. "*" admits any origin.
	// Loopback origins get a same-scheme+host, any-port relaxation.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,origin"`

	// ServerToken is the optional static bearer token. Plaintext or a
	// "sha256:<hex>" hash (see the hash-key command).
	ServerToken string `yaml:"server_token" mapstructure:"server_token"`

	// AuthorizationExpr is an optional CEL expression evaluated per
	// request. Variables: method, path, origin, client_ip, session_id,
	// identity, authenticated.
	AuthorizationExpr string `yaml:"authorization_expr" mapstructure:"authorization_expr"`
}

// RateLimitConfig configures the per-identity sliding window.
type RateLimitConfig struct {
	// Requests is the ceiling per window.
	Requests int `yaml:"requests" mapstructure:"requests" validate:"omitempty,min=1"`

	// Window is the sliding window length (e.g. "1m", "30s").
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	// Backend selects the limiter store: "memory" (per-process) or
	// "redis" (durable, shared across instances).
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory redis"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// WindowDuration returns the parsed window length.
func (r RateLimitConfig) WindowDuration() time.Duration {
	return parseDuration(r.Window, DefaultRateWindow)
}

// RedisConfig configures the Redis connection for the rate limiter.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password is the optional AUTH password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the database index.
	DB int `yaml:"db" mapstructure:"db" validate:"omitempty,min=0"`
}

// SessionConfig configures the bounded session registry.
type SessionConfig struct {
	// MaxSessions is the hard capacity bound.
	MaxSessions int `yaml:"max_sessions" mapstructure:"max_sessions" validate:"omitempty,min=1"`

	// IdleTimeout is how long a session may stay untouched (e.g. "30m").
	IdleTimeout string `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"omitempty,duration"`

	// SweepInterval is the background cleanup period (e.g. "1m").
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty,duration"`

	// EvictOnFull evicts the least-recently-active session when the
	// registry is full instead of rejecting the new caller with 503.
	EvictOnFull bool `yaml:"evict_on_full" mapstructure:"evict_on_full"`
}

// IdleTimeoutDuration returns the parsed idle timeout.
func (s SessionConfig) IdleTimeoutDuration() time.Duration {
	return parseDuration(s.IdleTimeout, DefaultIdleTimeout)
}

// SweepIntervalDuration returns the parsed sweep interval.
func (s SessionConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(s.SweepInterval, DefaultSweepInterval)
}

// AuthConfig configures API keys.
type AuthConfig struct {
	// APIKeys maps credential hashes to identity names.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines one API key.
type APIKeyConfig struct {
	// KeyHash is the stored hash: "sha256:<hex>" or Argon2id PHC format.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,keyhash"`

	// Identity is the name this key authenticates as.
	Identity string `yaml:"identity" mapstructure:"identity" validate:"required"`
}

// UpstreamConfig configures the backend MCP server.
type UpstreamConfig struct {
	// HTTP is the URL of the upstream MCP endpoint
	// (e.g. "http://localhost:3000/mcp").
	HTTP string `yaml:"http" mapstructure:"http" validate:"omitempty,url"`

	// HTTPTimeout is the per-request timeout against upstream.
	HTTPTimeout string `yaml:"http_timeout" mapstructure:"http_timeout" validate:"omitempty,duration"`
}

// TimeoutDuration returns the parsed upstream timeout.
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	return parseDuration(u.HTTPTimeout, DefaultUpstreamWait)
}

// ApplyDefaults fills zero-valued fields with defaults. Called after
// loading, before validation.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = DefaultRateLimit
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = DefaultRateWindow
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = DefaultLimiterBackend
	}
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = DefaultMaxSessions
	}
	if c.Session.IdleTimeout == "" {
		c.Session.IdleTimeout = DefaultIdleTimeout
	}
	if c.Session.SweepInterval == "" {
		c.Session.SweepInterval = DefaultSweepInterval
	}
	if c.Upstream.HTTPTimeout == "" {
		c.Upstream.HTTPTimeout = DefaultUpstreamWait
	}
	if c.DevMode && len(c.Security.AllowedOrigins) == 0 {
		// Dev mode: admit local browser clients out of the box.
		c.Security.AllowedOrigins = []string{"http://localhost:3000"}
	}
}

// parseDuration parses s, falling back to fallback (which must parse).
func parseDuration(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}
