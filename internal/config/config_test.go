package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation; tests mutate it.
func validConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	c := &Config{}
	c.ApplyDefaults()

	if c.Server.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", c.Server.Port, DefaultPort)
	}
	if c.Server.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", c.Server.LogLevel, DefaultLogLevel)
	}
	if c.RateLimit.Requests != DefaultRateLimit {
		t.Errorf("RateLimit.Requests = %d, want %d", c.RateLimit.Requests, DefaultRateLimit)
	}
	if c.RateLimit.Backend != "memory" {
		t.Errorf("RateLimit.Backend = %q, want memory", c.RateLimit.Backend)
	}
	if c.Session.MaxSessions != DefaultMaxSessions {
		t.Errorf("MaxSessions = %d, want %d", c.Session.MaxSessions, DefaultMaxSessions)
	}
	if got := c.Session.IdleTimeoutDuration(); got != 30*time.Minute {
		t.Errorf("IdleTimeoutDuration() = %v, want 30m", got)
	}
	if got := c.Session.SweepIntervalDuration(); got != time.Minute {
		t.Errorf("SweepIntervalDuration() = %v, want 1m", got)
	}
	if got := c.RateLimit.WindowDuration(); got != time.Minute {
		t.Errorf("WindowDuration() = %v, want 1m", got)
	}
	if len(c.Security.AllowedOrigins) != 0 {
		t.Errorf("AllowedOrigins = %v, want empty outside dev mode", c.Security.AllowedOrigins)
	}
}

func TestApplyDefaults_DevModeOrigins(t *testing.T) {
	t.Parallel()

	c := &Config{DevMode: true}
	c.ApplyDefaults()

	if len(c.Security.AllowedOrigins) == 0 {
		t.Error("dev mode left AllowedOrigins empty, want permissive default")
	}
}

func TestServerConfig_Addr(t *testing.T) {
	t.Parallel()

	loopback := ServerConfig{Port: 8080}
	if got := loopback.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want loopback bind", got)
	}

	all := ServerConfig{Port: 9090, BindAll: true}
	if got := all.Addr(); got != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q, want all-interfaces bind", got)
	}
}

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestConfig_ValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad origin",
			mutate:  func(c *Config) { c.Security.AllowedOrigins = []string{"not a url"} },
			wantSub: "origin",
		},
		{
			name:    "origin with path",
			mutate:  func(c *Config) { c.Security.AllowedOrigins = []string{"http://localhost:3000/app"} },
			wantSub: "origin",
		},
		{
			name:    "bad window duration",
			mutate:  func(c *Config) { c.RateLimit.Window = "soon" },
			wantSub: "duration",
		},
		{
			name:    "bad idle timeout",
			mutate:  func(c *Config) { c.Session.IdleTimeout = "never" },
			wantSub: "duration",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantSub: "Port",
		},
		{
			name:    "unknown limiter backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "etcd" },
			wantSub: "Backend",
		},
		{
			name:    "redis backend without addr",
			mutate:  func(c *Config) { c.RateLimit.Backend = "redis" },
			wantSub: "redis",
		},
		{
			name: "raw key in key_hash",
			mutate: func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "my-raw-secret", Identity: "a"}}
			},
			wantSub: "key_hash",
		},
		{
			name: "key without identity",
			mutate: func(c *Config) {
				c.Auth.APIKeys = []APIKeyConfig{{KeyHash: "sha256:" + strings.Repeat("ab", 32)}}
			},
			wantSub: "Identity",
		},
		{
			name: "duplicate key hash",
			mutate: func(c *Config) {
				h := "sha256:" + strings.Repeat("ab", 32)
				c.Auth.APIKeys = []APIKeyConfig{
					{KeyHash: h, Identity: "a"},
					{KeyHash: h, Identity: "b"},
				}
			},
			wantSub: "duplicate",
		},
		{
			name:    "bad upstream url",
			mutate:  func(c *Config) { c.Upstream.HTTP = "not-a-url" },
			wantSub: "HTTP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestConfig_ValidateAcceptsFullConfig(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Security.AllowedOrigins = []string{"http://localhost:3000", "*"}
	c.Security.ServerToken = "sha256:" + strings.Repeat("cd", 32)
	c.RateLimit.Backend = "redis"
	c.RateLimit.Redis.Addr = "localhost:6379"
	c.Auth.APIKeys = []APIKeyConfig{
		{KeyHash: "sha256:" + strings.Repeat("ab", 32), Identity: "alpha"},
		{KeyHash: "$argon2id$v=19$m=47104,t=1,p=1$c2FsdA$aGFzaA", Identity: "beta"},
	}
	c.Upstream.HTTP = "http://localhost:3000/mcp"
	c.Session.EvictOnFull = true

	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
