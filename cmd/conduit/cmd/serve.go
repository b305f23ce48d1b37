package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/conduit-mcp/conduit/internal/adapter/inbound/http"
	"github.com/conduit-mcp/conduit/internal/adapter/outbound/cel"
	"github.com/conduit-mcp/conduit/internal/adapter/outbound/memory"
	"github.com/conduit-mcp/conduit/internal/adapter/outbound/redisstore"
	"github.com/conduit-mcp/conduit/internal/adapter/outbound/upstream"
	"github.com/conduit-mcp/conduit/internal/config"
	"github.com/conduit-mcp/conduit/internal/domain/apikey"
	"github.com/conduit-mcp/conduit/internal/domain/ratelimit"
	"github.com/conduit-mcp/conduit/internal/domain/security"
	"github.com/conduit-mcp/conduit/internal/domain/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the conduit gateway.

The gateway listens on loopback by default (set server.bind_all to expose
it) and forwards each session to the MCP server configured in upstream.http.

Examples:
  # Start with config file settings
  conduit serve

  # Start with a specific config file
  conduit --config /path/to/config.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, permissive origin defaults)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load without validation first so the --dev flag can take effect
	// before defaults are derived from it.
	cfg, err := config.LoadRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("conduit stopped")
	return nil
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Upstream.HTTP == "" {
		return errors.New("upstream.http must be configured")
	}

	keyring := buildKeyring(cfg)

	var authorizer security.Authorizer
	if cfg.Security.AuthorizationExpr != "" {
		a, err := cel.NewAuthorizer(cfg.Security.AuthorizationExpr, keyring)
		if err != nil {
			return fmt.Errorf("invalid authorization expression: %w", err)
		}
		authorizer = a
		logger.Info("authorization expression enabled")
	}

	validator := security.NewValidator(security.Policy{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		ServerToken:    cfg.Security.ServerToken,
		Authorizer:     authorizer,
	}, logger)

	var limiter ratelimit.Limiter
	var keyCount func() int
	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis unreachable at %s: %w", cfg.RateLimit.Redis.Addr, err)
		}
		defer func() { _ = client.Close() }()
		limiter = redisstore.New(client)
		logger.Info("rate limiter backend: redis", "addr", cfg.RateLimit.Redis.Addr)
	default:
		mem := memory.NewRateLimiter()
		mem.StartCleanup(ctx)
		defer mem.Stop()
		limiter = mem
		keyCount = mem.Size
		logger.Info("rate limiter backend: memory")
	}

	sessions := session.NewManager(session.Config{
		MaxSessions:   cfg.Session.MaxSessions,
		IdleTimeout:   cfg.Session.IdleTimeoutDuration(),
		SweepInterval: cfg.Session.SweepIntervalDuration(),
	}, logger)
	defer sessions.Dispose()

	binder := upstream.NewBinder(cfg.Upstream.HTTP,
		upstream.WithTimeout(cfg.Upstream.TimeoutDuration()))

	opts := []http.Option{
		http.WithAddr(cfg.Server.Addr()),
		http.WithLogger(logger),
		http.WithRateLimit(cfg.RateLimit.Requests, cfg.RateLimit.WindowDuration()),
		http.WithEvictOnFull(cfg.Session.EvictOnFull),
	}
	if keyCount != nil {
		opts = append(opts, http.WithLimiterKeyCount(keyCount))
	}

	transport := http.NewHTTPTransport(validator, limiter, sessions, binder, opts...)

	logger.Info("conduit starting",
		"addr", cfg.Server.Addr(),
		"upstream", cfg.Upstream.HTTP,
		"max_sessions", cfg.Session.MaxSessions,
		"rate_limit", cfg.RateLimit.Requests,
		"rate_window", cfg.RateLimit.Window,
	)

	return transport.Start(ctx)
}

// buildKeyring assembles the API keyring from config, or nil when no keys
// are configured.
func buildKeyring(cfg *config.Config) *apikey.Keyring {
	if len(cfg.Auth.APIKeys) == 0 {
		return nil
	}
	entries := make([]apikey.Entry, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		entries = append(entries, apikey.Entry{
			Hash:     k.KeyHash,
			Identity: k.Identity,
		})
	}
	return apikey.NewKeyring(entries)
}

// parseLogLevel maps a config log level string to a slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
