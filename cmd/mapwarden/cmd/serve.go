package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	httpadapter "github.com/mapwarden/mapwarden/internal/adapter/inbound/http"
	"github.com/mapwarden/mapwarden/internal/adapter/outbound/memory"
	"github.com/mapwarden/mapwarden/internal/adapter/outbound/sqlite"
	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/config"
	"github.com/mapwarden/mapwarden/internal/domain/account"
	"github.com/mapwarden/mapwarden/internal/domain/credential"
	"github.com/mapwarden/mapwarden/internal/domain/policy"
	"github.com/mapwarden/mapwarden/internal/domain/schedule"
	"github.com/mapwarden/mapwarden/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the mapwarden HTTP server.

The server exposes the login API, per-request credential validation, the
protected map routes, and host-local sync/prune endpoints for the calendar
feed.

Examples:
  # Start with config file settings
  mapwarden serve

  # Start with a specific config file
  mapwarden --config /path/to/mapwarden.yaml serve

  # Development mode (debug logging, generated dev secret)
  mapwarden serve --dev`,
	RunE: runServe,
}

var (
	devMode    bool
	traceSpans bool
)

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, relaxed validation)")
	serveCmd.Flags().BoolVar(&traceSpans, "trace", false, "Emit trace spans to stdout")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration without validation so the CLI flag can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}

	// Apply dev defaults (fills the signing secret in dev mode), then validate.
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Priority: DevMode=true -> debug, otherwise use configured log_level.
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("mapwarden stopped")
	return nil
}

// run wires the stores, the gate, and the HTTP transport together and blocks
// until the context is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if traceSpans || cfg.DevMode {
		shutdown, err := setupTracing(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer shutdown()
	}

	ref, err := clock.NewReference(cfg.Window.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load reference timezone: %w", err)
	}

	var (
		scheduleStore schedule.Store
		accounts      account.AccountStore
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db := sqlite.New(cfg.Database.Path)
		if err := db.Connect(ctx); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()
		scheduleStore = sqlite.NewScheduleStore(db, ref)
		accounts = sqlite.NewAccountStore(db, ref)
		logger.Info("database opened", "driver", "sqlite", "path", cfg.Database.Path)
	default:
		scheduleStore = memory.NewScheduleStore()
		accounts = memory.NewAccountStore()
		logger.Info("using in-memory stores; sessions are lost on restart")
	}

	seeded, err := seedAdmins(ctx, cfg, accounts)
	if err != nil {
		return fmt.Errorf("failed to seed admin accounts: %w", err)
	}
	logger.Debug("seeded admin accounts", "configured", len(cfg.Auth.Admins), "created", seeded)

	issuer, err := credential.NewIssuer([]byte(cfg.Auth.Secret), cfg.AdminTTL())
	if err != nil {
		return fmt.Errorf("failed to create credential issuer: %w", err)
	}

	engine, err := policy.NewEngine(routePolicyRules(cfg))
	if err != nil {
		return fmt.Errorf("failed to compile route policies: %w", err)
	}

	reconciler := schedule.NewReconciler(scheduleStore, ref, cfg.Buffer(), logger)

	gate := service.NewGate(accounts, reconciler, issuer, engine, ref, service.GateConfig{
		Routes:         cfg.Routes,
		PassphraseHash: cfg.Auth.PassphraseHash,
	}, logger)

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
		logger.Warn("invalid shutdown_timeout, using default",
			"value", cfg.Server.ShutdownTimeout, "default", "10s")
	}

	transport := httpadapter.NewTransport(gate, reconciler,
		httpadapter.WithAddr(cfg.Server.HTTPAddr),
		httpadapter.WithLogger(logger),
		httpadapter.WithShutdownTimeout(shutdownTimeout),
	)

	logger.Info("mapwarden starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"timezone", cfg.Window.Timezone,
		"buffer", cfg.Buffer().String(),
		"routes", len(cfg.Routes),
		"database", cfg.Database.Driver,
	)

	return transport.Start(ctx)
}

// setupTracing installs a stdout span exporter and returns its shutdown hook.
func setupTracing(ctx context.Context) (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}, nil
}

// seedAdmins creates the configured admin accounts. Accounts that already
// exist are left untouched; the count of newly created accounts is returned.
func seedAdmins(ctx context.Context, cfg *config.Config, accounts account.AccountStore) (int, error) {
	created := 0
	for _, admin := range cfg.Auth.Admins {
		err := accounts.Create(ctx, &account.AdminAccount{
			Email:        admin.Email,
			Name:         admin.Name,
			PasswordHash: admin.PasswordHash,
			IsActive:     true,
		})
		if errors.Is(err, account.ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create admin %s: %w", admin.Email, err)
		}
		created++
	}
	return created, nil
}

// routePolicyRules converts configured route policies into engine rules.
// An empty config selects the engine's built-in defaults.
func routePolicyRules(cfg *config.Config) []policy.Rule {
	rules := make([]policy.Rule, len(cfg.RoutePolicies))
	for i, rc := range cfg.RoutePolicies {
		rules[i] = policy.Rule{
			Name:      rc.Name,
			Condition: rc.Condition,
			Action:    policy.Action(rc.Action),
		}
	}
	return rules
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
