package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AppLock-Forge/applockforge/internal/adapter/inbound/admin"
	auditstore "github.com/AppLock-Forge/applockforge/internal/adapter/outbound/audit"
	"github.com/AppLock-Forge/applockforge/internal/adapter/outbound/memory"
	"github.com/AppLock-Forge/applockforge/internal/adapter/outbound/sqlite"
	"github.com/AppLock-Forge/applockforge/internal/config"
	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the policy server",
	Long: `Start the AppLock Forge policy server.

The server exposes a JSON API on server.http_addr (default 127.0.0.1:8080)
for rule management, policy XML import/export, validation, and simulation.
Loopback requests need no credentials; remote requests must present a
configured API key in the X-API-Key header.

Examples:
  # Start with config file settings
  applock-forge start

  # Start in development mode with a persistent rule store
  APPLOCK_FORGE_STORAGE_BACKEND=sqlite applock-forge start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, dev API key)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration without validation so the CLI flag can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown. stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

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
	if cfg.DevMode {
		logger.Warn("development mode enabled, do not use in production")
	}

	return run(ctx, cfg, logger)
}

// run wires all components together and serves until the context is canceled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, settings, closeStores, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	journal, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	ruleService := service.NewRuleService(store, journal, logger)
	policyIOService := service.NewPolicyIOService(store, settings, journal, logger)
	simulationService := service.NewSimulationService(store, logger)

	registry := prometheus.NewRegistry()
	metrics := admin.NewMetrics(registry)

	handler := admin.NewAdminHandler(
		admin.WithRuleService(ruleService),
		admin.WithPolicyIOService(policyIOService),
		admin.WithSimulationService(simulationService),
		admin.WithAPIKeys(cfg.Auth.APIKeys),
		admin.WithDefaultEnforcementMode(rule.EnforcementMode(cfg.Export.DefaultEnforcementMode)),
		admin.WithMetrics(metrics, registry),
		admin.WithLogger(logger),
		admin.WithVersion(Version),
	)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", cfg.Server.HTTPAddr,
			"storage", cfg.Storage.Backend,
			"journal", cfg.Journal.Enabled,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := journal.Flush(shutdownCtx); err != nil {
		logger.Warn("journal flush failed", "error", err)
	}

	logger.Info("applock-forge stopped")
	return nil
}

// openStores creates the rule and settings stores selected by the config.
// The returned closer is a no-op for the memory backend.
func openStores(cfg *config.Config, logger *slog.Logger) (rule.Store, rule.SettingsStore, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", "path", cfg.Storage.Path)
		return db, db, func() { _ = db.Close() }, nil
	default:
		logger.Info("using in-memory store, rules are lost on restart")
		return memory.NewRuleStore(), memory.NewSettingsStore(), func() {}, nil
	}
}

// openJournal creates the change journal, or a no-op journal when disabled.
func openJournal(cfg *config.Config, logger *slog.Logger) (audit.Journal, error) {
	if !cfg.Journal.Enabled {
		return audit.NopJournal{}, nil
	}
	journal, err := auditstore.NewFileJournal(auditstore.FileJournalConfig{
		Dir:           cfg.Journal.Dir,
		RetentionDays: cfg.Journal.RetentionDays,
		MaxFileSizeMB: cfg.Journal.MaxFileSizeMB,
		CacheSize:     cfg.Journal.CacheSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open change journal: %w", err)
	}
	return journal, nil
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

// discardLogger returns a logger for offline commands that should only
// print their own output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
