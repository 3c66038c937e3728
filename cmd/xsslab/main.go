// Package main is the entry point for the xsslab server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"xsslab/internal/audit"
	"xsslab/internal/config"
	"xsslab/internal/crypto"
	httpserver "xsslab/internal/http"
	"xsslab/internal/policy"
	"xsslab/internal/storage"
	"xsslab/internal/storage/postgres"
	"xsslab/internal/telemetry"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	genKey := flag.Bool("gen-key", false, "Print a new base64 AES-256 key for encryption_key and exit")
	hashPassword := flag.String("hash-password", "", "Print a bcrypt hash for admin_password_hash and exit")
	flag.Parse()

	if *genKey {
		key, err := crypto.GenerateKeyString(32)
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate key:", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}
	if *hashPassword != "" {
		hash, err := crypto.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash password:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	slog.SetDefault(newLogger(cfg.Telemetry))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("xsslab stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("xsslab stopped")
}

// run serves until ctx is canceled. Resources are released before it
// returns, whatever the outcome.
func run(ctx context.Context, cfg *config.Config) error {
	mode := policy.ResolveMode(cfg)
	slog.Info("Starting xsslab",
		"version", "0.1.0",
		"addr", cfg.Server.Addr(),
		"security_mode", mode,
		"storage", cfg.Storage.Driver,
	)
	if !mode.Protected() {
		slog.Warn("Security mode is off: lab pages render input unescaped")
	}

	// Initialize telemetry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	store, err := openStore(ctx, cfg, registry)
	if err != nil {
		return fmt.Errorf("initializing %s storage: %w", cfg.Storage.Driver, err)
	}
	defer store.Close()

	auditService := audit.NewService(cfg.Security.EventBufferSize, slog.Default(), metrics)

	server, err := httpserver.NewServer(cfg, store, auditService, metrics)
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}

	if cfg.Security.AdminPasswordHash == "" {
		slog.Warn("Admin panels are not password protected; set admin_password_hash to enable basic auth")
	}

	slog.Info("xsslab ready", "url", fmt.Sprintf("http://localhost:%d/", cfg.Server.HTTPPort))
	if err := server.Start(ctx, cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newLogger builds the process logger from the telemetry settings
func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", cfg.ServiceName)
}

// openStore opens the configured store and, when an encryption key is
// set, seals collected cookies at rest.
func openStore(ctx context.Context, cfg *config.Config, registry prometheus.Registerer) (storage.Store, error) {
	var store storage.Store
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store = storage.NewMemoryStore()
	case config.DriverPostgres:
		slog.Info("Initializing PostgreSQL storage",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Database,
		)
		pg, err := postgres.NewStore(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		registry.MustRegister(collectors.NewDBStatsCollector(pg.DB(), cfg.Database.Database))
		store = pg
	default:
		fs, err := storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.LogDir)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	if cfg.Security.EncryptionKey == "" {
		return store, nil
	}
	enc, err := crypto.NewEncryptionServiceFromString(cfg.Security.EncryptionKey)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}
	slog.Info("Collected cookies are encrypted at rest", "key_id", enc.KeyID())
	return storage.NewSealedCookies(store, enc), nil
}
