package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for TLS to the postgres backend in scratch images

	"github.com/ericfisherdev/homevault/internal/adapter/driven/crypto"
	"github.com/ericfisherdev/homevault/internal/adapter/driven/keyfile"
	postgresadapter "github.com/ericfisherdev/homevault/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/homevault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/homevault/internal/adapter/driving/cli"
	"github.com/ericfisherdev/homevault/internal/application"
	"github.com/ericfisherdev/homevault/internal/config"
	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

// Version is set at build time.
var Version = "dev"

// exitConfig is returned for missing or insecure key material and bad settings.
const exitConfig = 78

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "homevault: %v\n", err)
		if errors.Is(err, model.ErrConfiguration) {
			os.Exit(exitConfig)
		}
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Structured logging to stderr so command output stays parseable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Debug("config loaded", "config", cfg)

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Hand off to the CLI; the vault is opened only by commands that need it.
	return cli.Run(ctx, cli.Options{
		Open:    vaultOpener(cfg, logger),
		Actor:   cfg.User,
		Version: Version,
	}, os.Args[1:])
}

// vaultOpener resolves the key before touching the store so a key problem
// is reported before any database file is created.
func vaultOpener(cfg *config.Config, logger *slog.Logger) cli.Opener {
	return func(ctx context.Context) (*cli.Services, func() error, error) {
		provider := keyfile.NewProvider(keyfile.Options{
			EnvValue: cfg.KeyValue,
			Path:     cfg.KeyFile,
			Logger:   logger,
		})
		key, err := provider.Key()
		if err != nil {
			return nil, nil, err
		}
		engine, err := crypto.NewEngine(key)
		if err != nil {
			return nil, nil, fmt.Errorf("create encryption engine: %w", err)
		}

		creds, audit, closeFn, err := openStores(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}

		svc := &cli.Services{
			Vault: application.NewVaultService(creds, audit, engine, application.VaultConfig{
				StoreTimeout: cfg.StoreTimeout,
				Logger:       logger,
			}),
			Audit: application.NewAuditService(audit, cfg.StoreTimeout, logger),
		}
		return svc, closeFn, nil
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (driven.CredentialStore, driven.AuditStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgresadapter.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, &model.StorageError{Op: "open postgres", Err: err}
		}
		if err := postgresadapter.RunMigrations(db.Pool); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		logger.Info("database opened", "backend", cfg.Backend)
		return postgresadapter.NewCredentialRepo(db), postgresadapter.NewAuditRepo(db), db.Close, nil

	default:
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		logger.Info("database opened", "backend", cfg.Backend, "path", db.Path())
		return sqliteadapter.NewCredentialRepo(db), sqliteadapter.NewAuditRepo(db), db.Close, nil
	}
}
