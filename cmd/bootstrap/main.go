// Command bootstrap prepares a deployment: it applies database migrations
// and can mint a service token. Running it twice is harmless.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/neuralchat/ragserver/internal/auth"
	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/database"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/logging"
)

func main() {
	subject := flag.String("token", "", "mint a session token for this subject and print it")
	skipMigrate := flag.Bool("skip-migrate", false, "do not touch the database")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if !*skipMigrate {
		if err := migrate(ctx, cfg); err != nil {
			slog.Error("bootstrap failed", "error", err)
			os.Exit(1)
		}
	}

	if *subject != "" {
		issuer, err := auth.NewIssuer(cfg.Auth)
		if err != nil {
			slog.Error("cannot mint token", "error", err)
			os.Exit(1)
		}
		token, exp, err := issuer.Mint(*subject)
		if err != nil {
			slog.Error("cannot mint token", "error", err)
			os.Exit(1)
		}
		slog.Info("token minted", "subject", *subject, "expires_at", exp.UTC().Format(time.RFC3339))
		fmt.Println(token)
	}
}

func migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.URL != "" {
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		slog.Info("postgres schema up to date")
	}

	if cfg.Storage.DocStoreDriver == "sqlite" {
		store, err := document.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		slog.Info("sqlite schema up to date", "path", store.Path())
	}
	return nil
}
