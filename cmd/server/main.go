// Package main is the entry point for the recipe API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (internal/config: defaults, config.yaml, env vars)
// 2. Create long-lived dependencies (logger, database, image storage, tokens)
// 3. Start the application and clean up after it stops
//
// All actual logic lives in imported packages (internal/server, internal/service, ...).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/repository/sqldb"
	"github.com/sakif/recipe-api/internal/server"
	"github.com/sakif/recipe-api/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION AND LOGGING ===
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stdout)

	// === 2. SHUTDOWN SIGNALS ===
	// NotifyContext cancels ctx on Ctrl+C or SIGTERM; Start watches it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === 3. DATABASE ===
	// A file-backed SQLite database needs its directory to exist (like `mkdir -p`).
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database ready", slog.String("driver", db.Driver()))

	// === 4. IMAGE STORAGE ===
	images, media, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// === 5. AUTH ===
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			return err
		}
		logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	tokens, err := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		callback := cfg.GitHub.CallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/user/github/callback", cfg.Server.Port)
		}
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, callback)
	}

	// === 6. SERVE ===
	srv, err := server.New(cfg, server.Deps{
		Store:  db,
		Images: images,
		Media:  media,
		Tokens: tokens,
		GitHub: github,
	}, logger)
	if err != nil {
		return err
	}

	// Start blocks until ctx is cancelled and in-flight requests finish.
	return srv.Start(ctx)
}

// openStorage returns the configured image backend. Only the local backend
// needs an HTTP handler; S3 URLs point at the bucket directly.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ImageStore, http.Handler, error) {
	switch cfg.Backend {
	case config.StorageS3:
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	default:
		local, err := storage.NewLocal(cfg.MediaDir, cfg.MediaURL)
		if err != nil {
			return nil, nil, err
		}
		return local, local.Handler(), nil
	}
}

func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
