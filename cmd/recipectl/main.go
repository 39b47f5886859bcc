// Command recipectl runs operator tasks against the recipe database.
//
//	recipectl wait-for-db
//	recipectl create-superuser -email admin@example.com -password secret -name Admin
//
// It reads the same configuration as the server (config.yaml, DB_DRIVER, DB_DSN, ...).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/repository/sqldb"
	"github.com/sakif/recipe-api/internal/service"
)

const usage = `usage: recipectl <command> [flags]

commands:
  wait-for-db        block until the database accepts connections
  create-superuser   create a staff account with every permission
`

// Polling schedule for wait-for-db.
const (
	waitAttempts = 30
	waitInterval = time.Second
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	logger := cfg.Logging.NewLogger(stderr)

	switch args[0] {
	case "wait-for-db":
		db, err := sqldb.Connect(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			logger.Error("invalid database settings", slog.String("error", err.Error()))
			return 1
		}
		defer db.Close()

		if err := waitForDB(ctx, db, waitAttempts, waitInterval, logger); err != nil {
			logger.Error("database unavailable", slog.String("error", err.Error()))
			return 1
		}
		logger.Info("database available")
		return 0

	case "create-superuser":
		return createSuperuser(ctx, cfg, args[1:], stderr, logger)

	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// waitForDB pings db until it answers or attempts run out.
func waitForDB(ctx context.Context, db pinger, attempts int, interval time.Duration, logger *slog.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.Ping(ctx); err == nil {
			return nil
		}
		logger.Info("database unavailable, waiting", slog.Int("attempt", i), slog.Int("of", attempts))

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func createSuperuser(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("create-superuser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "login email (required)")
	password := fs.String("password", "", "password (required)")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		return 1
	}
	defer db.Close()

	// The token service is never used to sign here; any valid key will do.
	tokens, err := auth.NewTokenService("recipectl-does-not-issue-tokens-here", time.Hour)
	if err != nil {
		logger.Error("failed to build token service", slog.String("error", err.Error()))
		return 1
	}
	users := service.NewUserService(db, tokens, auth.NewPasswordService(), logger)

	user, err := users.CreateSuperuser(ctx, *email, *password, *name)
	if err != nil {
		var appErr *apperror.AppError
		if errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr) {
			for field, msgs := range appErr.Fields {
				for _, msg := range msgs {
					fmt.Fprintf(stderr, "%s: %s\n", field, msg)
				}
			}
			return 1
		}
		logger.Error("failed to create superuser", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("superuser created", slog.Int64("id", user.ID), slog.String("email", user.Email))
	return 0
}
