// Package main applies the embedded schema migrations to either store.
//
// Usage:
//
//	migrate <primary|ledger> <up|down|goto N|status>
//
// Connection strings come from the same configuration as the API:
// DATABASE_URL for primary and LEDGER_DATABASE_URL (with the non-production
// fallback to DATABASE_URL) for ledger.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"marketingapi/internal/app"
	"marketingapi/internal/config"
	"marketingapi/migrations"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		printUsage()
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		return errors.New("missing arguments")
	}
	store, command := args[0], args[1]

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel).With("store", store)

	dsn, err := storeURL(cfg, store)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.FS, store)
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(dsn))
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error("closing migration resources", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "goto":
		if len(args) < 3 {
			return errors.New("goto requires a version")
		}
		version, parseErr := strconv.ParseUint(args[2], 10, 64)
		if parseErr != nil {
			return fmt.Errorf("invalid version %q: %w", args[2], parseErr)
		}
		err = m.Migrate(uint(version))
	case "status":
		version, dirty, verErr := m.Version()
		if errors.Is(verErr, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if verErr != nil {
			return fmt.Errorf("reading version: %w", verErr)
		}
		logger.Info("migration status", "version", version, "dirty", dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no change: schema is up to date", "command", command)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	logger.Info("migration complete", "command", command)
	return nil
}

// storeURL picks the connection string for store.
func storeURL(cfg *config.Config, store string) (string, error) {
	switch store {
	case migrations.Primary:
		return cfg.Database.URL.Unmask(), nil
	case migrations.Ledger:
		url, _ := cfg.LedgerURL()
		if url.IsBlank() {
			return "", errors.New("LEDGER_DATABASE_URL is not configured")
		}
		return url.Unmask(), nil
	default:
		return "", fmt.Errorf("unknown store %q", store)
	}
}

// pgx5URL rewrites a postgres:// URL to the scheme the pgx/v5 driver
// registers.
func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func printUsage() {
	fmt.Println("Usage: migrate <primary|ledger> <command>")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - print the current version")
}
