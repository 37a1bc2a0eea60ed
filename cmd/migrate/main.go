// Package main implements the migrate CLI tool for the ledger schema.
//
// Usage:
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate down
//	go run ./cmd/migrate version
//	go run ./cmd/migrate --database-url=postgres://... up
//
// The tool reads DATABASE_URL from environment variables (or .env file via
// godotenv, or AWS SSM through DATABASE_URL_SSM_PARAM) unless
// --database-url is given. Migrations are embedded in the
// binary, so it needs no files on disk.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"tiergate/internal/config"
	"tiergate/internal/db"
)

// migrator is the subset of db.Migrator the commands use.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

var commands = map[string]string{
	"up":      "Apply all pending migrations",
	"down":    "Roll back the most recent migration",
	"version": "Print the current schema version",
}

func main() {
	_ = godotenv.Load()

	databaseURL := flag.String("database-url", "", "Postgres connection URL (defaults to DATABASE_URL)")
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	if flag.NArg() != 1 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := flag.Arg(0)
	if _, ok := commands[cmd]; !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	url := *databaseURL
	if url == "" {
		// Resolves DATABASE_URL_SSM_PARAM outside APP_ENV=local.
		if err := config.ResolveSecrets(config.NewSecretProvider(os.Getenv("AWS_REGION"))); err != nil {
			fmt.Fprintf(os.Stderr, "resolving secrets: %v\n", err)
			os.Exit(1)
		}
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mg, err := db.NewMigrator(url, logger)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}

	runErr := execute(cmd, mg, os.Stdout)
	if err := mg.Close(); err != nil {
		logger.Warn("failed to close migrator", "error", err)
	}
	if runErr != nil {
		logger.Error("migration command failed", "command", cmd, "error", runErr)
		os.Exit(1)
	}
}

// execute runs one command against m and reports the result to out.
func execute(cmd string, m migrator, out io.Writer) error {
	switch cmd {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
	case "down":
		if err := m.Down(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	fmt.Fprintf(out, "version=%d dirty=%t\n", v, dirty)
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: migrate [--database-url=URL] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range []string{"up", "down", "version"} {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name])
	}
}
