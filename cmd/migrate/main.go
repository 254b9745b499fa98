package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sentinel/ledger/internal/infra"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fs.String("dir", "", "migrations directory (default: MIGRATIONS_DIR or ./db/migrations)")
	steps := fs.Int("steps", 1, "migrations to roll back with 'down'; 0 rolls back all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := infra.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if *dir == "" {
		*dir = cfg.MigrationsDir
	}

	mg, err := infra.NewMigrator(cfg.DSN(), *dir, logger)
	if err != nil {
		return err
	}
	defer mg.Close()

	cmd := "up"
	if fs.NArg() > 0 {
		cmd = fs.Arg(0)
	}

	switch cmd {
	case "up":
		return mg.Up()
	case "down":
		return mg.Down(*steps)
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}
}
