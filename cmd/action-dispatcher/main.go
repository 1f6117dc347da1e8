// Package main is the entrypoint for the action-dispatcher service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/morezero/action-dispatcher/internal/config"
	"github.com/morezero/action-dispatcher/internal/server"
	"github.com/morezero/action-dispatcher/pkg/livedb"
)

const usage = `Usage: action-dispatcher [command]
       action-dispatcher serve            Start the dispatcher (NATS, HTTP health, demo controllers).
       action-dispatcher migrate up       Run database migrations for the demo Orders/Users controllers.
       action-dispatcher migrate down     No-op: migrations are forward-only.
       action-dispatcher migrate status   Show migration status.

Commands:
  serve           (default) Start the action dispatcher.
  migrate up      Run database migrations only.
  migrate down    No-op (migrations are forward-only).
  migrate status  Show current migration status.

Environment: DISPATCHER_SUBJECT, SERVER_VERSION, DATABASE_URL, MIGRATION_PATH, RUN_MIGRATIONS,
DISPATCHER_HTTP_ADDR. See internal/config for the full list and defaults.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("action-dispatcher migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("action-dispatcher migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("action-dispatcher migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("action-dispatcher migrate down: %v", err)
			}
		default:
			log.Fatalf("action-dispatcher migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("action-dispatcher: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := livedb.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := livedb.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return livedb.RunMigrations(ctx, pool, migrationSQL)
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := livedb.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return livedb.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := livedb.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return livedb.MigrationDown(ctx, pool, cfg.MigrationPath)
}
