package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leafsii/relkv/internal/config"
	kvlog "github.com/leafsii/relkv/internal/log"
	"github.com/leafsii/relkv/pkg/kv/postgres"
)

var (
	flags  = flag.NewFlagSet("migrate", flag.ExitOnError)
	schema = flags.String("schema", "", "schema holding the key space tables (defaults to KV_POSTGRES_SCHEMA)")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate [-schema name] COMMAND\n\nCommands:\n  up\n  down\n  status")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		log.Fatal("KV_POSTGRES_DSN is required")
	}
	if *schema != "" {
		cfg.Postgres.Schema = *schema
	}

	logger, err := kvlog.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to parse DSN: %v", err)
	}
	poolCfg.MaxConns = 2
	poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Postgres.Schema

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	command := postgres.MigrationCommand(args[0])
	if err := postgres.RunMigrations(ctx, pool, cfg.Postgres.Schema, command, logger); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	logger.Infow("Migration finished", "command", command, "schema", cfg.Postgres.Schema)
}
