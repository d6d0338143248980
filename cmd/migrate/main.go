// Package main 文档存储表结构迁移工具。
// MySQL 后端使用 golang-migrate 的版本化迁移；Postgres 后端只支持 up（内嵌建表语句）。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/config"
	"github.com/prmnaa30/vintage-marketplace/internal/database"
	"github.com/prmnaa30/vintage-marketplace/internal/logger"
)

const usage = `Usage: %s -action=[up|down|version|force] [options]

Options:
  -action string   up, down, version, force (default "up")
  -backend string  mysql or postgres (default: STORE_BACKEND)
  -steps int       number of steps for down migration (default 1)
  -target uint     target version for version or force migration

Examples:
  ./migrate -action=up
  ./migrate -backend=postgres -action=up
  ./migrate -action=down -steps=1
  ./migrate -action=force -target=1
`

func main() {
	var (
		action  = flag.String("action", "up", "Migration action: up, down, version, force")
		backend = flag.String("backend", "", "Store backend to migrate: mysql, postgres")
		steps   = flag.Int("steps", 1, "Number of steps for down migration")
		target  = flag.Uint("target", 0, "Target version for version or force migration")
	)
	flag.Usage = func() { fmt.Fprintf(os.Stderr, usage, os.Args[0]) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "migrate", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	switch cfg.Store.Backend {
	case config.StoreMySQL:
		migrateMySQL(cfg, lg, *action, *steps, *target)
	case config.StorePostgres:
		migratePostgres(cfg, lg, *action)
	default:
		lg.Sugar().Fatalw("backend has no schema to migrate", "backend", cfg.Store.Backend)
	}
}

func migrateMySQL(cfg *config.Config, lg *zap.Logger, action string, steps int, target uint) {
	db, err := database.New(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database", "error", err)
		}
	}()

	dir := cfg.Migrations.Dir

	switch action {
	case "up":
		lg.Info("running up migrations...")
		if err := db.RunMigrations(dir); err != nil {
			lg.Sugar().Fatalw("failed to run up migrations", "error", err)
		}
		lg.Info("up migrations completed successfully")

	case "down":
		lg.Sugar().Infow("running down migrations", "steps", steps)
		if err := db.MigrateDown(dir, steps); err != nil {
			lg.Sugar().Fatalw("failed to run down migrations", "error", err)
		}
		lg.Info("down migrations completed successfully")

	case "version":
		if target == 0 {
			lg.Fatal("target version must be specified for version migration")
		}
		lg.Sugar().Infow("migrating to version", "target", target)
		if err := db.MigrateToVersion(dir, target); err != nil {
			lg.Sugar().Fatalw("failed to migrate to version", "error", err)
		}
		lg.Info("version migration completed successfully")

	case "force":
		// 允许版本 0，表示回到无迁移状态
		lg.Sugar().Warnw("forcing migration version, dirty state will be cleared", "target", target)
		if err := db.ForceMigrationVersion(dir, target); err != nil {
			lg.Sugar().Fatalw("failed to force migration version", "error", err)
		}
		lg.Info("migration version forced successfully")

	default:
		flag.Usage()
		os.Exit(1)
	}
}

func migratePostgres(cfg *config.Config, lg *zap.Logger, action string) {
	if action != "up" {
		lg.Sugar().Fatalw("postgres backend only supports the up action", "action", action)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres.URL, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer pool.Close()

	if err := database.RunPostgresMigrations(ctx, pool); err != nil {
		lg.Sugar().Fatalw("failed to run postgres migrations", "error", err)
	}
	lg.Info("postgres schema is up to date")
}
