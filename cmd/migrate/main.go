// Package main 是数据库迁移命令行工具，基于 golang-migrate。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/config"
	"github.com/MorseWayne/fridge_shop/internal/database"
	"github.com/MorseWayne/fridge_shop/internal/logger"
)

const usage = `Usage: %s -action=[up|down|version|force] [options]

Examples:
  ./migrate -action=up                  # apply all pending migrations
  ./migrate -action=down -steps=1       # roll back one migration
  ./migrate -action=version -target=2   # migrate to version 2
  ./migrate -action=force -target=0     # clear dirty state
`

func main() {
	var (
		action = flag.String("action", "up", "migration action: up, down, version, force")
		steps  = flag.Int("steps", 1, "number of steps for down migration")
		target = flag.Uint("target", 0, "target version for version or force")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != "mysql" {
		log.Fatalf("migrations require DB_DRIVER=mysql, got %q", cfg.Database.Driver)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "migrate", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	db, err := database.New(cfg, lg)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Error("failed to close database", zap.Error(err))
		}
	}()

	dir := cfg.Migrations.Dir
	switch *action {
	case "up":
		err = db.RunMigrations(dir)
	case "down":
		lg.Info("rolling back migrations", zap.Int("steps", *steps))
		err = db.MigrateDown(dir, *steps)
	case "version":
		if *target == 0 {
			lg.Fatal("-target must be set for version migration")
		}
		err = db.MigrateToVersion(dir, *target)
	case "force":
		// 版本 0 表示回到未迁移状态
		lg.Warn("forcing migration version, dirty state will be cleared", zap.Uint("target", *target))
		err = db.ForceMigrationVersion(dir, *target)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		lg.Fatal("migration failed", zap.String("action", *action), zap.Error(err))
	}
	lg.Info("migration completed", zap.String("action", *action))
}
