package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/app"
	"github.com/epetcare/notifier/internal/database"
	"github.com/epetcare/notifier/internal/dispatch"
	"github.com/epetcare/notifier/internal/sweep"
	"github.com/epetcare/notifier/pkg/logger"
)

// One-shot catch-up sweep for operators and external cron. Exits non-zero
// when any row failed to dispatch so schedulers can alert on it.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("epetcare-sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	var batch int
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")
	fs.IntVar(&batch, "batch", 0, "Maximum rows to process (0 uses the configured batch size)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("sweep-cli")

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	primary, err := cfg.Email.PrimaryMailer()
	if err != nil {
		return fmt.Errorf("initialise primary mailer: %w", err)
	}
	fallback, err := cfg.Email.FallbackMailer()
	if err != nil {
		return fmt.Errorf("initialise fallback mailer: %w", err)
	}

	pipeline, err := dispatch.NewPipeline(db, primary, fallback,
		dispatch.WithBrand(dispatch.Brand{Name: cfg.Brand.Name, LogoURL: cfg.Brand.LogoURL}))
	if err != nil {
		return fmt.Errorf("initialise dispatch pipeline: %w", err)
	}

	if batch <= 0 {
		batch = cfg.Notify.SweepBatch
	}
	sweeper, err := sweep.NewSweeper(db, pipeline, batch)
	if err != nil {
		return fmt.Errorf("initialise sweeper: %w", err)
	}

	stats, err := sweeper.Run(ctx)
	log.Info("sweep finished",
		zap.Int("processed", stats.Processed),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped))
	if err != nil {
		return fmt.Errorf("sweep completed with failures: %w", err)
	}

	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func openDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
