package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/api"
	"github.com/epetcare/notifier/internal/app"
	"github.com/epetcare/notifier/internal/auth"
	"github.com/epetcare/notifier/internal/database"
	"github.com/epetcare/notifier/internal/dispatch"
	"github.com/epetcare/notifier/internal/services"
	"github.com/epetcare/notifier/internal/sweep"
	"github.com/epetcare/notifier/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
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
	fs := flag.NewFlagSet("epetcare-notifier", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

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

	log := logger.WithModule("bootstrap")

	if strings.TrimSpace(cfg.Reset.GuardSecret) == "" {
		return errors.New("reset.guard_secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	primary, err := cfg.Email.PrimaryMailer()
	if err != nil {
		return fmt.Errorf("initialise primary mailer: %w", err)
	}
	fallback, err := cfg.Email.FallbackMailer()
	if err != nil {
		return fmt.Errorf("initialise fallback mailer: %w", err)
	}
	if primary == nil {
		log.Warn("no primary email provider configured; relying on SMTP fallback if enabled")
	}

	pipeline, err := dispatch.NewPipeline(db, primary, fallback,
		dispatch.WithBrand(dispatch.Brand{Name: cfg.Brand.Name, LogoURL: cfg.Brand.LogoURL}))
	if err != nil {
		return fmt.Errorf("initialise dispatch pipeline: %w", err)
	}

	queue := dispatch.NewQueue(pipeline, cfg.Notify.QueueSize)
	queue.Start(ctx, cfg.Notify.Workers)
	defer queue.Close()

	notificationSvc, err := services.NewNotificationService(db)
	if err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}

	recorder, err := services.NewEventRecorder(db, queue)
	if err != nil {
		return fmt.Errorf("initialise event recorder: %w", err)
	}

	guard, err := auth.NewGuardService(auth.GuardConfig{
		Secret: cfg.Reset.GuardSecret,
		Issuer: cfg.Brand.Name,
		TTL:    cfg.Reset.GuardTTL,
	})
	if err != nil {
		return fmt.Errorf("initialise guard service: %w", err)
	}

	resetSvc, err := services.NewPasswordResetService(db, guard, pipeline, cfg.Reset.CodeTTL)
	if err != nil {
		return fmt.Errorf("initialise password reset service: %w", err)
	}

	sweeper, err := sweep.NewSweeper(db, pipeline, cfg.Notify.SweepBatch)
	if err != nil {
		return fmt.Errorf("initialise sweeper: %w", err)
	}

	scheduler := sweep.NewScheduler(sweeper, resetSvc,
		sweep.WithSweepSchedule(cfg.Notify.SweepSchedule),
		sweep.WithGCSchedule(cfg.Notify.GCSchedule))
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	router, err := api.NewRouter(api.Dependencies{
		Notifications: notificationSvc,
		Recorder:      recorder,
		PasswordReset: resetSvc,
		Sweeper:       sweeper,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
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

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
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

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("fetch underlying database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
