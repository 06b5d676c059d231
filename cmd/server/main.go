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

	"github.com/subwatch/subwatch/internal/api"
	"github.com/subwatch/subwatch/internal/app"
	"github.com/subwatch/subwatch/internal/app/sweep"
	iauth "github.com/subwatch/subwatch/internal/auth"
	"github.com/subwatch/subwatch/internal/database"
	"github.com/subwatch/subwatch/internal/push"
	"github.com/subwatch/subwatch/internal/services"
	"github.com/subwatch/subwatch/pkg/logger"
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
	fs := flag.NewFlagSet("subwatch-server", flag.ContinueOnError)
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

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	notificationSvc, err := services.NewNotificationService(db)
	if err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}
	subscriptionSvc, err := services.NewPushSubscriptionService(db)
	if err != nil {
		return fmt.Errorf("initialise push subscription service: %w", err)
	}
	preferenceSvc, err := services.NewPreferenceService(db)
	if err != nil {
		return fmt.Errorf("initialise preference service: %w", err)
	}

	transport, err := buildTransport(cfg, log)
	if err != nil {
		return err
	}

	deliverySvc, err := services.NewDeliveryService(
		notificationSvc,
		subscriptionSvc,
		preferenceSvc,
		transport,
		services.WithChunkSize(cfg.Delivery.ChunkSize),
		services.WithChunkDelay(cfg.Delivery.ChunkDelay),
	)
	if err != nil {
		return fmt.Errorf("initialise delivery service: %w", err)
	}

	eventSweeper, err := sweep.NewEventSweeper(db, deliverySvc,
		sweep.WithRenewalMilestones(cfg.Sweep.RenewalReminderDays),
		sweep.WithPaymentMilestones(cfg.Sweep.PaymentReminderDays),
	)
	if err != nil {
		return fmt.Errorf("initialise event sweeper: %w", err)
	}

	retentionSweeper, err := sweep.NewRetentionSweeper(db, notificationSvc, subscriptionSvc,
		sweep.WithReadRetentionDays(cfg.Sweep.ReadRetentionDays),
		sweep.WithUnreadRetentionDays(cfg.Sweep.UnreadRetentionDays),
		sweep.WithIdleEndpointDays(cfg.Sweep.IdleEndpointDays),
		sweep.WithOptimize(cfg.Sweep.Optimize),
	)
	if err != nil {
		return fmt.Errorf("initialise retention sweeper: %w", err)
	}

	scheduler := sweep.NewScheduler(eventSweeper, retentionSweeper,
		sweep.WithEventSchedule(cfg.Sweep.EventSchedule),
		sweep.WithRetentionSchedule(cfg.Sweep.RetentionSchedule),
	)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start sweep scheduler: %w", err)
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	router, err := api.NewRouter(db, jwtService, cfg, deliverySvc)
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

func buildTransport(cfg *app.Config, log *zap.Logger) (push.Transport, error) {
	if !cfg.Push.Enabled() {
		log.Info("vapid keys not configured; notifications are record-only")
		return nil, nil
	}

	transport, err := push.NewWebPushTransport(push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTLSeconds:      cfg.Push.TTLSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise web push transport: %w", err)
	}
	return transport, nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

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
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
