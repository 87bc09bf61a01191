package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/repository/memory"
	"github.com/spec-kit/account-service/internal/revocation"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/storage"
	"github.com/spec-kit/account-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	userRepo, revokedRepo := repositories(pg)
	ledger := revocation.NewLedger(revokedRepo, logger, revocation.WithCache(redis.Client))

	var images service.ImageUploader
	if cfg.Storage.Enabled() {
		store, err := storage.NewImageStore(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to init image store", zap.Error(err))
		}
		images = store
	} else {
		logger.Warn("S3_BUCKET not provided; profile picture uploads disabled")
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	accounts := service.NewAccountService(*cfg, service.AccountDependencies{
		UserRepo:    userRepo,
		Revocations: ledger,
		Images:      images,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	gate := auth.NewGate(accounts.TokenManager(), ledger)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    cfg.HTTP.BodyLimitBytes,
		Immutable:    true,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:     cfg.App.RequestTimeout(),
		CORSOrigins: cfg.HTTP.CORSAllowOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Users:  handlers.NewUsersHandler(accounts, cfg.Auth.CookieSecure),
		Gate:   gate,
	})

	pruned := worker.StartRevocationPruner(ctx, ledger, cfg.Auth.PruneInterval(), logger)

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-pruned
}

func repositories(pg *persistence.Postgres) (repository.UserRepository, repository.RevokedTokenRepository) {
	if !pg.Enabled() {
		return memory.NewUsers(), memory.NewRevokedTokens()
	}
	pool := pg.PoolHandle()
	return repository.NewUserRepository(pool), repository.NewRevokedTokenRepository(pool)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
