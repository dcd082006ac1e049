package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/athitex/fabricledger/internal/app"
	"github.com/athitex/fabricledger/internal/fabriccuts"
	"github.com/athitex/fabricledger/internal/movements"
	"github.com/athitex/fabricledger/internal/platform/cache"
	"github.com/athitex/fabricledger/internal/platform/db"
	"github.com/athitex/fabricledger/internal/processing"
	"github.com/athitex/fabricledger/internal/shared"
	"github.com/athitex/fabricledger/internal/wages"
	"github.com/athitex/fabricledger/internal/warps"
	"github.com/athitex/fabricledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	lookupCache := fabriccuts.NewCache(redisClient, 10*time.Minute)

	warpRepo := warps.NewRepository(pool)
	warpService := warps.NewService(warpRepo, auditLogger)
	warpHandler := warps.NewHandler(logger, warpService)

	cutRepo := fabriccuts.NewRepository(pool)
	cutService := fabriccuts.NewService(cutRepo, warpRepo, auditLogger, lookupCache)
	cutHandler := fabriccuts.NewHandler(logger, cutService)

	movementRepo := movements.NewRepository(pool)
	movementService := movements.NewService(movementRepo, auditLogger, lookupCache)
	movementHandler := movements.NewHandler(logger, movementService)

	processingRepo := processing.NewRepository(pool)
	processingService := processing.NewService(processingRepo, auditLogger, idempotencyStore)
	processingHandler := processing.NewHandler(logger, processingService)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	invoiceEvents := wages.FanOut{
		wages.NewRedisPublisher(redisClient, logger),
		jobClient,
	}

	wageRepo := wages.NewRepository(pool)
	wageService := wages.NewService(wageRepo, auditLogger, approvalRecorder, invoiceEvents)
	wageHandler := wages.NewHandler(logger, wageService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		Redis:             redisClient,
		WarpHandler:       warpHandler,
		FabricCutHandler:  cutHandler,
		MovementHandler:   movementHandler,
		ProcessingHandler: processingHandler,
		WageHandler:       wageHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
