package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shopledger/shopledger/internal/allocation"
	"github.com/shopledger/shopledger/internal/app"
	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/platform/cache"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/readcache"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	loc, _ := cfg.Location()

	pool, err := db.New(ctx, cfg.Pool())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	readCache := readcache.New(redisClient, cfg.CacheTTL)

	// Scans only read, so audit and idempotency are not wired here.
	scheduler := allocation.NewScheduler(allocation.NewRepository(pool), nil, logger, loc).WithCache(readCache)
	stockService := stock.NewService(stock.NewRepository(pool), nil, logger).WithCache(readCache)
	metrics := jobmetrics.NewMetrics(nil)

	dueJob := jobs.NewDueScanJob(scheduler, logger, metrics)
	lowStockJob := jobs.NewLowStockScanJob(stockService, logger, metrics)
	cleanupJob := jobs.NewCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, metrics)

	lowStockTask, err := jobs.NewLowStockScanTask("")
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	single := jobs.NewSingleton(redisClient, 15*time.Minute, logger)
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().Asynq(),
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAllocationsDueScan, Handler: single.Wrap(dueJob.Handle)},
			{Type: jobs.TaskLowStockScan, Handler: single.Wrap(lowStockJob.Handle)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: single.Wrap(cleanupJob.Handle)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: jobs.NewAllocationsDueScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/30 7-18 * * 1-6", Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
