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

	"github.com/shopledger/shopledger/internal/allocation"
	"github.com/shopledger/shopledger/internal/audit"
	"github.com/shopledger/shopledger/internal/app"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/platform/cache"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/pocketmoney"
	"github.com/shopledger/shopledger/internal/readcache"
	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/supplier"
	"github.com/shopledger/shopledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		code := runJobs(ctx, os.Args[2:], os.Stdout)
		stop()
		os.Exit(code)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	loc, _ := cfg.Location()
	pocketMax, _ := cfg.PocketMoneyLimit()

	dbpool, err := db.New(ctx, cfg.Pool())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var readCache *readcache.Cache
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, read cache disabled", slog.Any("error", err))
		readCache = readcache.New(nil, cfg.CacheTTL)
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		readCache = readcache.New(redisClient, cfg.CacheTTL)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ledgerManager := ledger.NewManager(ledger.NewRepository(dbpool), auditLogger, logger)
	stockService := stock.NewService(stock.NewRepository(dbpool), auditLogger, logger).WithCache(readCache)
	salesProcessor := sales.NewProcessor(sales.NewRepository(dbpool), auditLogger, idempotencyStore, logger).WithCache(readCache)
	scheduler := allocation.NewScheduler(allocation.NewRepository(dbpool), auditLogger, logger, loc).WithCache(readCache)
	supplierManager := supplier.NewManager(supplier.NewRepository(dbpool), auditLogger, logger,
		supplier.ManagerConfig{CreditDays: cfg.SupplierCreditDays}).WithCache(readCache)
	subledger := pocketmoney.NewSubledger(pocketmoney.NewRepository(dbpool), auditLogger, logger,
		pocketmoney.Config{Departments: cfg.PocketMoneyDepartments, MaxBalance: pocketMax}).WithCache(readCache)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		DB:                 dbpool,
		LedgerHandler:      ledger.NewHandler(logger, ledgerManager),
		StockHandler:       stock.NewHandler(logger, stockService),
		SalesHandler:       sales.NewHandler(logger, salesProcessor),
		AllocationHandler:  allocation.NewHandler(logger, scheduler),
		SupplierHandler:    supplier.NewHandler(logger, supplierManager),
		PocketMoneyHandler: pocketmoney.NewHandler(logger, subledger),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), loc),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", loc.String()))
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
