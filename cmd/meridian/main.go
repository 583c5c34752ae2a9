package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/app"
	"github.com/meridian-erp/meridian/internal/consolidation"
	"github.com/meridian-erp/meridian/internal/fulfillment"
	"github.com/meridian-erp/meridian/internal/integration"
	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/masterdata"
	"github.com/meridian-erp/meridian/internal/masterdata/categories"
	"github.com/meridian-erp/meridian/internal/masterdata/products"
	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/cache"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/policy"
	"github.com/meridian-erp/meridian/internal/procurement"
	"github.com/meridian-erp/meridian/internal/shared"
	"github.com/meridian-erp/meridian/jobs"
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
		logger.Warn("redis unavailable, snapshot cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvals := shared.NewApprovalRecorder(pool, logger)
	idempotency := shared.NewIdempotencyStore(pool)

	productSvc := products.NewService(products.NewRepository(pool))
	categorySvc := categories.NewService(categories.NewRepository(pool))
	warehouseSvc := warehouses.NewService(warehouses.NewRepository(pool))

	policySvc := policy.NewService(policy.NewRepository(pool), categorySvc)

	inventorySvc := inventory.NewService(
		inventory.NewRepository(pool),
		auditLogger,
		idempotency,
		inventory.NewSnapshotCache(redisClient),
		inventory.ServiceConfig{},
	)

	fulfillmentSvc := fulfillment.NewService(
		fulfillment.NewRepository(pool),
		inventorySvc,
		warehouseSvc,
		auditLogger,
		logger,
	)

	procurementRepo := procurement.NewRepository(pool)

	classifier := consolidation.NewClassifier(
		inventorySvc,
		policySvc,
		productSvc,
		warehouseSvc,
		nil, // vendor source attached below to break the construction cycle
	)
	consolidationSvc := consolidation.NewService(
		consolidation.NewRepository(pool),
		nil, // request source attached below
		classifier,
		auditLogger,
		approvals,
		logger,
	)

	procurementSvc := procurement.NewService(
		procurementRepo,
		consolidationSvc,
		inventorySvc,
		warehouseSvc,
		integration.NewPlanBridge(fulfillmentSvc),
		approvals,
		auditLogger,
		idempotency,
		procurement.ServiceConfig{
			SupplierLocationID: cfg.SupplierLocationID,
			Currency:           cfg.Currency,
		},
		logger,
	)

	classifier.SetVendorSource(integration.NewVendorSource(procurementSvc))
	consolidationSvc.SetRequestSource(integration.NewRequestSource(procurementSvc))

	inventorySvc.AddIntegrationHandler(integration.NewReceiptHooks(fulfillmentSvc, metrics, logger))
	consolidationSvc.AddIntegrationHandler(integration.NewMetricsHooks(metrics))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("jobs inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		ConsolidationHandler: consolidation.NewHandler(logger, consolidationSvc, auditLogger, jobsClient),
		ProcurementHandler:   procurement.NewHandler(logger, procurementSvc),
		FulfillmentHandler:   fulfillment.NewHandler(logger, fulfillmentSvc),
		InventoryHandler:     inventory.NewHandler(logger, inventorySvc),
		PolicyHandler:        policy.NewHandler(logger, policySvc),
		MasterDataHandler:    masterdata.NewHandler(logger, productSvc, categorySvc, warehouseSvc),
		JobsHandler:          jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
