package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/app"
	"github.com/meridian-erp/meridian/internal/consolidation"
	"github.com/meridian-erp/meridian/internal/fulfillment"
	"github.com/meridian-erp/meridian/internal/integration"
	"github.com/meridian-erp/meridian/internal/inventory"
	jobmetrics "github.com/meridian-erp/meridian/internal/jobs"
	"github.com/meridian-erp/meridian/internal/masterdata/categories"
	"github.com/meridian-erp/meridian/internal/masterdata/products"
	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/platform/cache"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/policy"
	"github.com/meridian-erp/meridian/internal/procurement"
	"github.com/meridian-erp/meridian/internal/shared"
	"github.com/meridian-erp/meridian/jobs"
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

	classifier := consolidation.NewClassifier(inventorySvc, policySvc, productSvc, warehouseSvc, nil)
	consolidationSvc := consolidation.NewService(
		consolidation.NewRepository(pool),
		nil,
		classifier,
		auditLogger,
		approvals,
		logger,
	)
	procurementSvc := procurement.NewService(
		procurement.NewRepository(pool),
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
	inventorySvc.AddIntegrationHandler(integration.NewReceiptHooks(fulfillmentSvc, nil, logger))

	metrics := jobmetrics.NewMetrics(nil)

	reclassifyJob := jobs.NewSessionReclassifyJob(consolidationSvc, redisClient, logger, metrics)
	expiryJob := jobs.NewAgreementExpiryJob(procurementSvc, logger, metrics)
	sweepJob := jobs.NewPlanSweepJob(fulfillmentSvc, redisClient, logger, metrics)

	reclassifyTask, err := jobs.NewSessionReclassifyTask(0)
	if err != nil {
		logger.Error("build reclassify task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewAgreementExpiryTask(time.Time{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewPlanSweepTask(2)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionReclassify, Handler: reclassifyJob.Handle},
			{Type: jobs.TaskAgreementExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskPlanSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: reclassifyTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "10 0 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "40 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
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
