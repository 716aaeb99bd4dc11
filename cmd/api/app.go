package main

import (
	"context"
	"fmt"

	"procureflow/internal/config"
	"procureflow/internal/database"
	"procureflow/internal/lock"
	"procureflow/internal/logger"
	"procureflow/internal/middleware"
	"procureflow/internal/notification"
	"procureflow/internal/repository"
	"procureflow/internal/service"
	"procureflow/internal/websocket"
	"procureflow/internal/worker"
	"procureflow/internal/workflow"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the wired dependency graph (Repository -> Service/Workflow -> Handler)
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	rdb         *redis.Client
	hub         *websocket.Hub
	relay       *notification.RedisRelay
	broadcaster *notification.Broadcaster

	store        workflow.Store
	pool         *worker.Pool
	router       *workflow.ApprovalRouter
	fulfillment  *workflow.Fulfillment
	orchestrator *workflow.Orchestrator

	statistics service.StatisticsService
	requests   service.PurchaseRequestService
	audit      service.AuditService
	users      service.UserService
	auth       *middleware.Auth
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	zl.Info("connected to PostgreSQL")

	a := &app{cfg: cfg, log: zl, db: db}

	a.hub = websocket.NewHub(zl.Named("websocket"))
	a.broadcaster = notification.NewBroadcaster(zl.Named("notification"), a.hub)

	var leaser lock.Leaser = lock.Local{}
	if cfg.Redis.Enabled() {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.relay = notification.NewRedisRelay(a.rdb, notification.DefaultRelayChannel, a.hub, zl.Named("relay"))
		a.broadcaster.AddSink(a.relay)
		leaser = lock.NewRedisLeaser(a.rdb, "procureflow:tick")
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	a.store = workflow.Store{
		Tx:        repository.NewTransactionManager(db),
		Requests:  repository.NewPurchaseRequestRepository(db),
		Approvals: repository.NewApprovalRepository(db),
		Orders:    repository.NewPurchaseOrderRepository(db),
		Users:     repository.NewUserRepository(db),
		Audit:     repository.NewAuditRepository(db),
	}
	wf := cfg.Workflow

	if a.pool, err = worker.NewPool(wf.WorkerCount, wf.QueueSize, zl.Named("worker")); err != nil {
		return nil, err
	}
	a.router = workflow.NewApprovalRouter(a.store, a.broadcaster, wf.SystemApproverID, zl.Named("router"))
	a.fulfillment = workflow.NewFulfillment(a.store, a.broadcaster, a.pool, workflow.FulfillmentConfig{
		ProcessingDelay:         wf.ProcessingDelay,
		ConfirmMinDelay:         wf.ConfirmMinDelay,
		ConfirmMaxDelay:         wf.ConfirmMaxDelay,
		DeliveryAddressTemplate: wf.DeliveryAddressTemplate,
		SystemUserID:            wf.SystemApproverID,
	}, zl.Named("fulfillment"))

	a.statistics = service.NewStatisticsService(repository.NewStatisticsRepository(db), a.store.Orders)
	a.orchestrator = workflow.NewOrchestrator(a.store, a.router, a.fulfillment, a.statistics, a.broadcaster, leaser,
		workflow.Schedule{
			AutoApproval:    wf.AutoApprovalPeriod,
			OrderGeneration: wf.OrderGenerationPeriod,
			Statistics:      wf.StatisticsPeriod,
			LeaseTTL:        wf.LeaseTTL,
		}, zl.Named("orchestrator"))

	a.requests = service.NewPurchaseRequestService(a.store.Tx, a.store.Requests, a.store.Approvals, a.store.Users, a.store.Audit, a.router, a.broadcaster)
	a.audit = service.NewAuditService(a.store.Audit)
	a.auth = middleware.NewAuth(cfg.JWT.Secret)
	a.users = service.NewUserService(a.store.Users, a.auth, cfg.JWT.TokenTTL)
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
