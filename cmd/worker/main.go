package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/accounting/ledger"
	"github.com/odyssey-erp/ledgercore/internal/app"
	"github.com/odyssey-erp/ledgercore/internal/engine"
	"github.com/odyssey-erp/ledgercore/internal/events"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/cache"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/jobs"
)

func main() {
	if app.InTestMode() {
		zap.L().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		zap.L().Fatal("init logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *zap.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", zap.Error(err))
		}
	}()

	txOpts := db.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.PGStmtTimeout
	tx := db.NewTxManager(pool, logger).WithOptions(txOpts)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	eng := engine.New(engine.PostgresRepositories(tx), engine.Config{
		AllowNegativeStock: cfg.AllowNegativeStock,
		PostJournals:       cfg.PostJournals,
		Cache:              ledger.NewCache(redisClient, cfg.BalanceCacheTTL),
		Metrics:            metrics,
		Logger:             logger,
	})

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("kafka close", zap.Error(err))
			}
		}()
		publisher = kafka
	} else {
		logger.Warn("no kafka brokers configured, outbox events are acknowledged without delivery")
	}
	relay := events.NewRelay(events.NewPGOutbox(tx), publisher, tx, cfg.OutboxBatchSize, logger)

	integrityJob := jobs.NewGLIntegrityJob(eng, cfg.Companies, logger, jobMetrics)
	replayJob := jobs.NewStockReplayJob(eng.Stock, cfg.Companies, logger, jobMetrics)
	relayJob := jobs.NewOutboxRelayJob(relay, logger, jobMetrics)

	integrityTask, err := jobs.NewGLIntegrityTask(jobs.IntegrityPayload{})
	if err != nil {
		return err
	}
	replayTask, err := jobs.NewStockReplayTask(jobs.StockReplayPayload{})
	if err != nil {
		return err
	}
	relayTask, err := jobs.NewOutboxRelayTask(jobs.OutboxRelayPayload{})
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskStockReplay, Handler: replayJob.Handle},
			{Type: jobs.TaskOutboxRelay, Handler: relayJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityCron, Task: integrityTask},
			{Spec: cfg.StockReplayCron, Task: replayTask},
			{Spec: cfg.OutboxCron, Task: relayTask, Options: []asynq.Option{asynq.Unique(30 * time.Second)}},
		},
	})
	if err != nil {
		return err
	}

	client := jobs.NewClient(redisOpts)
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	srv := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    metrics,
			JobHandler: jobs.NewHandler(inspector, client, logger),
			Checks: map[string]app.Pinger{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("ops server listening", zap.String("addr", cfg.OpsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
