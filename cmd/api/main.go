package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/studentpen/pen-batch-engine/internal/batchfile"
	"github.com/studentpen/pen-batch-engine/internal/client"
	"github.com/studentpen/pen-batch-engine/internal/config"
	"github.com/studentpen/pen-batch-engine/internal/handler"
	"github.com/studentpen/pen-batch-engine/internal/infra/postgresql"
	"github.com/studentpen/pen-batch-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/studentpen/pen-batch-engine/internal/infra/redis"
	"github.com/studentpen/pen-batch-engine/internal/observability"
	"github.com/studentpen/pen-batch-engine/internal/queue"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"github.com/studentpen/pen-batch-engine/internal/saga"
	"github.com/studentpen/pen-batch-engine/internal/scheduler"
	"github.com/studentpen/pen-batch-engine/internal/service"
	"github.com/studentpen/pen-batch-engine/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	metrics := observability.NewMetrics()

	publisher := queue.NewBusPublisher(mq, cfg.ConfirmTimeout(), logger)
	publisher.SetMetrics(metrics)
	go func() {
		if err := publisher.Run(ctx); err != nil {
			logger.Error("publisher retry loop stopped", zap.Error(err))
		}
	}()

	consumer := queue.NewBusConsumer(mq, cfg.ListenerConcurrency, logger)

	batchRepo := repository.NewGormBatchRepo(db)
	studentRepo := repository.NewGormStudentRepo(db)
	sagaRepo := repository.NewGormSagaRepo(db)
	submissionRepo := repository.NewGormSubmissionRepo(db)

	schoolClient, err := client.NewSchoolClient(cfg.SchoolAPIURL, logger)
	if err != nil {
		logger.Fatal("school client initialization failed", zap.Error(err))
	}

	validator := batchfile.NewValidator(schoolClient, cfg.HoldThreshold, logger)

	duplicates, err := service.NewDuplicateFileDetector(batchRepo, cfg.DuplicateWindow(), logger)
	if err != nil {
		logger.Fatal("duplicate detector initialization failed", zap.Error(err))
	}

	repeats, err := service.NewRepeatRequestFilter(studentRepo, cfg.RepeatWindow(false), cfg.RepeatWindow(true), logger)
	if err != nil {
		logger.Fatal("repeat filter initialization failed", zap.Error(err))
	}

	ingest, err := service.NewIngestService(batchRepo, validator, duplicates, repeats, logger)
	if err != nil {
		logger.Fatal("ingest service initialization failed", zap.Error(err))
	}
	ingest.SetMetrics(metrics)

	penSaga, err := saga.NewPenRequestSaga(studentRepo, logger)
	if err != nil {
		logger.Fatal("pen request saga initialization failed", zap.Error(err))
	}

	orchestrator, err := saga.NewOrchestrator(penSaga.Definition(), sagaRepo, publisher, cfg.SagaMaxRetries, logger)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}
	orchestrator.SetMetrics(metrics)

	listener, err := saga.NewListener(consumer, orchestrator, logger)
	if err != nil {
		logger.Fatal("saga listener initialization failed", zap.Error(err))
	}
	go func() {
		if err := listener.Run(ctx); err != nil {
			logger.Error("saga listener stopped", zap.Error(err))
		}
	}()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.SagaStartPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	locks, err := infraredis.NewRedisClusterLock(rdb, cfg.LockMinHold(), cfg.LockMaxHold())
	if err != nil {
		logger.Fatal("cluster lock initialization failed", zap.Error(err))
	}

	dedup, err := infraredis.NewRedisDedupGuard(rdb, cfg.DedupTTL())
	if err != nil {
		logger.Fatal("dedup guard initialization failed", zap.Error(err))
	}

	extract, err := service.NewExtractService(submissionRepo, ingest, dedup, cfg.ExtractBatchLimit, logger)
	if err != nil {
		logger.Fatal("extract service initialization failed", zap.Error(err))
	}

	starter, err := service.NewSagaStarter(studentRepo, batchRepo, orchestrator, limiter, cfg.ProcessLoadedScanLimit, logger)
	if err != nil {
		logger.Fatal("saga starter initialization failed", zap.Error(err))
	}

	sweeper, err := service.NewStaleSagaSweeper(sagaRepo, orchestrator, cfg.SagaStaleAfter(), cfg.ProcessLoadedScanLimit, logger)
	if err != nil {
		logger.Fatal("stale saga sweeper initialization failed", zap.Error(err))
	}

	archiver, err := service.NewArchiver(batchRepo, cfg.ProcessLoadedScanLimit, logger)
	if err != nil {
		logger.Fatal("archiver initialization failed", zap.Error(err))
	}

	purger, err := service.NewPurger(sagaRepo, batchRepo, cfg.PurgeRetention(), logger)
	if err != nil {
		logger.Fatal("purger initialization failed", zap.Error(err))
	}

	sched, err := scheduler.New(locks, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	sched.SetMetrics(metrics)

	jobs := []struct {
		name string
		spec string
		job  scheduler.JobFunc
	}{
		{"extract", cfg.ExtractCron, extract.Run},
		{"process-loaded", cfg.ProcessLoadedCron, starter.Run},
		{"stale-saga", cfg.StaleSagaCron, sweeper.Run},
		{"archive", cfg.ArchiveCron, archiver.Run},
		{"purge", cfg.PurgeCron, func(ctx context.Context) (int, error) {
			purged, err := purger.Run(ctx)
			return int(purged), err
		}},
	}
	for _, j := range jobs {
		if err := sched.Register(j.name, j.spec, j.job); err != nil {
			logger.Fatal("job registration failed", zap.String("job", j.name), zap.Error(err))
		}
	}

	sched.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:               "pen-batch-engine",
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb, mq)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("pen-batch-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(addr); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()
	if err := app.Shutdown(); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
}
