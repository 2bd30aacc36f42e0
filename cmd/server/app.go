package main

import (
	"context"
	"fmt"

	"github.com/movra/payout-service/internal/config"
	"github.com/movra/payout-service/internal/kafka"
	"github.com/movra/payout-service/internal/logging"
	"github.com/movra/payout-service/internal/metrics"
	"github.com/movra/payout-service/internal/provider"
	"github.com/movra/payout-service/internal/repository"
	"github.com/movra/payout-service/internal/service"
	"github.com/movra/payout-service/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	repo          repository.PayoutRepository
	payoutService *service.PayoutService
	executor      *worker.Executor

	localQueue *worker.LocalQueue
	producer   *kafka.Producer

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	kafka.InstallPropagator()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics("payout_service", a.registry)

	repo, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.repo = repo

	gateway := provider.NewSimulatedGateway(cfg.Processing.GatewayDelay)
	processor := service.NewProcessor(repo, gateway, cfg.Processing, logger, appMetrics)
	a.executor = worker.NewExecutor(processor, worker.PolicyFromConfig(cfg.Processing), logger, appMetrics)

	var enqueuer service.Enqueuer
	switch cfg.QueueDriver {
	case config.QueueLocal:
		a.localQueue = worker.NewLocalQueue(a.executor, cfg.LocalQueueSize, cfg.WorkerConcurrency, logger)
		enqueuer = a.localQueue
	default:
		a.producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicProcess)
		a.closers = append(a.closers, func() {
			if err := a.producer.Close(); err != nil {
				logger.Warn("Kafka producer close error", zap.Error(err))
			}
		})
		enqueuer = a.producer
	}

	a.payoutService = service.NewPayoutService(repo, enqueuer, logger, appMetrics)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (repository.PayoutRepository, error) {
	switch a.cfg.StoreDriver {
	case config.StoreMemory:
		a.logger.Warn("Using in-memory payout store, data is lost on restart")
		return repository.NewMemoryRepository(), nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.logger.Info("Connected to Redis", zap.String("addr", a.cfg.RedisAddr))
		return repository.NewRedisRepository(client), nil

	default:
		pool, err := repository.NewPostgresPool(ctx, a.cfg.DatabaseURL, poolConfig(a.cfg))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.logger.Info("Connected to Postgres")
		return repository.NewPostgresRepository(pool), nil
	}
}

func (a *app) newConsumers() []*kafka.Consumer {
	consumers := make([]*kafka.Consumer, a.cfg.WorkerConcurrency)
	for i := range consumers {
		consumers[i] = kafka.NewConsumer(
			a.cfg.KafkaBrokers,
			a.cfg.KafkaTopicProcess,
			a.cfg.KafkaConsumerGroup,
			a.executor,
			a.logger.With(zap.Int("consumer", i)),
		)
	}
	return consumers
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New("payout-service", cfg.LogLevel, cfg.IsProduction())
}

func poolConfig(cfg *config.Config) repository.PoolConfig {
	return repository.PoolConfig{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBConnMaxLifetime,
		MaxConnIdleTime: cfg.DBConnMaxIdleTime,
	}
}
