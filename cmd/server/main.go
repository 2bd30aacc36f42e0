package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/movra/payout-service/internal/config"
	"github.com/movra/payout-service/internal/handler"
	"github.com/movra/payout-service/internal/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payout-service",
		Short:         "Payout administration API and processing worker",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, gRPC health endpoint and processing workers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), runServe)
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run Kafka processing workers only",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), runWorker)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply Postgres schema migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "process <payout-id>",
			Short: "Process one payout synchronously and print the result code",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					result, err := a.executor.Run(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), result)
					return nil
				})
			},
		},
	)
	return root
}

func withApp(ctx context.Context, run func(context.Context, *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return run(ctx, a)
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %s", config.StorePostgres, cfg.StoreDriver)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := repository.NewPostgresPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := repository.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	logger.Info("Migrations applied", zap.Strings("files", applied))
	return nil
}

func runServe(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	// Setup Gin router for HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	httpHandler := handler.NewHTTPHandler(a.payoutService, a.repo, logger)
	httpHandler.SetupRoutes(router)

	if cfg.MetricsEnabled {
		router.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Create gRPC server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	stopWorkers := a.startWorkers(workerCtx)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Start gRPC server
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen for gRPC", zap.Error(err))
		}
		logger.Info("Starting gRPC server", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("Payout Service started",
		zap.String("httpPort", cfg.HTTPPort),
		zap.String("grpcPort", cfg.GRPCPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("queue", cfg.QueueDriver),
	)

	waitForSignal(ctx)
	logger.Info("Shutting down...")

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	// running tasks finish their gateway wait before the store closes
	stopWorkers(cancelWorkers)

	logger.Info("Payout Service stopped")
	return nil
}

func runWorker(ctx context.Context, a *app) error {
	if a.cfg.QueueDriver != config.QueueKafka {
		return fmt.Errorf("worker needs QUEUE_DRIVER=%s; the local queue runs inside serve", config.QueueKafka)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	stopWorkers := a.startWorkers(workerCtx)

	a.logger.Info("Payout workers started", zap.Int("concurrency", a.cfg.WorkerConcurrency))
	waitForSignal(ctx)
	a.logger.Info("Shutting down workers...")

	stopWorkers(cancelWorkers)
	return nil
}

// startWorkers starts the configured task transport and returns its stop
// function. For Kafka, stop cancels the consumers; for the local queue it
// drains buffered jobs first.
func (a *app) startWorkers(ctx context.Context) func(cancel context.CancelFunc) {
	if a.localQueue != nil {
		a.localQueue.Start(ctx)
		return func(cancel context.CancelFunc) {
			a.localQueue.Stop()
			cancel()
		}
	}

	consumers := a.newConsumers()
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				a.logger.Error("Kafka consumer error", zap.Error(err))
			}
		}()
	}
	return func(cancel context.CancelFunc) {
		cancel()
		wg.Wait()
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				a.logger.Warn("Kafka consumer close error", zap.Error(err))
			}
		}
	}
}

func waitForSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
