package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biz_manager/internal/config"
	"biz_manager/internal/db"
	"biz_manager/internal/observability"
	"biz_manager/internal/queue"
	"biz_manager/internal/router"
	"biz_manager/internal/service"
	"biz_manager/internal/worker"
	rediskey "biz_manager/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		config.LogError(logger, "main", "main", "tracing disabled", cfg.OtelEndpoint, err)
	}

	// 1. 数据库，自动建表
	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.WithField("driver", cfg.DBDriver).Fatal(err.Error())
	}

	// 2. 可选 Redis：库存缓存、商品锁、限流、对账状态、事件流
	var (
		rdb    *rd.Client
		opts   []service.Option
		locker worker.SingletonLocker
	)
	if cfg.RedisEnabled() {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// 启动时连不上不致命，锁/缓存调用失败时各自降级
			config.LogError(logger, "main", "main", "redis ping", cfg.RedisAddr, err)
		}
		cache := rediskey.NewStockCache(rdb, cfg.StockCacheTTL)
		productLocker := rediskey.NewProductLocker(rdb, cfg.ProductLockTTL, cfg.ProductLockWait)
		locker = productLocker
		opts = append(opts, service.WithStockCache(cache), service.WithLocker(productLocker))
		if cfg.EventsEnabled {
			opts = append(opts, service.WithNotifier(queue.NewStreamNotifier(rdb, cfg.OrderEventStream)))
		}
	}
	svc := service.New(gdb, logger, opts...)
	reconciler := worker.NewReconciler(svc, rdb, locker, logger)

	// 3. 后台任务：Stream -> Kafka -> notifications，定时对账
	done := make(chan struct{})
	workers := 0
	if cfg.EventsEnabled {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, gdb, logger)
		defer consumer.Close()
		relay := queue.NewRelay(rdb, producer, logger, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)

		workers += 2
		go func() { relay.Run(ctx); done <- struct{}{} }()
		go func() { consumer.Run(ctx); done <- struct{}{} }()
	}
	if cfg.ReconcileInterval > 0 {
		workers++
		go func() { reconciler.Run(ctx, cfg.ReconcileInterval); done <- struct{}{} }()
	}

	// 4. HTTP
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.New(router.Deps{
			Svc:        svc,
			Reconciler: reconciler,
			RDB:        rdb,
			Logger:     logger,
			Cfg:        cfg,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   cfg.HTTPAddr,
			"driver": cfg.DBDriver,
			"redis":  cfg.RedisEnabled(),
			"events": cfg.EventsEnabled,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "http shutdown", nil, err)
	}
	for i := 0; i < workers; i++ {
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "tracing shutdown", nil, err)
	}
}
