package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apihandler "github.com/xela07ax/auditchain-platform/internal/api/handler"
	apiserver "github.com/xela07ax/auditchain-platform/internal/api/server"
	apiservice "github.com/xela07ax/auditchain-platform/internal/api/service"
	"github.com/xela07ax/auditchain-platform/internal/infra"
	"github.com/xela07ax/auditchain-platform/internal/ingest"
	"github.com/xela07ax/auditchain-platform/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла: SIGTERM останавливает вычитку очереди,
	// начатый append доезжает до конца
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	initCtx, initCancel := context.WithTimeout(appCtx, 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer pool.Close()

	auditRepo := postgres.NewAuditRepo(pool)
	if err := auditRepo.EnsureSchema(initCtx); err != nil {
		logger.Fatal("failed to ensure audit schema", zap.Error(err))
	}
	initCancel()

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 4. Write side: единственный писатель цепочки
	appender := ingest.NewAppender(auditRepo)
	consumer := ingest.NewConsumer(rdb, appender, cfg.Ingest, logger, metrics)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(appCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingestion loop exited", zap.Error(err))
		}
	}()

	// 5. Read side: query + verify, только чтение
	auditService := apiservice.NewAuditService(auditRepo, logger, metrics)
	auditHandler := apihandler.NewAuditHandler(auditService, logger)
	api := apiserver.NewAPIServer(logger, auditHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("audit API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("auditd stopping...")

	// Сначала глушим вычитку очереди и ждем завершения потребителя:
	// нельзя подтвердить сообщение, чей append не закоммитился
	cancel()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		logger.Warn("consumer did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("auditd exited properly")
}
