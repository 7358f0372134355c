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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/auditchain-platform/internal/console/handler"
	"github.com/xela07ax/auditchain-platform/internal/console/server"
	"github.com/xela07ax/auditchain-platform/internal/console/service"
	"github.com/xela07ax/auditchain-platform/internal/infra"
	"github.com/xela07ax/auditchain-platform/internal/infra/auth"
	"github.com/xela07ax/auditchain-platform/internal/notify"
	"github.com/xela07ax/auditchain-platform/internal/repository/postgres"
	"github.com/xela07ax/auditchain-platform/internal/stream"
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

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инициализация ресурсов
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

	userRepo := postgres.NewUserRepo(pool)
	consentRepo := postgres.NewConsentRepo(pool)
	notifRepo := postgres.NewNotificationRepo(pool)
	for _, ensure := range []func(context.Context) error{
		userRepo.EnsureSchema, consentRepo.EnsureSchema, notifRepo.EnsureSchema,
	} {
		if err := ensure(initCtx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
	}
	initCancel()

	// 3. Ключи RS256: приватный — подпись, публичный — проверка
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to load private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to load public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)

	// 4. Слои (Dependency Injection)
	// Все события аудита уходят в очередь — прямой записи в цепочку нет
	publisher := stream.NewPublisher(rdb, logger)

	authService := service.NewAuthService(userRepo, publisher, privateKey, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost, logger)
	consentService := service.NewConsentService(consentRepo, publisher, logger)
	prefsService := service.NewPreferencesService(notifRepo, publisher, logger)

	consoleSrv := server.NewConsoleServer(
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewConsentHandler(consentService),
		handler.NewPreferencesHandler(prefsService),
	)

	// 5. Доставка уведомлений (downstream, вне цепочки)
	dispatcher := notify.NewDispatcher(
		rdb, notifRepo,
		notify.NewEmailSender(cfg.Notify),
		notify.NewSMSSender(cfg.Notify),
		notify.NewPushSender(cfg.Notify),
		cfg.Notify, logger,
	)
	go func() {
		if err := dispatcher.Run(appCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notification dispatcher exited", zap.Error(err))
		}
	}()
	go dispatcher.RetryLoop(appCtx)

	// 6. Запуск сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("console stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}
