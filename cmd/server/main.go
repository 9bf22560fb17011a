package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creatoragency/billing-service/config"
	"github.com/creatoragency/billing-service/internal/api/rest"
	"github.com/creatoragency/billing-service/internal/api/rest/handlers"
	"github.com/creatoragency/billing-service/internal/email"
	"github.com/creatoragency/billing-service/internal/kafka"
	"github.com/creatoragency/billing-service/internal/metrics"
	"github.com/creatoragency/billing-service/internal/middleware"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/creatoragency/billing-service/internal/repository/postgres"
	"github.com/creatoragency/billing-service/internal/service"
	"github.com/creatoragency/billing-service/internal/stripe"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

var log *logger.Logger

func init() {
	// Загружаем переменные окружения
	if err := godotenv.Load(); err != nil {
		// Пропускаем ошибку, если .env файл не найден
	}

	// Уровень INFO до загрузки конфигурации
	log = logger.New(logger.INFO)
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log = logger.New(logger.ParseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация Prometheus
	promRegistry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(promRegistry, log)
	systemMetrics := metrics.NewSystemMetrics(promRegistry, log)

	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	// Подключение к базе данных
	dbPool, err := postgres.NewConnection(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	// Репозитории
	var planRepo repository.PlanRepository = repository.NewPostgresPlanRepository(dbPool, log)
	subscriptionRepo := repository.NewPostgresSubscriptionRepository(dbPool, log)
	userRepo := repository.NewPostgresUserRepository(dbPool, log)
	webhookRepo := repository.NewPostgresWebhookEventRepository(dbPool, log)

	// Redis кэш каталога планов (опционально)
	if cfg.Redis.Enabled {
		cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
		planRepo = repository.NewCachedPlanRepository(planRepo, cache, log)
	}

	// Kafka продюсер (опционально)
	var producer kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Fatal("Failed to create Kafka producer: %v", err)
		}
		defer producer.Close()
	}

	// Email уведомления
	var notifier email.Notifier = email.NopNotifier{}
	if cfg.Email.SendGridAPIKey != "" {
		notifier = email.NewSendGridNotifier(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName, log)
	}

	// Stripe клиент
	stripeClient := stripe.NewStripeClient(cfg.Stripe.APIKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, log)

	// Сервисы
	planSvc := service.NewPlanService(planRepo, log)
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, planRepo, userRepo, stripeClient, notifier, producer, billingMetrics, log)
	checkoutSvc := service.NewCheckoutService(planRepo, userRepo, subscriptionRepo, stripeClient, billingMetrics, log)
	webhookSvc := service.NewWebhookService(subscriptionRepo, planRepo, userRepo, webhookRepo, notifier, producer, billingMetrics, log)

	// Middleware и обработчики
	auth := middleware.NewJWTMiddleware(log, &middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)})
	restHandlers := rest.Handlers{
		Plan:         handlers.NewPlanHandler(planSvc, log),
		Subscription: handlers.NewSubscriptionHandler(subscriptionSvc, log),
		Billing:      handlers.NewBillingHandler(checkoutSvc, subscriptionSvc, log),
		Webhook:      handlers.NewWebhookHandler(webhookSvc, cfg.Stripe.WebhookSecret, log),
	}

	// Установка режима Gin
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Настройка маршрутизатора и запуск HTTP сервера
	router := rest.SetupRouter(restHandlers, auth, promRegistry, log)
	server := rest.NewServer(router, cfg, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
