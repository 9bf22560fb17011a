package rest

import (
	"github.com/creatoragency/billing-service/internal/api/rest/handlers"
	"github.com/creatoragency/billing-service/internal/middleware"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers собирает все обработчики, необходимые роутеру.
type Handlers struct {
	Plan         *handlers.PlanHandler
	Subscription *handlers.SubscriptionHandler
	Billing      *handlers.BillingHandler
	Webhook      *handlers.WebhookHandler
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(h Handlers, auth *middleware.JWTMiddleware, registry *prometheus.Registry, log *logger.Logger) *gin.Engine {
	r := gin.New()

	// Подключение middleware
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		// Каталог планов: чтение публичное, мутации только администраторам
		plans := v1.Group("/plans")
		{
			plans.GET("", h.Plan.GetPlans)
			plans.GET("/:id", h.Plan.GetPlan)
			plans.POST("", auth.RequireAdmin(), h.Plan.CreatePlan)
			plans.DELETE("/:id", auth.RequireAdmin(), h.Plan.DeletePlan)
		}

		// Подписки
		subscriptions := v1.Group("/subscriptions", auth.RequireAuth())
		{
			subscriptions.POST("", h.Subscription.Subscribe)
			subscriptions.GET("", h.Subscription.ListSubscriptions)
			subscriptions.GET("/my", h.Subscription.GetMySubscriptions)
			subscriptions.GET("/my/active", h.Subscription.GetMyActiveSubscription)
			subscriptions.GET("/:id", h.Subscription.GetSubscription)
			subscriptions.POST("/:id/cancel", h.Subscription.CancelSubscription)
		}

		// Оплата через Stripe Checkout
		billing := v1.Group("/billing", auth.RequireAuth())
		{
			billing.POST("/checkout-session", h.Billing.CreateCheckoutSession)
			billing.GET("/subscription-status/:id", h.Billing.GetSubscriptionStatus)
		}
	}

	// Вебхуки на корневом уровне роутера, без JWT: аутентификация по подписи Stripe
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", h.Webhook.HandleStripeWebhook)
	}

	return r
}
