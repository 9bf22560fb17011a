package metrics

import (
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncCheckoutSessionCreated()
	IncCheckoutSessionFailed()
	IncSubscriptionActivated()
	IncSubscriptionCanceled(source string)
	IncPaymentFailed()
	IncWebhookEvent(eventType, result string)
	ObservePlanPrice(price float64)
}

type billingMetrics struct {
	log              *logger.Logger
	checkoutSessions *prometheus.CounterVec
	subscriptions    *prometheus.CounterVec
	paymentFailures  prometheus.Counter
	webhookEvents    *prometheus.CounterVec
	planPrices       prometheus.Histogram
}

// NewBillingMetrics создает новые метрики биллинга
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	checkoutSessions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkout_sessions_total",
			Help: "The total number of checkout session attempts by result",
		},
		[]string{"result"},
	)

	subscriptions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscriptions_total",
			Help: "The total number of subscription lifecycle transitions",
		},
		[]string{"status", "source"},
	)

	paymentFailures := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_payment_failures_total",
			Help: "The total number of failed invoice payments reported by Stripe",
		},
	)

	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "The total number of processed webhook events by type and result",
		},
		[]string{"type", "result"},
	)

	planPrices := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billing_plan_price_dollars",
			Help:    "Distribution of subscribed plan prices",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6), // 1, 4, 16, 64, 256, 1024
		},
	)

	return &billingMetrics{
		log:              log,
		checkoutSessions: checkoutSessions,
		subscriptions:    subscriptions,
		paymentFailures:  paymentFailures,
		webhookEvents:    webhookEvents,
		planPrices:       planPrices,
	}
}

// IncCheckoutSessionCreated увеличивает счетчик созданных checkout сессий
func (m *billingMetrics) IncCheckoutSessionCreated() {
	m.checkoutSessions.WithLabelValues("created").Inc()
}

// IncCheckoutSessionFailed увеличивает счетчик неудачных checkout сессий
func (m *billingMetrics) IncCheckoutSessionFailed() {
	m.checkoutSessions.WithLabelValues("failed").Inc()
}

// IncSubscriptionActivated увеличивает счетчик активированных подписок
func (m *billingMetrics) IncSubscriptionActivated() {
	m.subscriptions.WithLabelValues("active", "webhook").Inc()
}

// IncSubscriptionCanceled увеличивает счетчик отмененных подписок.
// source: "api" для отмены пользователем, "webhook" для отмены со стороны Stripe.
func (m *billingMetrics) IncSubscriptionCanceled(source string) {
	m.subscriptions.WithLabelValues("canceled", source).Inc()
}

// IncPaymentFailed увеличивает счетчик неудачных платежей по счетам
func (m *billingMetrics) IncPaymentFailed() {
	m.paymentFailures.Inc()
}

// IncWebhookEvent увеличивает счетчик обработанных вебхуков
func (m *billingMetrics) IncWebhookEvent(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// ObservePlanPrice записывает цену плана при активации подписки
func (m *billingMetrics) ObservePlanPrice(price float64) {
	m.planPrices.Observe(price)
}
