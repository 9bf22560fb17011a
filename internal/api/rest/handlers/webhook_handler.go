package handlers

import (
	"io"
	"net/http"

	"github.com/creatoragency/billing-service/internal/service"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Лимит размера тела вебхука, рекомендованный Stripe
const maxWebhookBodyBytes = 65536

// WebhookHandler обработчик для вебхуков Stripe
type WebhookHandler struct {
	webhookSvc    service.WebhookService
	webhookSecret string
	log           *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(webhookSvc service.WebhookService, webhookSecret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc:    webhookSvc,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// HandleStripeWebhook проверяет подпись и передает событие в сервис сверки.
// Ошибка обработки возвращает 500, чтобы Stripe повторил доставку события.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Error("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, signature, h.webhookSecret)
	if err != nil {
		h.log.Warn("Webhook signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		return
	}

	if err := h.webhookSvc.HandleEvent(c.Request.Context(), event); err != nil {
		h.log.Error("Failed to process webhook event %s: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
