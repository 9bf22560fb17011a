package handlers

import (
	"net/http"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/middleware"
	"github.com/creatoragency/billing-service/internal/service"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/creatoragency/billing-service/pkg/req"
	"github.com/gin-gonic/gin"
)

// BillingHandler обработчик для операций оплаты через Stripe
type BillingHandler struct {
	checkoutSvc     service.CheckoutService
	subscriptionSvc service.SubscriptionService
	log             *logger.Logger
}

// NewBillingHandler создает новый обработчик биллинга
func NewBillingHandler(checkoutSvc service.CheckoutService, subscriptionSvc service.SubscriptionService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		checkoutSvc:     checkoutSvc,
		subscriptionSvc: subscriptionSvc,
		log:             log,
	}
}

// CreateCheckoutSession создает Stripe Checkout сессию для оформления подписки
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	userID, _, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	body, err := req.HandleBody[domain.CheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	result, err := h.checkoutSvc.StartCheckout(c.Request.Context(), userID, *body)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to create checkout session")
		return
	}

	h.log.Info("Created checkout session: %s", result.SessionID)
	c.JSON(http.StatusOK, result)
}

// GetSubscriptionStatus возвращает статус подписки, включая актуальный статус в Stripe
func (h *BillingHandler) GetSubscriptionStatus(c *gin.Context) {
	userID, role, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id := c.Param("id")
	sub, liveStatus, err := h.subscriptionSvc.GetLiveStatus(c.Request.Context(), id, userID, role)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to get subscription status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription_id": sub.ID,
		"status":          sub.Status,
		"stripe_status":   liveStatus,
		"started_at":      sub.StartedAt,
		"canceled_at":     sub.CanceledAt,
	})
}
