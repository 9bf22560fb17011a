package handlers

import (
	"net/http"
	"strconv"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/middleware"
	"github.com/creatoragency/billing-service/internal/service"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/creatoragency/billing-service/pkg/req"
	"github.com/gin-gonic/gin"
)

// SubscriptionHandler обработчик для подписок
type SubscriptionHandler struct {
	subscriptionSvc service.SubscriptionService
	log             *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(subscriptionSvc service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionSvc: subscriptionSvc,
		log:             log,
	}
}

// Subscribe создает активную подписку для текущего пользователя
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	userID, _, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	body, err := req.HandleBody[domain.SubscribeRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	sub, err := h.subscriptionSvc.Subscribe(c.Request.Context(), userID, *body)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to create subscription")
		return
	}

	h.log.Info("Created subscription with ID: %s", sub.ID)
	c.JSON(http.StatusCreated, sub)
}

// GetMySubscriptions возвращает все подписки текущего пользователя
func (h *SubscriptionHandler) GetMySubscriptions(c *gin.Context) {
	userID, _, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	subs, err := h.subscriptionSvc.GetUserSubscriptions(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to get subscriptions")
		return
	}
	c.JSON(http.StatusOK, subs)
}

// GetMyActiveSubscription возвращает активную подписку текущего пользователя
func (h *SubscriptionHandler) GetMyActiveSubscription(c *gin.Context) {
	userID, _, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	sub, err := h.subscriptionSvc.GetActive(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to get active subscription")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetSubscription возвращает подписку по ID с проверкой владения
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID, role, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id := c.Param("id")
	sub, err := h.subscriptionSvc.GetByID(c.Request.Context(), id, userID, role)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to get subscription")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListSubscriptions возвращает страницу всех подписок. Только для администраторов.
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	_, role, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	result, err := h.subscriptionSvc.List(c.Request.Context(), role, page, perPage)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to list subscriptions")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelSubscription отменяет подписку
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	userID, role, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id := c.Param("id")
	sub, err := h.subscriptionSvc.Cancel(c.Request.Context(), id, userID, role)
	if err != nil {
		respondServiceError(c, h.log, err, "Failed to cancel subscription")
		return
	}

	h.log.Info("Canceled subscription with ID: %s", id)
	c.JSON(http.StatusOK, sub)
}
