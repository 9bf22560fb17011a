package handlers

import (
	"errors"
	"net/http"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

// respondServiceError отображает доменные ошибки в HTTP статусы.
// Внутренние ошибки не раскрываются клиенту.
func respondServiceError(c *gin.Context, log *logger.Logger, err error, fallbackMessage string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, domain.ErrActiveSubscriptionExists):
		c.JSON(http.StatusConflict, gin.H{"error": "User already has an active subscription"})
	case errors.Is(err, domain.ErrSubscriptionCanceled):
		c.JSON(http.StatusConflict, gin.H{"error": "Subscription is already canceled"})
	case errors.Is(err, domain.ErrPlanInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "Plan is referenced by existing subscriptions"})
	case errors.Is(err, domain.ErrStripeClient):
		// Текст ошибки Stripe возвращается клиенту, детали запроса остаются в логах
		log.Error("Stripe operation failed: %v", err)
		message := "payment provider rejected the request"
		var stripeErr *domain.StripeError
		if errors.As(err, &stripeErr) && stripeErr.Message != "" {
			message = stripeErr.Message
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stripe error: " + message})
	default:
		log.Error("%s: %v", fallbackMessage, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallbackMessage})
	}
}
