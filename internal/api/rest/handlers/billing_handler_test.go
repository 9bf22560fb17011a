package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/middleware"
	"github.com/creatoragency/billing-service/internal/service"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCheckoutService struct {
	result     *service.CheckoutResult
	err        error
	gotUserID  string
	gotRequest domain.CheckoutRequest
}

func (s *stubCheckoutService) StartCheckout(ctx context.Context, userID string, req domain.CheckoutRequest) (*service.CheckoutResult, error) {
	s.gotUserID = userID
	s.gotRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newBillingTestRouter(svc *stubCheckoutService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewBillingHandler(svc, nil, logger.New(logger.FATAL))
	r := gin.New()
	r.POST("/checkout-session", func(c *gin.Context) {
		c.Set(string(middleware.ContextUserIDKey), userID)
		c.Set(string(middleware.ContextUserRoleKey), string(domain.UserRoleCreator))
	}, handler.CreateCheckoutSession)
	return r
}

func postCheckout(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCheckoutSession(t *testing.T) {
	svc := &stubCheckoutService{result: &service.CheckoutResult{
		SessionID:   "cs_test_123",
		CheckoutURL: "https://checkout.stripe.test/cs_test_123",
		PlanName:    "Pro",
		PlanPrice:   29.99,
	}}
	userID := uuid.NewString()
	planID := uuid.NewString()
	r := newBillingTestRouter(svc, userID)

	w := postCheckout(r, `{"plan_id":"`+planID+`"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, svc.gotUserID)
	assert.Equal(t, planID, svc.gotRequest.PlanID)
}

// URL-ы возврата из тела запроса доходят до сервиса оплаты.
func TestCreateCheckoutSessionPassesRedirectURLs(t *testing.T) {
	svc := &stubCheckoutService{result: &service.CheckoutResult{SessionID: "cs_test_123"}}
	r := newBillingTestRouter(svc, uuid.NewString())

	body := `{"plan_id":"` + uuid.NewString() + `","success_url":"https://app.example.com/done","cancel_url":"https://app.example.com/abort"}`
	w := postCheckout(r, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com/done", svc.gotRequest.SuccessURL)
	assert.Equal(t, "https://app.example.com/abort", svc.gotRequest.CancelURL)
}

// Ошибка Stripe возвращает 400 с текстом ошибки провайдера.
func TestCreateCheckoutSessionStripeErrorReturns400(t *testing.T) {
	svc := &stubCheckoutService{
		err: domain.NewStripeError("CreateCheckoutSession", "Your card was declined.", nil),
	}
	r := newBillingTestRouter(svc, uuid.NewString())

	w := postCheckout(r, `{"plan_id":"`+uuid.NewString()+`"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Stripe error: Your card was declined.", resp["error"])
}

func TestCreateCheckoutSessionInvalidBodyRejected(t *testing.T) {
	svc := &stubCheckoutService{result: &service.CheckoutResult{SessionID: "cs_test_123"}}
	r := newBillingTestRouter(svc, uuid.NewString())

	w := postCheckout(r, `{"plan_id":"not-a-uuid"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, svc.gotRequest.PlanID)
}
