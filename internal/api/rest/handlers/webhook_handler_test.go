package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripesdk "github.com/stripe/stripe-go/v78"
)

const testWebhookSecret = "whsec_test_secret"

type capturingWebhookService struct {
	events []stripesdk.Event
	err    error
}

func (s *capturingWebhookService) HandleEvent(ctx context.Context, event stripesdk.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func newWebhookTestRouter(svc *capturingWebhookService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(svc, testWebhookSecret, logger.New(logger.FATAL))
	r := gin.New()
	r.POST("/webhooks/stripe", handler.HandleStripeWebhook)
	return r
}

// eventPayload собирает тело события с api_version, совпадающей с версией
// SDK: ConstructEvent отвергает события других версий API.
func eventPayload(id, eventType string) string {
	return fmt.Sprintf(`{"id":%q,"api_version":%q,"type":%q,"data":{"object":{}}}`,
		id, stripesdk.APIVersion, eventType)
}

// stripeSignature формирует заголовок Stripe-Signature так же,
// как это делает Stripe: HMAC-SHA256 от "<timestamp>.<payload>".
func stripeSignature(payload, secret string, ts time.Time) string {
	signedPayload := fmt.Sprintf("%d.%s", ts.Unix(), payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(r *gin.Engine, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStripeWebhookValidSignature(t *testing.T) {
	svc := &capturingWebhookService{}
	r := newWebhookTestRouter(svc)

	payload := eventPayload("evt_1", "invoice.payment_failed")
	w := postWebhook(r, payload, stripeSignature(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.events, 1)
	assert.Equal(t, "evt_1", svc.events[0].ID)
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	svc := &capturingWebhookService{}
	r := newWebhookTestRouter(svc)

	payload := eventPayload("evt_1", "invoice.payment_failed")
	w := postWebhook(r, payload, stripeSignature(payload, "whsec_wrong_secret", time.Now()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.events)
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	svc := &capturingWebhookService{}
	r := newWebhookTestRouter(svc)

	w := postWebhook(r, `{"id":"evt_1"}`, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.events)
}

func TestStripeWebhookStaleTimestampRejected(t *testing.T) {
	svc := &capturingWebhookService{}
	r := newWebhookTestRouter(svc)

	payload := eventPayload("evt_1", "invoice.payment_failed")
	stale := time.Now().Add(-time.Hour)
	w := postWebhook(r, payload, stripeSignature(payload, testWebhookSecret, stale))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.events)
}

// Ошибка обработки возвращает 500, чтобы Stripe повторил доставку события.
func TestStripeWebhookProcessingErrorReturns500(t *testing.T) {
	svc := &capturingWebhookService{err: errors.New("storage unavailable")}
	r := newWebhookTestRouter(svc)

	payload := eventPayload("evt_1", "invoice.payment_failed")
	w := postWebhook(r, payload, stripeSignature(payload, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
