package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключи метаданных для связи Stripe Checkout Session с нашими сущностями
	metadataUserIDKey = "user_id"
	metadataPlanIDKey = "plan_id"

	// Валюта всех тарифов
	currencyUSD = "usd"
)

// CheckoutSession - результат создания сессии оплаты в Stripe.
type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
}

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// CreateCheckoutSession создает hosted checkout сессию для оформления подписки на план.
	// Пустые successURL/cancelURL заменяются URL-ами из конфигурации клиента.
	CreateCheckoutSession(ctx context.Context, user domain.User, plan domain.Plan, successURL, cancelURL string) (*CheckoutSession, error)

	// CancelSubscription отменяет подписку в Stripe немедленно.
	CancelSubscription(ctx context.Context, stripeSubscriptionID string) error

	// GetSubscription возвращает текущее состояние подписки в Stripe.
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error)
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client     *client.API
	successURL string
	cancelURL  string
	log        *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey, successURL, cancelURL string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeClient{
		client:     sc,
		successURL: successURL,
		cancelURL:  cancelURL,
		log:        log,
	}
}

// CreateCheckoutSession создает Stripe Checkout сессию в режиме подписки.
// Цена передается inline (price_data) с месячным интервалом, метаданные
// содержат идентификаторы пользователя и плана для последующей сверки в вебхуке.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, user domain.User, plan domain.Plan, successURL, cancelURL string) (*CheckoutSession, error) {
	if successURL == "" {
		successURL = sc.successURL
	}
	if cancelURL == "" {
		cancelURL = sc.cancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(user.Email),
		SuccessURL:    stripe.String(successURL),
		CancelURL:     stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currencyUSD),
					UnitAmount: stripe.Int64(plan.PriceCents()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(plan.Name),
					},
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			metadataUserIDKey: user.ID.String(),
			metadataPlanIDKey: plan.ID.String(),
		},
	}
	params.Context = ctx

	session, err := sc.client.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCheckoutSession", err)
		return nil, domain.NewStripeError("CreateCheckoutSession", providerMessage(err, "failed to create checkout session"), err)
	}

	sc.log.Infow("Stripe checkout session created",
		"sessionID", session.ID,
		"userID", user.ID,
		"planID", plan.ID,
	)

	return &CheckoutSession{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// CancelSubscription отменяет подписку в Stripe немедленно.
// Уже отмененная или отсутствующая подписка не считается ошибкой.
func (sc *stripeClient) CancelSubscription(ctx context.Context, stripeSubscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	_, err := sc.client.Subscriptions.Cancel(stripeSubscriptionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			sc.log.Warnw("Attempted to cancel already canceled/missing Stripe subscription", "stripeSubscriptionID", stripeSubscriptionID)
			return nil
		}
		logStripeError(sc.log, "CancelSubscription", err)
		return domain.NewStripeError("CancelSubscription", providerMessage(err, "failed to cancel subscription"), err)
	}

	sc.log.Infow("Stripe subscription canceled", "stripeSubscriptionID", stripeSubscriptionID)
	return nil
}

// GetSubscription возвращает текущее состояние подписки в Stripe.
func (sc *stripeClient) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	subscription, err := sc.client.Subscriptions.Get(stripeSubscriptionID, params)
	if err != nil {
		logStripeError(sc.log, "GetSubscription", err)
		return nil, domain.NewStripeError("GetSubscription", providerMessage(err, fmt.Sprintf("failed to get subscription %s", stripeSubscriptionID)), err)
	}

	return subscription, nil
}

// providerMessage возвращает человекочитаемый текст ошибки Stripe.
// Msg не содержит ключей и request ID, поэтому его можно показывать клиенту.
func providerMessage(err error, fallback string) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return fallback
}

// IsRetryable сообщает, имеет ли смысл повторять операцию после этой ошибки Stripe.
func IsRetryable(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeAPI:
			return true
		}
		switch stripeErr.Code {
		case stripe.ErrorCodeLockTimeout, stripe.ErrorCodeRateLimit:
			return true
		}
		return stripeErr.HTTPStatusCode >= 500
	}
	// Сетевые ошибки без структурированного ответа Stripe считаем временными
	return err != nil && !errors.Is(err, context.Canceled)
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
