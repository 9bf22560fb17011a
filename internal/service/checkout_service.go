package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/metrics"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/creatoragency/billing-service/internal/stripe"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// CheckoutResult - данные созданной сессии оплаты для ответа клиенту.
type CheckoutResult struct {
	SessionID   string  `json:"session_id"`
	CheckoutURL string  `json:"checkout_url"`
	PlanName    string  `json:"plan_name"`
	PlanPrice   float64 `json:"plan_price"`
}

// CheckoutService инициирует оплату подписки через Stripe Checkout.
// Локальная запись подписки НЕ создается здесь: она появится только после
// подтверждения оплаты вебхуком checkout.session.completed.
type CheckoutService interface {
	StartCheckout(ctx context.Context, userID string, req domain.CheckoutRequest) (*CheckoutResult, error)
}

type checkoutService struct {
	planRepo         repository.PlanRepository
	userRepo         repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	stripeClient     stripe.Client
	billingMetrics   metrics.BillingMetrics
	log              *logger.Logger
}

// NewCheckoutService создает новый сервис оплаты
func NewCheckoutService(
	planRepo repository.PlanRepository,
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	stripeClient stripe.Client,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) CheckoutService {
	return &checkoutService{
		planRepo:         planRepo,
		userRepo:         userRepo,
		subscriptionRepo: subscriptionRepo,
		stripeClient:     stripeClient,
		billingMetrics:   billingMetrics,
		log:              log,
	}
}

// StartCheckout проверяет предусловия и создает Stripe Checkout сессию.
// Порядок проверок: план, пользователь, отсутствие активной подписки.
func (s *checkoutService) StartCheckout(ctx context.Context, userID string, req domain.CheckoutRequest) (*CheckoutResult, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		s.log.Warn("Invalid UUID format for user ID: %s", userID)
		return nil, domain.ErrInvalidInput
	}

	pid, err := uuid.Parse(req.PlanID)
	if err != nil {
		s.log.Warn("Invalid UUID format for plan ID: %s", req.PlanID)
		return nil, domain.ErrInvalidInput
	}

	plan, err := s.planRepo.GetByID(ctx, pid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewNotFoundError("plan", req.PlanID)
		}
		s.log.Error("Error fetching plan %s: %v", req.PlanID, err)
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewNotFoundError("user", userID)
		}
		s.log.Error("Error fetching user %s: %v", userID, err)
		return nil, err
	}

	_, err = s.subscriptionRepo.GetActiveByUserID(ctx, uid)
	if err == nil {
		s.log.Warn("User %s already has an active subscription, refusing checkout", userID)
		return nil, domain.ErrActiveSubscriptionExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Error("Error checking active subscription for user %s: %v", userID, err)
		return nil, err
	}

	session, err := s.createSessionWithRetry(ctx, user, plan, req.SuccessURL, req.CancelURL)
	if err != nil {
		if s.billingMetrics != nil {
			s.billingMetrics.IncCheckoutSessionFailed()
		}
		return nil, err
	}

	if s.billingMetrics != nil {
		s.billingMetrics.IncCheckoutSessionCreated()
	}
	s.log.Infow("Checkout session started",
		"sessionID", session.SessionID,
		"userID", userID,
		"planID", req.PlanID,
	)

	return &CheckoutResult{
		SessionID:   session.SessionID,
		CheckoutURL: session.CheckoutURL,
		PlanName:    plan.Name,
		PlanPrice:   plan.Price,
	}, nil
}

// createSessionWithRetry повторяет создание сессии при временных сбоях Stripe.
// Невосстановимые ошибки (невалидные параметры и т.п.) возвращаются сразу.
func (s *checkoutService) createSessionWithRetry(ctx context.Context, user domain.User, plan domain.Plan, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	var session *stripe.CheckoutSession
	operation := func() error {
		var err error
		session, err = s.stripeClient.CreateCheckoutSession(ctx, user, plan, successURL, cancelURL)
		if err != nil {
			if stripe.IsRetryable(err) {
				s.log.Warnw("Retryable Stripe error during checkout session creation", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		s.log.Error("Failed to create checkout session after retries: %v", err)
		return nil, err
	}
	return session, nil
}
