package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/email"
	"github.com/creatoragency/billing-service/internal/kafka"
	"github.com/creatoragency/billing-service/internal/metrics"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v78"
)

// Известные типы событий Stripe, которые обрабатывает сервис
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaymentFail  = "invoice.payment_failed"
)

// stripeStatusMap отображает статусы подписок Stripe в локальные статусы.
// Неизвестный статус оставляет локальную запись без изменений.
var stripeStatusMap = map[stripesdk.SubscriptionStatus]domain.SubscriptionStatus{
	stripesdk.SubscriptionStatusActive:   domain.SubscriptionStatusActive,
	stripesdk.SubscriptionStatusCanceled: domain.SubscriptionStatusCanceled,
	stripesdk.SubscriptionStatusUnpaid:   domain.SubscriptionStatusCanceled,
	stripesdk.SubscriptionStatusPastDue:  domain.SubscriptionStatusCanceled,
}

// WebhookService сверяет локальные записи подписок с событиями Stripe.
// Stripe может доставить событие несколько раз: успешно обработанные события
// журналируются и повторы пропускаются. Обработка, завершившаяся ошибкой,
// фиксируется как failed и ошибка возвращается наружу, чтобы Stripe повторил доставку.
type WebhookService interface {
	HandleEvent(ctx context.Context, event stripesdk.Event) error
}

type webhookService struct {
	subscriptionRepo repository.SubscriptionRepository
	planRepo         repository.PlanRepository
	userRepo         repository.UserRepository
	webhookRepo      repository.WebhookEventRepository
	notifier         email.Notifier
	producer         kafka.Producer
	billingMetrics   metrics.BillingMetrics
	log              *logger.Logger
}

// NewWebhookService создает новый сервис обработки вебхуков
func NewWebhookService(
	subscriptionRepo repository.SubscriptionRepository,
	planRepo repository.PlanRepository,
	userRepo repository.UserRepository,
	webhookRepo repository.WebhookEventRepository,
	notifier email.Notifier,
	producer kafka.Producer,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) WebhookService {
	return &webhookService{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		userRepo:         userRepo,
		webhookRepo:      webhookRepo,
		notifier:         notifier,
		producer:         producer,
		billingMetrics:   billingMetrics,
		log:              log,
	}
}

// HandleEvent обрабатывает одно событие Stripe с дедупликацией по event ID.
func (s *webhookService) HandleEvent(ctx context.Context, event stripesdk.Event) error {
	eventType := string(event.Type)

	// Пропускаем только успешно обработанные события: событие со статусом
	// failed обрабатываем заново при повторной доставке.
	existing, err := s.webhookRepo.GetByExternalID(ctx, event.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Error("Error checking webhook journal for event %s: %v", event.ID, err)
		return err
	}
	if err == nil && existing.Status == domain.WebhookEventStatusProcessed {
		s.log.Infow("Skipping duplicate webhook event", "eventID", event.ID, "type", eventType)
		s.incWebhookMetric(eventType, "duplicate")
		return nil
	}

	handleErr := s.dispatch(ctx, event)

	record := domain.WebhookEvent{
		ExternalID:  event.ID,
		Type:        eventType,
		Status:      domain.WebhookEventStatusProcessed,
		ProcessedAt: time.Now().UTC(),
	}
	if handleErr != nil {
		record.Status = domain.WebhookEventStatusFailed
		record.ErrorMessage = handleErr.Error()
	}

	if recordErr := s.webhookRepo.Record(ctx, record); recordErr != nil {
		s.log.Error("Error recording webhook event %s: %v", event.ID, recordErr)
		if handleErr == nil {
			return recordErr
		}
	}

	if handleErr != nil {
		s.incWebhookMetric(eventType, "failed")
		return handleErr
	}
	s.incWebhookMetric(eventType, "processed")
	return nil
}

func (s *webhookService) dispatch(ctx context.Context, event stripesdk.Event) error {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaymentFail:
		return s.handlePaymentFailed(ctx, event)
	default:
		s.log.Infow("Ignoring unhandled webhook event type", "eventID", event.ID, "type", event.Type)
		return nil
	}
}

// handleCheckoutCompleted создает локальную активную подписку после успешной оплаты.
// Метаданные сессии должны содержать идентификаторы пользователя и плана,
// записанные при создании сессии. Событие с уже известной Stripe подпиской
// пропускается.
func (s *webhookService) handleCheckoutCompleted(ctx context.Context, event stripesdk.Event) error {
	var session stripesdk.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session payload: %w", err)
	}

	userIDRaw := session.Metadata["user_id"]
	planIDRaw := session.Metadata["plan_id"]
	if userIDRaw == "" || planIDRaw == "" {
		// Сессия создана не нашим сервисом; вины Stripe нет, повтор не нужен
		s.log.Warnw("Checkout session missing metadata, dropping event",
			"eventID", event.ID, "sessionID", session.ID)
		return nil
	}

	userID, err := uuid.Parse(userIDRaw)
	if err != nil {
		s.log.Warnw("Invalid user_id in checkout session metadata, dropping event",
			"eventID", event.ID, "user_id", userIDRaw)
		return nil
	}
	planID, err := uuid.Parse(planIDRaw)
	if err != nil {
		s.log.Warnw("Invalid plan_id in checkout session metadata, dropping event",
			"eventID", event.ID, "plan_id", planIDRaw)
		return nil
	}

	stripeSubID := ""
	if session.Subscription != nil {
		stripeSubID = session.Subscription.ID
	}

	if stripeSubID != "" {
		if _, err := s.subscriptionRepo.GetByStripeSubscriptionID(ctx, stripeSubID); err == nil {
			s.log.Infow("Subscription already recorded for checkout session", "eventID", event.ID, "stripeSubscriptionID", stripeSubID)
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Checkout session references unknown plan, dropping event",
				"eventID", event.ID, "planID", planIDRaw)
			return nil
		}
		return err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Checkout session references unknown user, dropping event",
				"eventID", event.ID, "userID", userIDRaw)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	sub := domain.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		PlanID:               planID,
		Status:               domain.SubscriptionStatusActive,
		StartedAt:            now,
		StripeSubscriptionID: stripeSubID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	created, err := s.subscriptionRepo.Create(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) || errors.Is(err, repository.ErrDuplicate) {
			// Гонка с параллельной доставкой того же события: запись уже есть
			s.log.Warnw("Subscription already exists, treating event as processed",
				"eventID", event.ID, "userID", userIDRaw)
			return nil
		}
		return err
	}

	s.log.Infow("Subscription activated from checkout",
		"subscriptionID", created.ID,
		"userID", userIDRaw,
		"planID", planIDRaw,
		"stripeSubscriptionID", stripeSubID,
	)

	if s.billingMetrics != nil {
		s.billingMetrics.IncSubscriptionActivated()
		s.billingMetrics.ObservePlanPrice(plan.Price)
	}
	s.notifyAsync(created, user, plan, kafka.TopicSubscriptionCreated)
	return nil
}

// handleSubscriptionUpdated синхронизирует локальный статус с состоянием Stripe.
func (s *webhookService) handleSubscriptionUpdated(ctx context.Context, event stripesdk.Event) error {
	var stripeSub stripesdk.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	sub, err := s.subscriptionRepo.GetByStripeSubscriptionID(ctx, stripeSub.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Received update for unknown Stripe subscription, dropping event",
				"eventID", event.ID, "stripeSubscriptionID", stripeSub.ID)
			return nil
		}
		return err
	}

	newStatus, known := stripeStatusMap[stripeSub.Status]
	if !known {
		s.log.Warnw("Unknown Stripe subscription status, leaving local record unchanged",
			"eventID", event.ID,
			"stripeSubscriptionID", stripeSub.ID,
			"stripeStatus", stripeSub.Status,
		)
		return nil
	}

	if sub.Status == newStatus {
		return nil
	}

	var canceledAt *time.Time
	if newStatus == domain.SubscriptionStatusCanceled {
		now := time.Now().UTC()
		canceledAt = &now
	}

	if err := s.subscriptionRepo.UpdateStatus(ctx, sub.ID, newStatus, canceledAt); err != nil {
		return err
	}

	s.log.Infow("Subscription status reconciled",
		"subscriptionID", sub.ID,
		"stripeSubscriptionID", stripeSub.ID,
		"from", sub.Status,
		"to", newStatus,
	)

	if s.billingMetrics != nil && newStatus == domain.SubscriptionStatusCanceled {
		s.billingMetrics.IncSubscriptionCanceled("webhook")
	}
	return nil
}

// handleSubscriptionDeleted принудительно отменяет локальную подписку.
func (s *webhookService) handleSubscriptionDeleted(ctx context.Context, event stripesdk.Event) error {
	var stripeSub stripesdk.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	sub, err := s.subscriptionRepo.GetByStripeSubscriptionID(ctx, stripeSub.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Received deletion for unknown Stripe subscription, dropping event",
				"eventID", event.ID, "stripeSubscriptionID", stripeSub.ID)
			return nil
		}
		return err
	}

	if sub.Status == domain.SubscriptionStatusCanceled {
		return nil
	}

	now := time.Now().UTC()
	if err := s.subscriptionRepo.UpdateStatus(ctx, sub.ID, domain.SubscriptionStatusCanceled, &now); err != nil {
		return err
	}

	s.log.Infow("Subscription canceled by Stripe", "subscriptionID", sub.ID, "stripeSubscriptionID", stripeSub.ID)

	if s.billingMetrics != nil {
		s.billingMetrics.IncSubscriptionCanceled("webhook")
	}

	sub.Status = domain.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	user, userErr := s.userRepo.GetByID(ctx, sub.UserID)
	plan, planErr := s.planRepo.GetByID(ctx, sub.PlanID)
	if userErr == nil && planErr == nil {
		s.notifyAsync(sub, user, plan, kafka.TopicSubscriptionCancelled)
	}
	return nil
}

// handlePaymentFailed фиксирует неудачный платеж в метриках.
// Деактивацию подписки Stripe сообщит отдельным событием update/delete.
func (s *webhookService) handlePaymentFailed(ctx context.Context, event stripesdk.Event) error {
	var invoice stripesdk.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice payload: %w", err)
	}

	s.log.Warnw("Invoice payment failed",
		"eventID", event.ID,
		"invoiceID", invoice.ID,
		"customerEmail", invoice.CustomerEmail,
	)
	if s.billingMetrics != nil {
		s.billingMetrics.IncPaymentFailed()
	}
	return nil
}

func (s *webhookService) incWebhookMetric(eventType, result string) {
	if s.billingMetrics != nil {
		s.billingMetrics.IncWebhookEvent(eventType, result)
	}
}

// notifyAsync отправляет уведомления в фоне, не блокируя обработку события.
func (s *webhookService) notifyAsync(sub domain.Subscription, user domain.User, plan domain.Plan, topic string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if s.notifier != nil {
			var err error
			switch topic {
			case kafka.TopicSubscriptionCreated:
				err = s.notifier.SendSubscriptionActivated(ctx, user, plan)
			case kafka.TopicSubscriptionCancelled:
				err = s.notifier.SendSubscriptionCanceled(ctx, user, plan)
			}
			if err != nil {
				s.log.Warnw("Failed to send notification email", "error", err, "subscriptionID", sub.ID)
			}
		}

		if s.producer != nil {
			if err := s.producer.PublishSubscriptionEvent(ctx, topic, &sub); err != nil {
				s.log.Warnw("Failed to publish subscription event", "error", err, "topic", topic, "subscriptionID", sub.ID)
			}
		}
	}()
}
