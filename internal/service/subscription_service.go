package service

import (
	"context"
	"errors"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/internal/email"
	"github.com/creatoragency/billing-service/internal/kafka"
	"github.com/creatoragency/billing-service/internal/metrics"
	"github.com/creatoragency/billing-service/internal/repository"
	"github.com/creatoragency/billing-service/internal/stripe"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// Максимальный размер страницы при выдаче списка подписок
const maxPageSize = 100

// SubscriptionService интерфейс сервиса для работы с подписками
type SubscriptionService interface {
	// Subscribe создает активную подписку напрямую, без оплаты через Stripe.
	// Используется для внутренних и бесплатных планов.
	Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (domain.Subscription, error)

	// GetByID возвращает подписку по ID. Не-администратор видит только свои подписки.
	GetByID(ctx context.Context, id, actingUserID string, actingRole domain.UserRole) (domain.Subscription, error)

	// GetUserSubscriptions возвращает все подписки пользователя.
	GetUserSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error)

	// GetActive возвращает активную подписку пользователя, если она есть.
	GetActive(ctx context.Context, userID string) (domain.Subscription, error)

	// List возвращает страницу подписок. Доступно только администраторам.
	List(ctx context.Context, actingRole domain.UserRole, page, perPage int) (domain.SubscriptionPage, error)

	// GetLiveStatus возвращает подписку вместе с ее текущим статусом в Stripe.
	// Для подписок без привязки к Stripe возвращается локальный статус.
	GetLiveStatus(ctx context.Context, id, actingUserID string, actingRole domain.UserRole) (domain.Subscription, string, error)

	// Cancel отменяет подписку: сначала в Stripe, затем локально.
	Cancel(ctx context.Context, id, actingUserID string, actingRole domain.UserRole) (domain.Subscription, error)
}

type subscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	planRepo         repository.PlanRepository
	userRepo         repository.UserRepository
	stripeClient     stripe.Client
	notifier         email.Notifier
	producer         kafka.Producer
	billingMetrics   metrics.BillingMetrics
	log              *logger.Logger
}

// NewSubscriptionService создает новый сервис подписок.
// producer и billingMetrics могут быть nil, если Kafka/метрики не сконфигурированы.
func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	planRepo repository.PlanRepository,
	userRepo repository.UserRepository,
	stripeClient stripe.Client,
	notifier email.Notifier,
	producer kafka.Producer,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		userRepo:         userRepo,
		stripeClient:     stripeClient,
		notifier:         notifier,
		producer:         producer,
		billingMetrics:   billingMetrics,
		log:              log,
	}
}

// Subscribe создает активную подписку напрямую.
// Единственность активной подписки обеспечивается на уровне хранилища.
func (s *subscriptionService) Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (domain.Subscription, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		s.log.Warn("Invalid UUID format for user ID: %s", userID)
		return domain.Subscription{}, domain.ErrInvalidInput
	}

	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		s.log.Warn("Invalid UUID format for plan ID: %s", req.PlanID)
		return domain.Subscription{}, domain.ErrInvalidInput
	}

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.NewNotFoundError("plan", req.PlanID)
		}
		s.log.Error("Error fetching plan %s: %v", req.PlanID, err)
		return domain.Subscription{}, err
	}

	user, err := s.userRepo.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.NewNotFoundError("user", userID)
		}
		s.log.Error("Error fetching user %s: %v", userID, err)
		return domain.Subscription{}, err
	}

	now := time.Now().UTC()
	sub := domain.Subscription{
		ID:        uuid.New(),
		UserID:    uid,
		PlanID:    planID,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.subscriptionRepo.Create(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			s.log.Warn("User %s already has an active subscription", userID)
			return domain.Subscription{}, domain.ErrActiveSubscriptionExists
		}
		s.log.Error("Error creating subscription: %v", err)
		return domain.Subscription{}, err
	}

	s.log.Infow("Subscription created", "subscriptionID", created.ID, "userID", userID, "planID", req.PlanID)

	if s.billingMetrics != nil {
		s.billingMetrics.IncSubscriptionActivated()
		s.billingMetrics.ObservePlanPrice(plan.Price)
	}
	s.notifyAsync(created, user, plan, kafka.TopicSubscriptionCreated)

	return created, nil
}

// GetByID возвращает подписку по ID с проверкой владения
func (s *subscriptionService) GetByID(ctx context.Context, id, actingUserID string, actingRole domain.UserRole) (domain.Subscription, error) {
	subID, err := uuid.Parse(id)
	if err != nil {
		s.log.Warn("Invalid UUID format for subscription ID: %s", id)
		return domain.Subscription{}, domain.ErrInvalidInput
	}

	sub, err := s.subscriptionRepo.GetByID(ctx, subID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.NewNotFoundError("subscription", id)
		}
		s.log.Error("Error fetching subscription %s: %v", id, err)
		return domain.Subscription{}, err
	}

	if !actingRole.IsAdmin() && sub.UserID.String() != actingUserID {
		s.log.Warn("User %s attempted to access subscription %s owned by %s", actingUserID, id, sub.UserID)
		return domain.Subscription{}, domain.ErrForbidden
	}

	return sub, nil
}

// GetUserSubscriptions возвращает все подписки пользователя
func (s *subscriptionService) GetUserSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		s.log.Warn("Invalid UUID format for user ID: %s", userID)
		return nil, domain.ErrInvalidInput
	}

	subs, err := s.subscriptionRepo.GetByUserID(ctx, uid)
	if err != nil {
		s.log.Error("Error fetching subscriptions for user %s: %v", userID, err)
		return nil, err
	}
	return subs, nil
}

// GetActive возвращает активную подписку пользователя
func (s *subscriptionService) GetActive(ctx context.Context, userID string) (domain.Subscription, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		s.log.Warn("Invalid UUID format for user ID: %s", userID)
		return domain.Subscription{}, domain.ErrInvalidInput
	}

	sub, err := s.subscriptionRepo.GetActiveByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.NewNotFoundError("active subscription", userID)
		}
		s.log.Error("Error fetching active subscription for user %s: %v", userID, err)
		return domain.Subscription{}, err
	}
	return sub, nil
}

// List возвращает страницу всех подписок. Только для администраторов.
func (s *subscriptionService) List(ctx context.Context, actingRole domain.UserRole, page, perPage int) (domain.SubscriptionPage, error) {
	if !actingRole.IsAdmin() {
		return domain.SubscriptionPage{}, domain.ErrForbidden
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	offset := (page - 1) * perPage
	items, total, err := s.subscriptionRepo.List(ctx, perPage, offset)
	if err != nil {
		s.log.Error("Error listing subscriptions: %v", err)
		return domain.SubscriptionPage{}, err
	}

	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}

	return domain.SubscriptionPage{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
	}, nil
}

// GetLiveStatus возвращает подписку и ее актуальный статус в Stripe.
// Локальная запись — источник истины для доступа, но Stripe может знать
// о подписке больше (например, просроченный платеж до прихода вебхука).
func (s *subscriptionService) GetLiveStatus(ctx context.Context, id, actingUserID string, actingRole domain.UserRole) (domain.Subscription, string, error) {
	sub, err := s.GetByID(ctx, id, actingUserID, actingRole)
	if err != nil {
		return domain.Subscription{}, "", err
	}

	if sub.StripeSubscriptionID == "" {
		return sub, string(sub.Status), nil
	}

	stripeSub, err := s.stripeClient.GetSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		s.log.Error("Error fetching live Stripe status for subscription %s: %v", id, err)
		return domain.Subscription{}, "", err
	}

	return sub, string(stripeSub.Status), nil
}

// Cancel отменяет подписку. Сначала отменяется подписка в Stripe (если она
// привязана), и только при успехе статус меняется локально. Повторная отмена
// возвращает ErrSubscriptionCanceled.
func (s *subscriptionService) Cancel(ctx context.Context, id, actingUserID string, actingRole domain.UserRole) (domain.Subscription, error) {
	sub, err := s.GetByID(ctx, id, actingUserID, actingRole)
	if err != nil {
		return domain.Subscription{}, err
	}

	if sub.Status == domain.SubscriptionStatusCanceled {
		s.log.Warn("Subscription %s is already canceled", id)
		return domain.Subscription{}, domain.ErrSubscriptionCanceled
	}

	if sub.StripeSubscriptionID != "" {
		if err := s.stripeClient.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			s.log.Error("Stripe cancellation failed for subscription %s: %v", id, err)
			return domain.Subscription{}, err
		}
	}

	canceledAt := time.Now().UTC()
	if err := s.subscriptionRepo.UpdateStatus(ctx, sub.ID, domain.SubscriptionStatusCanceled, &canceledAt); err != nil {
		s.log.Error("Error updating subscription %s status: %v", id, err)
		return domain.Subscription{}, err
	}

	sub.Status = domain.SubscriptionStatusCanceled
	sub.CanceledAt = &canceledAt
	sub.UpdatedAt = canceledAt

	s.log.Infow("Subscription canceled", "subscriptionID", id, "userID", sub.UserID, "actingUserID", actingUserID)

	if s.billingMetrics != nil {
		s.billingMetrics.IncSubscriptionCanceled("api")
	}

	user, userErr := s.userRepo.GetByID(ctx, sub.UserID)
	plan, planErr := s.planRepo.GetByID(ctx, sub.PlanID)
	if userErr == nil && planErr == nil {
		s.notifyAsync(sub, user, plan, kafka.TopicSubscriptionCancelled)
	} else {
		s.log.Warnw("Skipping cancellation notification", "userErr", userErr, "planErr", planErr)
	}

	return sub, nil
}

// notifyAsync отправляет email и Kafka событие в фоне, не блокируя ответ.
// Ошибки уведомлений не влияют на результат операции.
func (s *subscriptionService) notifyAsync(sub domain.Subscription, user domain.User, plan domain.Plan, topic string) {
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
