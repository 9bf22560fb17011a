package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// Имена ограничений из migrations/001_init.sql, по которым распознаются
// нарушения уникальности.
const (
	constraintOneActivePerUser = "uq_subscriptions_one_active"
	constraintStripeSubID      = "uq_subscriptions_stripe_id"
)

// SubscriptionRepository интерфейс репозитория подписок
type SubscriptionRepository interface {
	// Create создает новую подписку. Инвариант "не более одной активной
	// подписки на пользователя" обеспечивается хранилищем: при нарушении
	// возвращается ErrDuplicateActive.
	Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)

	// GetByID возвращает подписку по ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)

	// GetByUserID возвращает все подписки пользователя
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)

	// GetActiveByUserID возвращает активную подписку пользователя или ErrNotFound
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error)

	// GetByStripeSubscriptionID возвращает подписку по внешнему ID Stripe
	GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (domain.Subscription, error)

	// UpdateStatus переводит подписку в новый статус
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error

	// List возвращает страницу подписок и их общее количество
	List(ctx context.Context, limit, offset int) ([]domain.Subscription, int, error)
}

// InMemorySubscriptionRepository реализация репозитория подписок в памяти
type InMemorySubscriptionRepository struct {
	subscriptions map[uuid.UUID]domain.Subscription
	mutex         sync.RWMutex
	log           *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subscriptions: make(map[uuid.UUID]domain.Subscription),
		log:           log,
	}
}

// Create создает новую подписку. Проверка уникальности активной подписки
// выполняется под write-блокировкой, что исключает гонку check-then-insert.
func (r *InMemorySubscriptionRepository) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if sub.Status == domain.SubscriptionStatusActive {
		for _, existing := range r.subscriptions {
			if existing.UserID == sub.UserID && existing.Status == domain.SubscriptionStatusActive {
				return domain.Subscription{}, ErrDuplicateActive
			}
		}
	}

	if sub.StripeSubscriptionID != "" {
		for _, existing := range r.subscriptions {
			if existing.StripeSubscriptionID == sub.StripeSubscriptionID {
				return domain.Subscription{}, ErrDuplicate
			}
		}
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now()
	if sub.StartedAt.IsZero() {
		sub.StartedAt = now
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now

	r.subscriptions[sub.ID] = sub

	return sub, nil
}

// GetByID возвращает подписку по ID
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sub, exists := r.subscriptions[id]
	if !exists {
		return domain.Subscription{}, ErrNotFound
	}

	return sub, nil
}

// GetByUserID возвращает все подписки пользователя
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var subs []domain.Subscription
	for _, sub := range r.subscriptions {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})

	return subs, nil
}

// GetActiveByUserID возвращает активную подписку пользователя
func (r *InMemorySubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subscriptions {
		if sub.UserID == userID && sub.Status == domain.SubscriptionStatusActive {
			return sub, nil
		}
	}

	return domain.Subscription{}, ErrNotFound
}

// GetByStripeSubscriptionID возвращает подписку по внешнему ID Stripe
func (r *InMemorySubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if stripeSubID == "" {
		return domain.Subscription{}, ErrInvalidData
	}

	for _, sub := range r.subscriptions {
		if sub.StripeSubscriptionID == stripeSubID {
			return sub, nil
		}
	}

	return domain.Subscription{}, ErrNotFound
}

// UpdateStatus переводит подписку в новый статус
func (r *InMemorySubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub, exists := r.subscriptions[id]
	if !exists {
		return ErrNotFound
	}

	sub.Status = status
	sub.CanceledAt = canceledAt
	sub.UpdatedAt = time.Now()
	r.subscriptions[id] = sub

	return nil
}

// List возвращает страницу подписок и их общее количество
func (r *InMemorySubscriptionRepository) List(ctx context.Context, limit, offset int) ([]domain.Subscription, int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	all := make([]domain.Subscription, 0, len(r.subscriptions))
	for _, sub := range r.subscriptions {
		all = append(all, sub)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []domain.Subscription{}, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return all[offset:end], total, nil
}

// countByPlanID возвращает число подписок на план (для guard'а удаления плана)
func (r *InMemorySubscriptionRepository) countByPlanID(planID uuid.UUID) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, sub := range r.subscriptions {
		if sub.PlanID == planID {
			count++
		}
	}
	return count
}

// PostgresSubscriptionRepository реализация репозитория подписок через PostgreSQL
type PostgresSubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый репозиторий подписок через PostgreSQL
func NewPostgresSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{
		db:  db,
		log: log,
	}
}

const subscriptionColumns = `
	id, user_id, plan_id, status, started_at,
	COALESCE(stripe_subscription_id, ''), canceled_at, created_at, updated_at
`

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.StartedAt,
		&sub.StripeSubscriptionID,
		&sub.CanceledAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	return sub, err
}

// Create создает новую подписку. Частичный уникальный индекс на
// (user_id) WHERE status='active' гарантирует инвариант даже при
// конкурентных вставках; нарушение транслируется в ErrDuplicateActive.
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now()
	if sub.StartedAt.IsZero() {
		sub.StartedAt = now
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
		INSERT INTO subscriptions
			(id, user_id, plan_id, status, started_at, stripe_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.StartedAt,
		sub.StripeSubscriptionID, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case constraintOneActivePerUser:
				return domain.Subscription{}, ErrDuplicateActive
			case constraintStripeSubID:
				return domain.Subscription{}, ErrDuplicate
			}
			return domain.Subscription{}, ErrDuplicate
		}
		return domain.Subscription{}, fmt.Errorf("failed to insert subscription: %w", err)
	}

	return sub, nil
}

// GetByID возвращает подписку по ID
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// GetByUserID возвращает все подписки пользователя
func (r *PostgresSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// GetActiveByUserID возвращает активную подписку пользователя
func (r *PostgresSubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 AND status = $2`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID, domain.SubscriptionStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get active subscription: %w", err)
	}

	return sub, nil
}

// GetByStripeSubscriptionID возвращает подписку по внешнему ID Stripe
func (r *PostgresSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (domain.Subscription, error) {
	if stripeSubID == "" {
		return domain.Subscription{}, ErrInvalidData
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, stripeSubID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get subscription by stripe id: %w", err)
	}

	return sub, nil
}

// UpdateStatus переводит подписку в новый статус
func (r *PostgresSubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $2, canceled_at = $3, updated_at = $4
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status, canceledAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// List возвращает страницу подписок и их общее количество
func (r *PostgresSubscriptionRepository) List(ctx context.Context, limit, offset int) ([]domain.Subscription, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, total, rows.Err()
}
