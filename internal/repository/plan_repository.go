package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// PlanRepository интерфейс репозитория тарифных планов
type PlanRepository interface {
	// GetAll возвращает все планы
	GetAll(ctx context.Context) ([]domain.Plan, error)

	// GetByID возвращает план по ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error)

	// Create создает новый план
	Create(ctx context.Context, plan domain.Plan) (domain.Plan, error)

	// Delete удаляет план. Возвращает ErrNotFound, если плана нет.
	Delete(ctx context.Context, id uuid.UUID) error

	// CountSubscriptions возвращает число подписок, ссылающихся на план
	CountSubscriptions(ctx context.Context, planID uuid.UUID) (int, error)
}

// InMemoryPlanRepository реализация репозитория планов в памяти
type InMemoryPlanRepository struct {
	plans         map[uuid.UUID]domain.Plan
	subscriptions *InMemorySubscriptionRepository // Для проверки ссылающихся подписок
	mutex         sync.RWMutex
	log           *logger.Logger
}

// NewInMemoryPlanRepository создает новый репозиторий планов в памяти.
// subs может быть nil, тогда CountSubscriptions всегда возвращает 0.
func NewInMemoryPlanRepository(subs *InMemorySubscriptionRepository, log *logger.Logger) *InMemoryPlanRepository {
	return &InMemoryPlanRepository{
		plans:         make(map[uuid.UUID]domain.Plan),
		subscriptions: subs,
		log:           log,
	}
}

// GetAll возвращает все планы
func (r *InMemoryPlanRepository) GetAll(ctx context.Context) ([]domain.Plan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	plans := make([]domain.Plan, 0, len(r.plans))
	for _, plan := range r.plans {
		plans = append(plans, plan)
	}

	// Сортируем по времени создания для стабильного порядка
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})

	return plans, nil
}

// GetByID возвращает план по ID
func (r *InMemoryPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	plan, exists := r.plans[id]
	if !exists {
		return domain.Plan{}, ErrNotFound
	}

	return plan, nil
}

// Create создает новый план
func (r *InMemoryPlanRepository) Create(ctx context.Context, plan domain.Plan) (domain.Plan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	plan.CreatedAt = time.Now()

	r.plans[plan.ID] = plan

	return plan, nil
}

// Delete удаляет план
func (r *InMemoryPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.plans[id]; !exists {
		return ErrNotFound
	}

	delete(r.plans, id)

	return nil
}

// CountSubscriptions возвращает число подписок, ссылающихся на план
func (r *InMemoryPlanRepository) CountSubscriptions(ctx context.Context, planID uuid.UUID) (int, error) {
	if r.subscriptions == nil {
		return 0, nil
	}
	return r.subscriptions.countByPlanID(planID), nil
}

// PostgresPlanRepository реализация репозитория планов через PostgreSQL
type PostgresPlanRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresPlanRepository создает новый репозиторий планов через PostgreSQL
func NewPostgresPlanRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPlanRepository {
	return &PostgresPlanRepository{
		db:  db,
		log: log,
	}
}

// GetAll возвращает все планы из базы данных
func (r *PostgresPlanRepository) GetAll(ctx context.Context) ([]domain.Plan, error) {
	query := `
		SELECT id, name, price, features, created_at
		FROM subscription_plans
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var plan domain.Plan
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Features, &plan.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}

// GetByID возвращает план по ID
func (r *PostgresPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	query := `
		SELECT id, name, price, features, created_at
		FROM subscription_plans
		WHERE id = $1
	`

	var plan domain.Plan
	err := r.db.QueryRow(ctx, query, id).Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Features, &plan.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, ErrNotFound
		}
		return domain.Plan{}, fmt.Errorf("failed to get plan: %w", err)
	}

	return plan, nil
}

// Create создает новый план
func (r *PostgresPlanRepository) Create(ctx context.Context, plan domain.Plan) (domain.Plan, error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	plan.CreatedAt = time.Now()

	query := `
		INSERT INTO subscription_plans (id, name, price, features, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, plan.ID, plan.Name, plan.Price, plan.Features, plan.CreatedAt)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("failed to insert plan: %w", err)
	}

	return plan, nil
}

// Delete удаляет план
func (r *PostgresPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscription_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// CountSubscriptions возвращает число подписок, ссылающихся на план
func (r *PostgresPlanRepository) CountSubscriptions(ctx context.Context, planID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE plan_id = $1`, planID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count plan subscriptions: %w", err)
	}
	return count, nil
}
