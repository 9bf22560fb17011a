package repository

import (
	"context"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// CachedPlanRepository оборачивает PlanRepository с кэшированием через Redis.
// Ошибки кэша не прерывают запрос: при отказе Redis работаем напрямую с базой.
type CachedPlanRepository struct {
	repo  PlanRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedPlanRepository создает репозиторий планов с кэшированием
func NewCachedPlanRepository(repo PlanRepository, cache *RedisCacheRepository, log *logger.Logger) *CachedPlanRepository {
	return &CachedPlanRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetAll возвращает каталог планов, сначала проверяя кэш
func (r *CachedPlanRepository) GetAll(ctx context.Context) ([]domain.Plan, error) {
	cached, hit, err := r.cache.GetCachedPlanList(ctx)
	if err != nil {
		r.log.Warnw("Plan list cache read failed, falling back to database", "error", err)
	} else if hit {
		return cached, nil
	}

	plans, err := r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CachePlanList(ctx, plans); err != nil {
		r.log.Warnw("Failed to cache plan list", "error", err)
	}

	return plans, nil
}

// GetByID возвращает план по ID, сначала проверяя кэш
func (r *CachedPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	cached, hit, err := r.cache.GetCachedPlan(ctx, id.String())
	if err != nil {
		r.log.Warnw("Plan cache read failed, falling back to database", "error", err, "planID", id)
	} else if hit {
		return cached, nil
	}

	plan, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Plan{}, err
	}

	if err := r.cache.CachePlan(ctx, plan); err != nil {
		r.log.Warnw("Failed to cache plan", "error", err, "planID", id)
	}

	return plan, nil
}

// Create создает план и сбрасывает кэш списка
func (r *CachedPlanRepository) Create(ctx context.Context, plan domain.Plan) (domain.Plan, error) {
	created, err := r.repo.Create(ctx, plan)
	if err != nil {
		return domain.Plan{}, err
	}

	if err := r.cache.InvalidatePlans(ctx, created.ID.String()); err != nil {
		r.log.Warnw("Failed to invalidate plan cache after create", "error", err)
	}

	return created, nil
}

// Delete удаляет план и сбрасывает кэш
func (r *CachedPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := r.cache.InvalidatePlans(ctx, id.String()); err != nil {
		r.log.Warnw("Failed to invalidate plan cache after delete", "error", err)
	}

	return nil
}

// CountSubscriptions делегирует подсчет подписок базовому репозиторию
func (r *CachedPlanRepository) CountSubscriptions(ctx context.Context, planID uuid.UUID) (int, error) {
	return r.repo.CountSubscriptions(ctx, planID)
}
