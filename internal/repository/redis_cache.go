package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Ключи кэша каталога планов
	planKeyPrefix = "plan:"
	planListKey   = "plans:all"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кэширование каталога планов в Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый Redis репозиторий и проверяет соединение
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CachePlan кэширует план
func (r *RedisCacheRepository) CachePlan(ctx context.Context, plan domain.Plan) error {
	key := planKeyPrefix + plan.ID.String()

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache plan in Redis", "error", err, "planID", plan.ID)
		return fmt.Errorf("failed to cache plan: %w", err)
	}

	return nil
}

// GetCachedPlan получает план из кэша. Второе возвращаемое значение
// сообщает, было ли попадание в кэш.
func (r *RedisCacheRepository) GetCachedPlan(ctx context.Context, planID string) (domain.Plan, bool, error) {
	key := planKeyPrefix + planID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Plan{}, false, nil
		}
		r.log.Errorw("Error getting plan from Redis", "error", err, "planID", planID)
		return domain.Plan{}, false, fmt.Errorf("failed to get plan from cache: %w", err)
	}

	var plan domain.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return domain.Plan{}, false, fmt.Errorf("failed to unmarshal cached plan: %w", err)
	}

	return plan, true, nil
}

// CachePlanList кэширует полный список планов
func (r *RedisCacheRepository) CachePlanList(ctx context.Context, plans []domain.Plan) error {
	data, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("failed to marshal plan list: %w", err)
	}

	if err := r.client.Set(ctx, planListKey, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache plan list in Redis", "error", err)
		return fmt.Errorf("failed to cache plan list: %w", err)
	}

	return nil
}

// GetCachedPlanList получает список планов из кэша. Второе возвращаемое
// значение сообщает, было ли попадание в кэш.
func (r *RedisCacheRepository) GetCachedPlanList(ctx context.Context) ([]domain.Plan, bool, error) {
	data, err := r.client.Get(ctx, planListKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		r.log.Errorw("Error getting plan list from Redis", "error", err)
		return nil, false, fmt.Errorf("failed to get plan list from cache: %w", err)
	}

	var plans []domain.Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached plan list: %w", err)
	}

	return plans, true, nil
}

// InvalidatePlans сбрасывает кэш каталога после мутаций
func (r *RedisCacheRepository) InvalidatePlans(ctx context.Context, planIDs ...string) error {
	keys := []string{planListKey}
	for _, id := range planIDs {
		keys = append(keys, planKeyPrefix+id)
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Errorw("Failed to invalidate plan cache", "error", err)
		return fmt.Errorf("failed to invalidate plan cache: %w", err)
	}

	return nil
}
