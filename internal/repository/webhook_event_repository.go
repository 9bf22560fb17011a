package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// WebhookEventRepository интерфейс журнала вебхук-событий.
// Журнал — основа идемпотентности реконсиляции: событие считается
// обработанным, только если оно записано со статусом processed.
type WebhookEventRepository interface {
	// GetByExternalID возвращает запись о событии по его внешнему ID
	GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error)

	// Record записывает результат обработки события. Повторная запись для
	// того же внешнего ID перезаписывает статус (failed -> processed).
	Record(ctx context.Context, event domain.WebhookEvent) error
}

// InMemoryWebhookEventRepository реализация журнала вебхук-событий в памяти
type InMemoryWebhookEventRepository struct {
	events map[string]domain.WebhookEvent // Ключ — внешний ID события
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryWebhookEventRepository создает новый журнал вебхук-событий в памяти
func NewInMemoryWebhookEventRepository(log *logger.Logger) *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{
		events: make(map[string]domain.WebhookEvent),
		log:    log,
	}
}

// GetByExternalID возвращает запись о событии по его внешнему ID
func (r *InMemoryWebhookEventRepository) GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	event, exists := r.events[externalID]
	if !exists {
		return domain.WebhookEvent{}, ErrNotFound
	}

	return event, nil
}

// Record записывает результат обработки события
func (r *InMemoryWebhookEventRepository) Record(ctx context.Context, event domain.WebhookEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if event.ExternalID == "" {
		return ErrInvalidData
	}

	if existing, exists := r.events[event.ExternalID]; exists {
		event.ID = existing.ID
		event.CreatedAt = existing.CreatedAt
	} else {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		event.CreatedAt = time.Now()
	}
	event.ProcessedAt = time.Now()

	r.events[event.ExternalID] = event

	return nil
}

// PostgresWebhookEventRepository реализация журнала вебхук-событий через PostgreSQL
type PostgresWebhookEventRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresWebhookEventRepository создает новый журнал вебхук-событий через PostgreSQL
func NewPostgresWebhookEventRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{
		db:  db,
		log: log,
	}
}

// GetByExternalID возвращает запись о событии по его внешнему ID
func (r *PostgresWebhookEventRepository) GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	query := `
		SELECT id, external_id, type, status, COALESCE(error_message, ''), processed_at, created_at
		FROM webhook_events
		WHERE external_id = $1
	`

	var event domain.WebhookEvent
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&event.ID,
		&event.ExternalID,
		&event.Type,
		&event.Status,
		&event.ErrorMessage,
		&event.ProcessedAt,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookEvent{}, ErrNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return event, nil
}

// Record записывает результат обработки события. Уникальность external_id
// обеспечивается уникальным ограничением, повторная запись выполняет upsert.
func (r *PostgresWebhookEventRepository) Record(ctx context.Context, event domain.WebhookEvent) error {
	if event.ExternalID == "" {
		return ErrInvalidData
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO webhook_events (id, external_id, type, status, error_message, processed_at, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $6)
		ON CONFLICT (external_id) DO UPDATE
		SET status = EXCLUDED.status,
		    error_message = EXCLUDED.error_message,
		    processed_at = EXCLUDED.processed_at
	`

	_, err := r.db.Exec(ctx, query, event.ID, event.ExternalID, event.Type, event.Status, event.ErrorMessage, now)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}

	return nil
}
