package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus статус обработки события
type WebhookEventStatus string

const (
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent представляет обработанное событие вебхука.
// Запись по внешнему ID события — основа идемпотентности: повторная
// доставка уже обработанного события пропускается без изменений состояния.
type WebhookEvent struct {
	ID           uuid.UUID          `json:"id"`
	ExternalID   string             `json:"external_id"` // ID события в платежной системе (evt_...)
	Type         string             `json:"type"`
	Status       WebhookEventStatus `json:"status"`
	ErrorMessage string             `json:"error_message,omitempty"`
	ProcessedAt  time.Time          `json:"processed_at"`
	CreatedAt    time.Time          `json:"created_at"`
}
