package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription представляет собой подписку пользователя на тарифный план.
// Локальная запись — источник истины для проверки доступа; Stripe остается
// источником истины для платежей и синхронизируется через вебхуки.
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	PlanID               uuid.UUID          `json:"plan_id"`
	Status               SubscriptionStatus `json:"status"`
	StartedAt            time.Time          `json:"started_at"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"` // ID подписки в Stripe, пустой для прямых подписок
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// IsActive проверяет, дает ли подписка доступ в данный момент.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// SubscribeRequest представляет запрос на прямое оформление подписки
type SubscribeRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

// CheckoutRequest представляет запрос на создание Stripe Checkout сессии.
// URL-ы возврата необязательны: пустые значения заменяются настройками сервиса.
type CheckoutRequest struct {
	PlanID     string `json:"plan_id" validate:"required,uuid"`
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

// SubscriptionPage страница списка подписок для административной выборки
type SubscriptionPage struct {
	Items   []Subscription `json:"items"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Pages   int            `json:"pages"`
}
