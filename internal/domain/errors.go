package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrForbidden доступ к чужому ресурсу запрещен
	ErrForbidden = errors.New("forbidden")

	// ErrInternal внутренняя ошибка
	ErrInternal = errors.New("internal error")

	// ErrActiveSubscriptionExists у пользователя уже есть активная подписка
	ErrActiveSubscriptionExists = errors.New("user already has an active subscription")

	// ErrSubscriptionCanceled подписка уже отменена
	ErrSubscriptionCanceled = errors.New("subscription is already canceled")

	// ErrPlanInUse план нельзя удалить, пока на него ссылаются подписки
	ErrPlanInUse = errors.New("plan has referencing subscriptions")

	// ErrStripeClient ошибка взаимодействия со Stripe
	ErrStripeClient = errors.New("stripe client error")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")
)

// NotFoundError представляет ошибку "не найдено" с указанием сущности
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// StripeError оборачивает ошибку платежной системы, сохраняя оригинальное
// сообщение для диагностики.
type StripeError struct {
	Operation   string
	Message     string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *StripeError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("stripe error [%s]: %s: %v", e.Operation, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("stripe error [%s]: %s", e.Operation, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *StripeError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет принадлежность к классу ошибок Stripe
func (e *StripeError) Is(target error) bool {
	return target == ErrStripeClient
}

// NewStripeError создает новую ошибку платежной системы
func NewStripeError(operation, message string, err error) *StripeError {
	return &StripeError{
		Operation:   operation,
		Message:     message,
		OriginalErr: err,
	}
}
