package repository

import "errors"

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateActive нарушение инварианта "одна активная подписка на пользователя"
	ErrDuplicateActive = errors.New("user already has an active subscription")

	// ErrDuplicate нарушение уникальности (внешний ID подписки или события)
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData некорректные данные для запроса
	ErrInvalidData = errors.New("invalid data")
)
