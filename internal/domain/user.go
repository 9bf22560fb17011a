package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRole роль пользователя в системе
type UserRole string

const (
	UserRoleCreator UserRole = "creator"
	UserRoleAgency  UserRole = "agency"
	UserRoleAdmin   UserRole = "admin"
)

// IsAdmin проверяет, является ли роль административной.
func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin
}

// User представляет пользователя системы.
// Учетные записи создаются сервисом аутентификации, биллингу нужны
// только идентификатор, email для уведомлений и роль для проверки прав.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
