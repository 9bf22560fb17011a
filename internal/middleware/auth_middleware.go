package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/creatoragency/billing-service/internal/domain"
	"github.com/creatoragency/billing-service/pkg/logger"
	"github.com/creatoragency/billing-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ для хранения ID пользователя в контексте.
	ContextUserIDKey ContextKey = "userID"
	// ContextUserEmailKey ключ для хранения email пользователя в контексте.
	ContextUserEmailKey ContextKey = "userEmail"
	// ContextUserRoleKey ключ для хранения роли пользователя в контексте.
	ContextUserRoleKey ContextKey = "userRole"

	authHeaderPrefix = "Bearer "
)

type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims - полезная нагрузка JWT, выданного auth-сервисом.
// Роль пользователя приходит в claim "role".
type TokenClaims struct {
	UserEmail string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log,
		validator: validator,
	}
}

// RequireAuth проверяет JWT и, если указаны роли, членство пользователя в одной из них.
func (m *JWTMiddleware) RequireAuth(requiredRoles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.handleAuthError(c, "Missing authorization token")
			return
		}

		if !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "Authorization header must use Bearer scheme")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, authHeaderPrefix)
		claims, err := m.validator.Validate(tokenString)
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		userID := claims.Subject
		if userID == "" {
			m.handleAuthError(c, "User ID (sub) missing in token")
			return
		}

		role := domain.UserRole(claims.Role)
		if len(requiredRoles) > 0 && !m.hasRequiredRole(role, requiredRoles) {
			m.log.Warnw("HTTP Authorization failed: insufficient role",
				"path", c.Request.URL.Path,
				"userID", userID,
				"role", claims.Role,
			)
			res.JsonResponse(c.Writer, res.ErrorResponse{
				Error:     "Insufficient permissions",
				ErrorCode: http.StatusForbidden,
			}, http.StatusForbidden)
			c.Abort()
			return
		}

		c.Set(string(ContextUserIDKey), userID)
		c.Set(string(ContextUserEmailKey), claims.UserEmail)
		c.Set(string(ContextUserRoleKey), string(role))
		m.log.Debugw("User authenticated via HTTP", "userID", userID, "role", claims.Role)
		c.Next()
	}
}

// RequireAdmin - шорткат для маршрутов, доступных только администраторам.
func (m *JWTMiddleware) RequireAdmin() gin.HandlerFunc {
	return m.RequireAuth(domain.UserRoleAdmin)
}

func (m *JWTMiddleware) hasRequiredRole(role domain.UserRole, requiredRoles []domain.UserRole) bool {
	for _, required := range requiredRoles {
		if role == required {
			return true
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warnw("HTTP Authentication failed", "path", c.Request.URL.Path, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     message,
		ErrorCode: http.StatusUnauthorized,
	}, http.StatusUnauthorized)
	c.Abort()
}

// DefaultTokenValidator - реализация валидатора по умолчанию.
type DefaultTokenValidator struct {
	Secret []byte
}

func (v *DefaultTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, errors.New("malformed token")
		} else if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		} else if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, errors.New("token expired")
		} else {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}

// UserFromContext извлекает аутентифицированного пользователя из контекста Gin.
func UserFromContext(c *gin.Context) (userID string, role domain.UserRole, ok bool) {
	id, exists := c.Get(string(ContextUserIDKey))
	if !exists {
		return "", "", false
	}
	userID, ok = id.(string)
	if !ok || userID == "" {
		return "", "", false
	}

	if r, exists := c.Get(string(ContextUserRoleKey)); exists {
		if s, isStr := r.(string); isStr {
			role = domain.UserRole(s)
		}
	}
	return userID, role, true
}
