package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Plan представляет тарифный план подписки.
type Plan struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`    // Цена в основной валюте, всегда с точностью до цента
	Features  string    `json:"features"` // Свободное описание возможностей плана
	CreatedAt time.Time `json:"created_at"`
}

// PriceCents возвращает цену плана в минорных единицах валюты (центах)
// для передачи во внешнюю платежную систему.
func (p *Plan) PriceCents() int64 {
	return int64(math.Round(p.Price * 100))
}

// ValidPrice проверяет, что цена неотрицательна и не содержит
// дробной части мельче цента.
func ValidPrice(price float64) bool {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	cents := price * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// PlanRequest представляет запрос на создание плана
type PlanRequest struct {
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Features string  `json:"features"`
}
