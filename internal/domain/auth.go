package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeLegalityCheck разрешает запросы к гейту легальности.
const ScopeLegalityCheck = "legality:check"

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "legality:check": true
	jwt.RegisteredClaims
}

// HasScope проверяет наличие права в токене
func (c *CustomClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	return c.Scopes[scope]
}
