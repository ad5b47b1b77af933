package security

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linemk/order-portal/internal/domain/models"
)

var (
	ErrEmptySecret  = errors.New("jwt secret is empty")
	ErrInvalidToken = errors.New("invalid token")
)

// NewToken генерирует JWT-токен для указанного пользователя с заданным временем жизни.
// В токен кладётся роль, чтобы не ходить в базу на каждый запрос.
func NewToken(ctx context.Context, user *models.User, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   fmt.Sprintf("%d", user.ID),
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken проверяет подпись и срок действия и достаёт субъекта.
// Неизвестная роль понижается до обычного пользователя.
func ParseToken(secret, tokenStr string) (models.Principal, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return models.Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Principal{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return models.Principal{}, fmt.Errorf("%w: sub not found", ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: invalid user id", ErrInvalidToken)
	}

	role := models.RoleUser
	if r, _ := claims["role"].(string); models.Role(r) == models.RoleAdmin {
		role = models.RoleAdmin
	}
	return models.Principal{UserID: userID, Role: role}, nil
}
