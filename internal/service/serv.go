package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/linemk/order-portal/internal/domain/models"
	security "github.com/linemk/order-portal/internal/jwt-new"
	"github.com/linemk/order-portal/internal/storage"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthService struct {
	log       *slog.Logger
	userRepo  storage.UserStorage
	tokenTTL  time.Duration
	jwtSecret string
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, tokenTTL time.Duration, jwtSecret string) *AuthService {
	return &AuthService{
		log:       log,
		userRepo:  userRepo,
		tokenTTL:  tokenTTL,
		jwtSecret: jwtSecret,
	}
}

type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// Login осуществляет аутентификацию пользователя.
// Если пользователь не найден, он создаётся с ролью user (пароль хэшируется через bcrypt).
// Если найден, введённый пароль сравнивается с сохранённым хэшем.
// В выданный токен кладётся роль пользователя.
func (a *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	const op = "auth.Login"
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			logger.Error("failed to get user", slog.Any("error", err))
			return "", fmt.Errorf("%s: failed to get user: %w", op, err)
		}
		logger.Info("user not found, creating new user")
		user, err = a.createUser(ctx, email, password, models.RoleUser)
		if err != nil {
			logger.Error("failed to create user", slog.Any("error", err))
			return "", fmt.Errorf("%s: %w", op, err)
		}
	} else if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := security.NewToken(ctx, user, a.tokenTTL, a.jwtSecret)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID), slog.String("role", string(user.Role)))
	return token, nil
}

// EnsureAdmin заводит администратора при старте или повышает роль существующего пользователя.
// Пароль существующего пользователя не меняется.
func (a *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	const op = "auth.EnsureAdmin"
	logger := a.log.With(slog.String("op", op), slog.String("email", email))

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		if password == "" {
			logger.Warn("admin password is not set, skipping admin creation")
			return nil
		}
		if _, err := a.createUser(ctx, email, password, models.RoleAdmin); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("admin created")
		return nil
	case err != nil:
		return fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	if user.Role == models.RoleAdmin {
		return nil
	}
	if err := a.userRepo.UpdateUserRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return fmt.Errorf("%s: failed to promote user: %w", op, err)
	}
	logger.Info("user promoted to admin", slog.Int64("userID", user.ID))
	return nil
}

func (a *AuthService) createUser(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	// bcrypt сам добавляет соль
	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := a.userRepo.CreateUser(ctx, &models.User{
		Email:    email,
		PassHash: passHash,
		Role:     role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}
