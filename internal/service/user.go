package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

// UserService управление пользователями, только для администраторов.
type UserService interface {
	ListUsers(ctx context.Context, principal models.Principal) ([]*models.User, error)
	GetUser(ctx context.Context, principal models.Principal, id int64) (*models.User, error)
	UpdateRole(ctx context.Context, principal models.Principal, id int64, role string) (*models.User, error)
	DeleteUser(ctx context.Context, principal models.Principal, id int64) error
}

type userService struct {
	log      *slog.Logger
	userRepo storage.UserStorage
}

func NewUserService(log *slog.Logger, userRepo storage.UserStorage) UserService {
	return &userService{
		log:      log,
		userRepo: userRepo,
	}
}

func (s *userService) ListUsers(ctx context.Context, principal models.Principal) ([]*models.User, error) {
	const op = "service.UserService.ListUsers"

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	users, err := s.userRepo.ListUsers(ctx)
	if err != nil {
		s.log.Error("failed to list users", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list users: %w", op, err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

func (s *userService) GetUser(ctx context.Context, principal models.Principal, id int64) (*models.User, error) {
	const op = "service.UserService.GetUser"

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.log.Error("failed to get user", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}
	return user, nil
}

// UpdateRole новая роль действует со следующего входа: в уже выданном токене остаётся старая
func (s *userService) UpdateRole(ctx context.Context, principal models.Principal, id int64, role string) (*models.User, error) {
	const op = "service.UserService.UpdateRole"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", id), slog.Int64("adminID", principal.UserID))

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	parsed, ok := models.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("%w: role must be user or admin", ErrInvalidInput)
	}

	if err := s.userRepo.UpdateUserRole(ctx, id, parsed); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Error("failed to update role", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update role: %w", op, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		logger.Error("failed to reload user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to reload user: %w", op, err)
	}

	logger.Info("user role updated", slog.String("role", string(parsed)))
	return user, nil
}

// DeleteUser себя удалить нельзя, пользователя с заказами тоже
func (s *userService) DeleteUser(ctx context.Context, principal models.Principal, id int64) error {
	const op = "service.UserService.DeleteUser"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", id), slog.Int64("adminID", principal.UserID))

	if !principal.IsAdmin() {
		return ErrForbidden
	}
	if id == principal.UserID {
		return fmt.Errorf("%w: cannot delete your own account", ErrInvalidInput)
	}

	if err := s.userRepo.DeleteUser(ctx, id); err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			return ErrUserNotFound
		case errors.Is(err, storage.ErrUserHasOrders):
			logger.Warn("user has orders")
			return ErrUserHasOrders
		}
		logger.Error("failed to delete user", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete user: %w", op, err)
	}

	logger.Info("user deleted")
	return nil
}
