package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

const MaxMessageLength = 1000

// ChatService история и сохранение сообщений чата
type ChatService interface {
	History(ctx context.Context, room string) ([]*models.Message, error)
	PostMessage(ctx context.Context, userID int64, room, body string) (*models.Message, error)
	Username(ctx context.Context, userID int64) (string, error)
}

type chatService struct {
	log          *slog.Logger
	userRepo     storage.UserStorage
	messageRepo  storage.MessageStorage
	historyLimit int
}

func NewChatService(log *slog.Logger, userRepo storage.UserStorage, messageRepo storage.MessageStorage, historyLimit int) ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &chatService{
		log:          log,
		userRepo:     userRepo,
		messageRepo:  messageRepo,
		historyLimit: historyLimit,
	}
}

func (s *chatService) History(ctx context.Context, room string) ([]*models.Message, error) {
	const op = "service.ChatService.History"

	if room == "" {
		room = models.DefaultRoom
	}
	messages, err := s.messageRepo.GetRecentMessages(ctx, room, s.historyLimit)
	if err != nil {
		s.log.Error("failed to load history", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

// PostMessage сохраняет сообщение от имени пользователя. Имя берётся из базы, а не от клиента.
func (s *chatService) PostMessage(ctx context.Context, userID int64, room, body string) (*models.Message, error) {
	const op = "service.ChatService.PostMessage"

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message is longer than %d characters", ErrInvalidInput, MaxMessageLength)
	}
	if room == "" {
		room = models.DefaultRoom
	}

	username, err := s.Username(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	msg := &models.Message{
		UserID:   userID,
		Username: username,
		Body:     body,
		Room:     room,
	}
	if err := s.messageRepo.CreateMessage(ctx, msg); err != nil {
		s.log.Error("failed to save message", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return msg, nil
}

func (s *chatService) Username(ctx context.Context, userID int64) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Email, nil
}
