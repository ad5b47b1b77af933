package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/linemk/order-portal/internal/domain/models"
)

// MessageStorage описывает методы для работы с историей чата.
type MessageStorage interface {
	// CreateMessage сохраняет сообщение и заполняет ID и время создания.
	CreateMessage(ctx context.Context, msg *models.Message) error
	// GetRecentMessages возвращает последние limit сообщений комнаты в хронологическом порядке.
	GetRecentMessages(ctx context.Context, room string, limit int) ([]*models.Message, error)
}

type messageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageStorage {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `INSERT INTO messages (user_id, username, body, room, created_at)
	          VALUES ($1, $2, $3, $4, NOW()) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, msg.UserID, msg.Username, msg.Body, msg.Room).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) GetRecentMessages(ctx context.Context, room string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, user_id, username, body, room, created_at
		FROM messages
		WHERE room = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Body, &m.Room, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// из БД пришли новые первыми, клиенту нужна хронология
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
