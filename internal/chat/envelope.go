package chat

import "github.com/linemk/order-portal/internal/domain/models"

type EnvelopeType string

const (
	TypeHistory  EnvelopeType = "history"
	TypeMessage  EnvelopeType = "message"
	TypePresence EnvelopeType = "presence"
	TypeOrder    EnvelopeType = "order"
	TypeError    EnvelopeType = "error"

	// набор текста, отправителю не возвращаются
	TypeTyping     EnvelopeType = "typing"
	TypeStopTyping EnvelopeType = "stop_typing"
)

// Envelope кадр, уходящий клиенту чата. Заполнены только поля своего типа.
type Envelope struct {
	Type    EnvelopeType       `json:"type"`
	Origin  string             `json:"origin,omitempty"` // инстанс, отправивший событие
	Message *models.Message    `json:"message,omitempty"`
	History []*models.Message  `json:"history,omitempty"`
	Users   []string           `json:"users,omitempty"`
	User    string             `json:"user,omitempty"`
	Count   int                `json:"count,omitempty"`
	Order   *models.OrderEvent `json:"order,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// inbound то, что присылает клиент. Пустой type означает сообщение.
type inbound struct {
	Type    EnvelopeType `json:"type"`
	Message string       `json:"message"`
}
