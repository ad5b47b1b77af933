package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linemk/order-portal/internal/domain/models"
	security "github.com/linemk/order-portal/internal/jwt-new"
	"github.com/linemk/order-portal/internal/service"
	"github.com/linemk/order-portal/internal/storage"
)

const (
	// время на запись одного кадра
	writeWait = 10 * time.Second

	// клиент должен ответить на ping за это время
	pongWait = 60 * time.Second

	// должно быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4096

	postTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   int64
	username string
}

// ServeWS поднимает websocket для аутентифицированного пользователя.
// Токен передаётся в query (?token=) или в заголовке Authorization.
func ServeWS(log *slog.Logger, hub *Hub, chatSvc service.ChatService, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "chat.ServeWS"
		logger := log.With(slog.String("op", op))

		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		principal, err := security.ParseToken(secret, token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		username, err := chatSvc.Username(r.Context(), principal.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				http.Error(w, "unknown user", http.StatusUnauthorized)
				return
			}
			logger.Error("failed to resolve user", slog.Any("error", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		history, err := chatSvc.History(r.Context(), models.DefaultRoom)
		if err != nil {
			logger.Error("failed to load chat history", slog.Any("error", err))
			history = nil
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", slog.Any("error", err))
			return
		}

		client := &Client{
			hub:      hub,
			conn:     conn,
			send:     make(chan []byte, hub.sendBuffer),
			userID:   principal.UserID,
			username: username,
		}

		// история уходит первой, до регистрации в хабе
		if data, err := json.Marshal(Envelope{Type: TypeHistory, History: history}); err == nil {
			client.send <- data
		}

		if !hub.Register(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump(logger, chatSvc)
	}
}

func (c *Client) readPump(log *slog.Logger, chatSvc service.ChatService) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("unexpected websocket close", slog.Any("error", err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.hub.sendTo(c, Envelope{Type: TypeError, Error: "malformed message"})
			continue
		}

		switch in.Type {
		case TypeTyping, TypeStopTyping:
			c.hub.dispatchFrom(c, Envelope{Type: in.Type, User: c.username})
			continue
		case "", TypeMessage:
		default:
			c.hub.sendTo(c, Envelope{Type: TypeError, Error: "unknown message type"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
		msg, err := chatSvc.PostMessage(ctx, c.userID, models.DefaultRoom, in.Message)
		cancel()
		if err != nil {
			if errors.Is(err, service.ErrInvalidInput) {
				c.hub.sendTo(c, Envelope{Type: TypeError, Error: err.Error()})
				continue
			}
			log.Error("failed to post chat message", slog.Any("error", err))
			c.hub.sendTo(c, Envelope{Type: TypeError, Error: "message was not saved"})
			continue
		}

		c.hub.Dispatch(Envelope{Type: TypeMessage, Message: msg})
	}
}

// writePump единственный писатель в соединение
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// хаб закрыл канал
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
