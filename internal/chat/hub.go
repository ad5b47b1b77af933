package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linemk/order-portal/internal/domain/models"
)

const publishTimeout = 2 * time.Second

// ClientGauge получает число подключённых клиентов (метрики).
type ClientGauge interface {
	SetChatClients(n int)
}

type directMessage struct {
	client *Client
	data   []byte
}

// frame кадр для локальной раздачи; skip не получает его
type frame struct {
	data []byte
	skip *Client
}

// Hub держит подключения одного инстанса и раздаёт им события.
// Состав клиентов меняет только горутина Run.
type Hub struct {
	log        *slog.Logger
	id         string
	broker     Broker
	gauge      ClientGauge
	sendBuffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
	direct     chan directMessage
	outbound   chan []byte
	done       chan struct{}
}

// NewHub broker и gauge могут быть nil
func NewHub(log *slog.Logger, broker Broker, gauge ClientGauge, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		log:        log.With(slog.String("component", "chat.Hub")),
		id:         uuid.NewString(),
		broker:     broker,
		gauge:      gauge,
		sendBuffer: sendBuffer,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, sendBuffer),
		direct:     make(chan directMessage, sendBuffer),
		outbound:   make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run главный цикл хаба, возвращается после отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	if h.broker != nil {
		go h.publishLoop(ctx)
		go h.subscribeLoop(ctx)
	}

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("client connected", slog.Int64("userID", c.userID))
			h.presenceChanged()

		case c := <-h.unregister:
			if h.remove(c) {
				h.log.Debug("client disconnected", slog.Int64("userID", c.userID))
				h.presenceChanged()
			}

		case f := <-h.broadcast:
			if h.deliver(f.data, f.skip) > 0 {
				h.presenceChanged()
			}

		case dm := <-h.direct:
			h.mu.RLock()
			_, ok := h.clients[dm.client]
			h.mu.RUnlock()
			if ok {
				select {
				case dm.client.send <- dm.data:
				default:
				}
			}

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.setGauge(0)
			close(h.done)
			return
		}
	}
}

// Register false, если хаб уже остановлен
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dispatch отправляет событие всем клиентам этого инстанса и, если есть брокер, остальным.
// Не блокирует: при переполненной очереди событие отбрасывается.
func (h *Hub) Dispatch(env Envelope) {
	h.dispatch(env, nil)
}

// dispatchFrom как Dispatch, но локальный отправитель кадр не получает.
// На других инстансах отправителя нет, там кадр уходит всем.
func (h *Hub) dispatchFrom(sender *Client, env Envelope) {
	h.dispatch(env, sender)
}

func (h *Hub) dispatch(env Envelope, skip *Client) {
	env.Origin = h.id
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to marshal chat event", slog.Any("error", err))
		return
	}
	h.enqueueLocal(frame{data: data, skip: skip})
	if h.broker != nil {
		select {
		case h.outbound <- data:
		default:
			h.log.Warn("chat queue is full, event dropped", slog.String("queue", "outbound"))
		}
	}
}

// NotifyOrder публикует факт о заказе. Никогда не задерживает операцию с заказом.
func (h *Hub) NotifyOrder(event models.OrderEvent) {
	h.Dispatch(Envelope{Type: TypeOrder, Order: &event})
}

// sendTo ответ одному клиенту (ошибки ввода и т.п.)
func (h *Hub) sendTo(c *Client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case h.direct <- directMessage{client: c, data: data}:
	default:
	}
}

func (h *Hub) enqueueLocal(f frame) {
	select {
	case h.broadcast <- f:
	default:
		h.log.Warn("chat queue is full, event dropped", slog.String("queue", "broadcast"))
	}
}

// deliver раздаёт кадр локальным клиентам; медленные отключаются. Возвращает число отключённых.
func (h *Hub) deliver(data []byte, skip *Client) int {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if c == skip {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	removed := 0
	for _, c := range slow {
		if h.remove(c) {
			removed++
			h.log.Warn("slow chat client dropped", slog.Int64("userID", c.userID))
		}
	}
	return removed
}

func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// presenceChanged присутствие считается по этому инстансу
func (h *Hub) presenceChanged() {
	h.mu.RLock()
	seen := make(map[string]struct{}, len(h.clients))
	users := make([]string, 0, len(h.clients))
	for c := range h.clients {
		if _, ok := seen[c.username]; ok {
			continue
		}
		seen[c.username] = struct{}{}
		users = append(users, c.username)
	}
	count := len(h.clients)
	h.mu.RUnlock()

	sort.Strings(users)
	h.setGauge(count)

	data, err := json.Marshal(Envelope{Type: TypePresence, Users: users, Count: count})
	if err != nil {
		return
	}
	h.deliver(data, nil)
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.SetChatClients(n)
	}
}

func (h *Hub) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-h.outbound:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := h.broker.Publish(pctx, data); err != nil {
				h.log.Error("failed to publish chat event", slog.Any("error", err))
			}
			cancel()
		}
	}
}

func (h *Hub) subscribeLoop(ctx context.Context) {
	ch, err := h.broker.Subscribe(ctx)
	if err != nil {
		h.log.Error("failed to subscribe, chat stays local", slog.Any("error", err))
		return
	}
	for payload := range ch {
		var env struct {
			Origin string `json:"origin"`
		}
		if err := json.Unmarshal(payload, &env); err != nil {
			h.log.Warn("malformed chat event from broker", slog.Any("error", err))
			continue
		}
		// свои события уже доставлены локально
		if env.Origin == h.id {
			continue
		}
		h.enqueueLocal(frame{data: payload})
	}
}
