package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Broker разносит события чата между инстансами сервера.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe отдаёт канал входящих событий, закрывается по отмене ctx.
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

type RedisBroker struct {
	log     *slog.Logger
	client  *redis.Client
	channel string
}

func NewRedisBroker(log *slog.Logger, client *redis.Client, channel string) *RedisBroker {
	return &RedisBroker{
		log:     log,
		client:  client,
		channel: channel,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// дожидаемся подтверждения подписки, иначе первые события теряются
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	b.log.Info("subscribed to chat channel", slog.String("channel", b.channel))
	return out, nil
}
