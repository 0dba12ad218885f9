package state

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/gridrules/internal/infra"
	"go.uber.org/zap"
)

// Паузы между попытками подписки
var (
	subscribeRetryDelay = 5 * time.Second
	resubscribeDelay    = time.Second
)

// Subscription — подмножество *redis.PubSub, которое читает слушатель
type Subscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Subscriber открывает подписку на канал
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) Subscription
}

// RedisSubscriber адаптирует *redis.Client к Subscriber
type RedisSubscriber struct {
	Client *redis.Client
}

func (r RedisSubscriber) Subscribe(ctx context.Context, channel string) Subscription {
	return r.Client.Subscribe(ctx, channel)
}

// Listen держит подписку на обновления снимков и инвалидирует L1.
// Блокируется до отмены ctx.
func (s *Store) Listen(ctx context.Context, sub Subscriber) {
	ListenResilient(ctx, sub, s.logger, infra.RedisChanStateUpdated,
		func() error {
			// Пока подписки не было, сообщения могли потеряться
			s.Reset()
			return nil
		},
		s.Invalidate,
	)
}

// ListenResilient — цикл "живучей" подписки на канал Redis с переподключением.
func ListenResilient(
	ctx context.Context,
	sub Subscriber,
	logger *zap.Logger,
	channel string,
	onReconnect func() error,
	onMessage func(payload string),
) {
	for {
		pubsub := sub.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, subscribeRetryDelay) {
				return
			}
			continue
		}

		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				if msg.Payload == "" {
					logger.Error("empty signal payload", zap.String("chan", channel))
					continue
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, resubscribeDelay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
