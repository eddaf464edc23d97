package service

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const invalidationChannel = "gatehouse:snapshot:invalidate"

// Broadcaster relays snapshot invalidations between replicas over redis
// pub/sub so a grant change on one instance clears the local TTL cache on
// all of them. Without redis, replicas fall back to TTL expiry alone.
type Broadcaster struct {
	rdb *redis.Client
	log *zap.Logger

	mu       sync.Mutex
	handlers []func(localKey string)
	cancel   context.CancelFunc
}

func NewBroadcaster(rdb *redis.Client, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		rdb: rdb,
		log: log.Named("snapshot.broadcast"),
	}
}

// OnInvalidate registers a handler invoked for every invalidation received
// from another replica. Handlers must be registered before Start.
func (b *Broadcaster) OnInvalidate(fn func(localKey string)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

// Publish announces an invalidated (user, scopeKey) pair. Failures are
// logged, not returned: the persisted row is already deleted and other
// replicas converge via TTL expiry.
func (b *Broadcaster) Publish(ctx context.Context, localKey string) {
	if err := b.rdb.Publish(ctx, invalidationChannel, localKey).Err(); err != nil {
		b.log.Warn("publish invalidation", zap.String("key", localKey), zap.Error(err))
	}
}

func (b *Broadcaster) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	sub := b.rdb.Subscribe(ctx, invalidationChannel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.mu.Lock()
				handlers := append(([]func(string))(nil), b.handlers...)
				b.mu.Unlock()
				for _, fn := range handlers {
					fn(msg.Payload)
				}
			}
		}
	}()
}

func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.mu.Unlock()
}
