package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus over Redis Pub/Sub.
type RedisBus struct {
	client        *redis.Client
	subscriptions map[string]*redis.PubSub
	mu            sync.Mutex
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
	}, nil
}

func (r *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	return r.client.Publish(ctx, topic, data).Err()
}

func (r *RedisBus) SubscribePattern(ctx context.Context, pattern string) (<-chan *Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pubsub := r.client.PSubscribe(ctx, pattern)

	// Confirm the subscription is active before handing messages out.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	// A resubscribe for the same pattern supersedes the previous
	// subscription; close it so its pump goroutine and connection go away.
	if old, ok := r.subscriptions[pattern]; ok {
		old.Close()
	}
	r.subscriptions[pattern] = pubsub

	msgCh := make(chan *Message, 100)
	go r.pump(ctx, pubsub, msgCh)

	return msgCh, nil
}

func (r *RedisBus) pump(ctx context.Context, pubsub *redis.PubSub, out chan<- *Message) {
	defer close(out)

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
			case out <- &Message{Topic: msg.Channel, Data: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RedisBus) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pubsub := range r.subscriptions {
		pubsub.Close()
	}
	r.subscriptions = make(map[string]*redis.PubSub)

	return r.client.Close()
}
