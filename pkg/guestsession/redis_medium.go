package guestsession

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisMedium persists snapshots to a Redis key and broadcasts change
// notifications over a pub/sub channel, so multiple storefront instances
// sharing the key can resynchronize when any of them saves.
type RedisMedium struct {
	client  redis.UniversalClient
	key     string
	channel string

	// instanceID tags our own publishes so Watch can ignore them.
	instanceID string
}

// RedisMediumOption configures a RedisMedium.
type RedisMediumOption func(*RedisMedium)

// WithSnapshotKey overrides the default snapshot key.
func WithSnapshotKey(key string) RedisMediumOption {
	return func(m *RedisMedium) {
		if key != "" {
			m.key = key
			m.channel = key + ":changed"
		}
	}
}

// NewRedisMedium creates a Redis-backed snapshot medium.
func NewRedisMedium(client redis.UniversalClient, opts ...RedisMediumOption) (*RedisMedium, error) {
	if client == nil {
		return nil, errors.New("guestsession: redis client is required")
	}

	m := &RedisMedium{
		client:     client,
		key:        "guestsession:snapshot",
		channel:    "guestsession:snapshot:changed",
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *RedisMedium) Load(ctx context.Context) ([]byte, error) {
	data, err := m.client.Get(ctx, m.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *RedisMedium) Save(ctx context.Context, data []byte) error {
	if err := m.client.Set(ctx, m.key, data, 0).Err(); err != nil {
		return err
	}
	// Best effort: a lost notification only delays resync until the next one.
	_ = m.client.Publish(ctx, m.channel, m.instanceID).Err()
	return nil
}

// Watch subscribes to the change channel and signals on saves made by other
// instances. The subscription lives until ctx is cancelled.
func (m *RedisMedium) Watch(ctx context.Context) (<-chan struct{}, error) {
	pubsub := m.client.Subscribe(ctx, m.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				if msg.Payload == m.instanceID {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
					// Signal already pending, coalesce.
				}
			}
		}
	}()
	return ch, nil
}
