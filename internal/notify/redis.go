package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events on Redis channels named <prefix>:<competitionID>
// and relays every channel under the prefix into a local Hub, so subscribers
// on any replica see events published on any other.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	hub    *Hub
	pubsub *redis.PubSub
}

// NewRedisNotifier connects to Redis and starts relaying published events
func NewRedisNotifier(ctx context.Context, address, password string, db int, prefix string) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	n := &RedisNotifier{
		client: client,
		prefix: prefix,
		hub:    NewHub(),
	}

	n.pubsub = client.PSubscribe(ctx, prefix+":*")
	if _, err := n.pubsub.Receive(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s:*: %w", prefix, err)
	}
	go n.relay()

	slog.Info("redis notifier started", "address", address, "prefix", prefix)
	return n, nil
}

func (n *RedisNotifier) channel(competitionID string) string {
	return n.prefix + ":" + competitionID
}

// Notify publishes e. Local subscribers receive it through the relay.
func (n *RedisNotifier) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(e.CompetitionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local handler
func (n *RedisNotifier) Subscribe(competitionID string, h Handler) *Subscription {
	return n.hub.Subscribe(competitionID, h)
}

func (n *RedisNotifier) relay() {
	for msg := range n.pubsub.Channel() {
		e, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			slog.Warn("dropping malformed notification", "channel", msg.Channel, "error", err)
			continue
		}
		if e.CompetitionID == "" {
			e.CompetitionID = strings.TrimPrefix(msg.Channel, n.prefix+":")
		}
		n.hub.Dispatch(e)
	}
}

// Ping checks the Redis connection
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close stops the relay and closes the client
func (n *RedisNotifier) Close() error {
	n.pubsub.Close()
	n.hub.Close()
	return n.client.Close()
}

func decodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if e.Type == "" {
		e.Type = EventScoreUpdate
	}
	return e, nil
}
