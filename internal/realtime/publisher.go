package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Publisher is the outbound half of the transport. Delivery is best effort:
// callers treat a failed publish as a missed optimization, never as a failed
// operation.
type Publisher interface {
	Publish(ctx context.Context, channel string, event string, payload any) error
}

// Envelope is the wire frame carried over both redis and the websocket.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

func encodeEnvelope(channel, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Channel: channel, Event: event, Data: data})
}

// RedisPublisher fans events out through redis pub/sub so every server
// instance can forward them to its own websocket clients.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, event string, payload any) error {
	encoded, err := encodeEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, encoded).Err()
}
