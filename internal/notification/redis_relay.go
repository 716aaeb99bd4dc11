package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRelayChannel = "procureflow:notifications"

type relayEnvelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

// RedisRelay republishes local notifications to other replicas through Redis pub/sub and
// hands notifications published by other replicas to the local sink.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	local   Sink
	out     chan Message
	log     *zap.Logger
}

func NewRedisRelay(client redis.UniversalClient, channel string, local Sink, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		out:     make(chan Message, 256),
		log:     log,
	}
}

// Deliver queues msg for publishing; it drops the message when the relay is backed up
func (r *RedisRelay) Deliver(msg Message) {
	select {
	case r.out <- msg:
	default:
		r.log.Warn("redis relay backlog full, dropping notification",
			zap.String("topic", msg.Topic), zap.String("type", msg.Notification.Type))
	}
}

// Run publishes queued messages and consumes remote ones until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	incoming := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.out:
			if err := r.publish(ctx, msg); err != nil {
				r.log.Warn("failed to relay notification", zap.String("topic", msg.Topic), zap.Error(err))
			}
		case m, ok := <-incoming:
			if !ok {
				return fmt.Errorf("subscription to %s closed", r.channel)
			}
			r.handlePayload(m.Payload)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Message: msg})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) handlePayload(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("discarding malformed relay payload", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.local.Deliver(env.Message)
}
