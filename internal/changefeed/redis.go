package changefeed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "huddle:changes"

// RedisRelay publishes changes to the local broker and to Redis so that
// subscribers connected to other instances receive them too.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Broker
	logger  *log.Logger
}

type envelope struct {
	Origin string `json:"origin"`
	Change Change `json:"change"`
}

func NewRedisRelay(client *redis.Client, channel string, local *Broker, logger *log.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(c Change) {
	r.local.Publish(c)

	payload, err := json.Marshal(envelope{Origin: r.origin, Change: c})
	if err != nil {
		r.logger.Printf("changefeed: encode change for redis: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Printf("changefeed: redis publish: %v", err)
	}
}

// Run forwards changes published by other instances to the local broker
// until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Printf("changefeed: decode redis payload: %v", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.local.Publish(env.Change)
		}
	}
}
