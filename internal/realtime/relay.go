package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/tendant/simple-classroom/pkg/events"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by all API nodes.
const DefaultRelayChannel = "classroom:live"

const (
	relayBuffer  = 256
	relayTimeout = 2 * time.Second
)

type relayMessage struct {
	Origin string          `json:"origin"`
	Room   events.Room     `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay shares published frames between API nodes over Redis pub/sub
// so a session receives events published on any node. Frames a node
// published itself are ignored when they come back.
type RedisRelay struct {
	client  *redis.Client
	channel string
	nodeID  string
	out     chan relayMessage
	logger  *slog.Logger
}

// NewRedisClient parses url and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// NewRedisRelay creates a relay on channel. An empty channel uses DefaultRelayChannel.
func NewRedisRelay(client *redis.Client, channel string, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		nodeID:  uuid.NewString(),
		out:     make(chan relayMessage, relayBuffer),
		logger:  logger,
	}
}

// Forward queues frame for other nodes. When the queue is full the frame
// is dropped.
func (r *RedisRelay) Forward(room events.Room, frame []byte) {
	select {
	case r.out <- relayMessage{Origin: r.nodeID, Room: room, Frame: frame}:
	default:
		r.logger.Warn("live relay queue full, dropping frame", "room", room)
	}
}

// Run publishes queued frames and hands frames from other nodes to deliver
// until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, deliver func(room events.Room, frame []byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	incoming := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.out:
			r.publish(ctx, msg)
		case m, ok := <-incoming:
			if !ok {
				return nil
			}
			r.receive(m.Payload, deliver)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, msg relayMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to encode relay message", "error", err, "room", msg.Room)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to relay live frame", "error", err, "room", msg.Room)
	}
}

func (r *RedisRelay) receive(payload string, deliver func(events.Room, []byte)) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("ignoring malformed relay message", "error", err)
		return
	}
	if msg.Origin == r.nodeID {
		return
	}
	deliver(msg.Room, msg.Frame)
}
