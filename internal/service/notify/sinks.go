package notify

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// Broadcaster is the subset of the websocket hub used for notifications.
type Broadcaster interface {
	Broadcast(projectID int64, payload []byte)
}

// HubSink streams outcomes to live subscribers of the project.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink constructs a HubSink.
func NewHubSink(hub Broadcaster) HubSink {
	return HubSink{hub: hub}
}

func (s HubSink) Name() string { return "websocket" }

func (s HubSink) Send(_ context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	s.hub.Broadcast(ev.ProjectID, payload)
	return nil
}

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes outcomes on channel "<prefix>:<projectID>".
type RedisSink struct {
	client Publisher
	prefix string
}

// NewRedisSink constructs a RedisSink.
func NewRedisSink(client Publisher, prefix string) RedisSink {
	if prefix == "" {
		prefix = "deployments"
	}
	return RedisSink{client: client, prefix: prefix}
}

// NewRedisClient connects to Redis for publishing.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (s RedisSink) Name() string { return "redis" }

// Channel returns the pub/sub channel of a project.
func (s RedisSink) Channel(projectID int64) string {
	return fmt.Sprintf("%s:%d", s.prefix, projectID)
}

func (s RedisSink) Send(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Channel(ev.ProjectID), payload).Err()
}
