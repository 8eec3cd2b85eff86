package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisArea stores items in a Redis hash and propagates change sets over
// Redis pub/sub, so every process sharing the hash observes every write.
type RedisArea struct {
	name    string
	client  *redis.Client
	hash    string
	channel string
	mu      sync.Mutex
	feed    Feed
	pubsub  *redis.PubSub
	logger  *log.Logger
}

// ConnectRedis parses url and verifies the server is reachable
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

// NewRedisArea creates an area under keyPrefix and starts relaying change sets
func NewRedisArea(ctx context.Context, name, keyPrefix string, client *redis.Client) (*RedisArea, error) {
	a := &RedisArea{
		name:    name,
		client:  client,
		hash:    fmt.Sprintf("%s:%s", keyPrefix, name),
		channel: fmt.Sprintf("%s:%s:changes", keyPrefix, name),
		logger:  log.New(log.Writer(), "[RedisArea] ", log.LstdFlags),
	}

	a.pubsub = client.Subscribe(ctx, a.channel)
	if _, err := a.pubsub.Receive(ctx); err != nil {
		a.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", a.channel, err)
	}

	go a.relay()
	return a, nil
}

// SetLogger sets a custom logger
func (a *RedisArea) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *RedisArea) Name() string { return a.name }

func (a *RedisArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	if len(keys) == 0 {
		all, err := a.client.HGetAll(ctx, a.hash).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", a.hash, err)
		}
		for key, value := range all {
			out[key] = json.RawMessage(value)
		}
		return out, nil
	}

	values, err := a.client.HMGet(ctx, a.hash, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.hash, err)
	}
	for i, value := range values {
		if s, ok := value.(string); ok {
			out[keys[i]] = json.RawMessage(s)
		}
	}
	return out, nil
}

func (a *RedisArea) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := validateItems(items); err != nil {
		return err
	}
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.Get(ctx, keys...)
	if err != nil {
		return err
	}
	cs := diffSet(a.name, current, items)
	if len(cs.Changes) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(cs.Changes))
	for key, change := range cs.Changes {
		fields[key] = string(change.NewValue)
	}
	if err := a.client.HSet(ctx, a.hash, fields).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.hash, err)
	}
	a.broadcast(ctx, cs)
	return nil
}

func (a *RedisArea) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.Get(ctx, keys...)
	if err != nil {
		return err
	}
	cs := diffRemove(a.name, current, keys)
	if len(cs.Changes) == 0 {
		return nil
	}
	if err := a.client.HDel(ctx, a.hash, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", a.hash, err)
	}
	a.broadcast(ctx, cs)
	return nil
}

func (a *RedisArea) Subscribe() *Subscription {
	return a.feed.Subscribe()
}

// Close stops relaying and ends all subscriptions; the client is owned by the caller
func (a *RedisArea) Close() error {
	err := a.pubsub.Close()
	a.feed.Close()
	return err
}

// announce publishes cs for all processes, this one included; local
// subscribers receive it through relay.
func (a *RedisArea) announce(ctx context.Context, cs ChangeSet) error {
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to marshal change set: %w", err)
	}
	if err := a.client.Publish(ctx, a.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change set: %w", err)
	}
	return nil
}

// broadcast announces a change that is already stored. If publishing fails
// only other processes miss it, so local subscribers are fed directly.
func (a *RedisArea) broadcast(ctx context.Context, cs ChangeSet) {
	if err := a.announce(ctx, cs); err != nil {
		a.logger.Printf("Change on %s not broadcast: %v", a.hash, err)
		a.feed.Publish(cs)
	}
}

func (a *RedisArea) relay() {
	for msg := range a.pubsub.Channel() {
		var cs ChangeSet
		if err := json.Unmarshal([]byte(msg.Payload), &cs); err != nil {
			a.logger.Printf("Dropping malformed change set on %s: %v", a.channel, err)
			continue
		}
		a.feed.Publish(cs)
	}
}
