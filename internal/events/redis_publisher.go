package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentforge/agentforge/internal/registry"
	"github.com/agentforge/agentforge/pkg/logging"
)

// PublisherConfig controls where registry events land in Redis
type PublisherConfig struct {
	// Channel is the pub/sub channel events are broadcast on
	Channel string
	// HistoryKey is the list holding the most recent events; empty disables
	// history
	HistoryKey string
	// HistoryLimit caps the history list length
	HistoryLimit int64
}

// DefaultPublisherConfig returns the conventional key layout for a registry
func DefaultPublisherConfig(registryName string) PublisherConfig {
	return PublisherConfig{
		Channel:      fmt.Sprintf("agentforge:events:%s", registryName),
		HistoryKey:   fmt.Sprintf("agentforge:events:%s:history", registryName),
		HistoryLimit: 1000,
	}
}

// RedisPublisher mirrors registry events into Redis so other processes can
// observe registrations, hot-swaps and health transitions.
type RedisPublisher struct {
	client *redis.Client
	config PublisherConfig
	logger *logging.Logger
}

// NewRedisPublisher creates a publisher on an existing client
func NewRedisPublisher(client *redis.Client, config PublisherConfig) *RedisPublisher {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 1000
	}
	return &RedisPublisher{
		client: client,
		config: config,
		logger: logging.GetLogger(),
	}
}

// Publish broadcasts one event and appends it to the capped history list.
// Payload snapshots are dropped from the wire form; live handles do not
// serialize.
func (p *RedisPublisher) Publish(ctx context.Context, event registry.Event) error {
	wire := event
	wire.Payload = nil

	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("failed to marshal registry event: %w", err)
	}

	if err := p.client.Publish(ctx, p.config.Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish registry event: %w", err)
	}

	if p.config.HistoryKey != "" {
		pipe := p.client.Pipeline()
		pipe.LPush(ctx, p.config.HistoryKey, data)
		pipe.LTrim(ctx, p.config.HistoryKey, 0, p.config.HistoryLimit-1)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to record event history: %w", err)
		}
	}

	return nil
}

// Listener adapts the publisher into a registry listener. Publish failures
// are logged, never propagated into the emitting registry.
func (p *RedisPublisher) Listener(ctx context.Context) registry.Listener {
	return func(event registry.Event) {
		if err := p.Publish(ctx, event); err != nil {
			p.logger.Error("Failed to publish registry event to Redis",
				"channel", p.config.Channel,
				"event_type", string(event.Type),
				"item_name", event.ItemName,
				"error", err.Error(),
			)
		}
	}
}

// History returns up to limit recent events, newest first
func (p *RedisPublisher) History(ctx context.Context, limit int64) ([]registry.Event, error) {
	if p.config.HistoryKey == "" {
		return nil, nil
	}
	if limit <= 0 || limit > p.config.HistoryLimit {
		limit = p.config.HistoryLimit
	}

	raw, err := p.client.LRange(ctx, p.config.HistoryKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	events := make([]registry.Event, 0, len(raw))
	for _, item := range raw {
		var event registry.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			p.logger.Warn("Skipping undecodable event in history",
				"key", p.config.HistoryKey,
				"error", err.Error(),
			)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Ping verifies the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
