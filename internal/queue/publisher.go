package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher emits session lifecycle events to the per-session stream.
type Publisher interface {
	Publish(ctx context.Context, ev SessionEvent) error
	Close() error
}

type redisPublisher struct {
	client       *redis.Client
	streamPrefix string
	logger       *slog.Logger
}

func NewRedisPublisher(client *redis.Client, streamPrefix string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisPublisher{
		client:       client,
		streamPrefix: streamPrefix,
		logger:       logger,
	}
}

func (p *redisPublisher) Publish(ctx context.Context, ev SessionEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(p.streamPrefix, ev.SessionID),
		Values: eventValues(ev),
	}).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}

	p.logger.DebugContext(ctx, "published session event",
		"type", ev.Type, "session_id", ev.SessionID, "status", ev.Status)
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}

type noopPublisher struct{}

// NewNoopPublisher returns a Publisher that drops events. Used when running
// against the in-memory store, where there is no second context to notify.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, SessionEvent) error { return nil }
func (noopPublisher) Close() error                                { return nil }
