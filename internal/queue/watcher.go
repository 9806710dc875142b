package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magiciincaidev/callassist/common/logger"
)

// Watcher blocks on a session's event stream until new lifecycle events
// arrive. This replaces interval polling of shared state: a participant's
// context observes the other side's join/leave within one blocking read
// instead of one polling window.
type Watcher interface {
	// Watch returns events after lastID, blocking up to block for the first
	// one. A lastID of "" or "0" reads the stream from its beginning. An
	// empty slice means the block timeout elapsed with nothing new.
	Watch(ctx context.Context, sessionID, lastID string, block time.Duration) ([]SessionEvent, error)
}

type redisWatcher struct {
	client       *redis.Client
	streamPrefix string
}

func NewRedisWatcher(client *redis.Client, streamPrefix string) Watcher {
	return &redisWatcher{client: client, streamPrefix: streamPrefix}
}

func (w *redisWatcher) Watch(ctx context.Context, sessionID, lastID string, block time.Duration) ([]SessionEvent, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(sessionID),
		Component: "callassist.queue.watcher",
	})

	if lastID == "" {
		lastID = "0"
	}

	streams, err := w.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamName(w.streamPrefix, sessionID), lastID},
		Count:   64,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []SessionEvent{}, nil
		}
		return nil, fmt.Errorf("reading event stream: %w", err)
	}

	var events []SessionEvent
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev, parseErr := parseEvent(msg)
			if parseErr != nil {
				slog.WarnContext(ctx, "skipping malformed session event", "error", parseErr, "entry_id", msg.ID)
				continue
			}
			events = append(events, ev)
		}
	}

	return events, nil
}
