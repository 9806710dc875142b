package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/magiciincaidev/callassist/common/logger"
	"github.com/magiciincaidev/callassist/internal/model"
)

type redisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a SessionStore backed by Redis. Redis is the
// shared namespace both participants' contexts read and write; the version
// check on Update is what keeps their read-modify-write cycles from
// clobbering each other.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (*model.CallSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session model.CallSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.Valid() {
		// Corrupted or partially written record. Discard it so the next
		// reader doesn't trip over the same data.
		s.discard(ctx, sessionKey(sessionID), err)
		return nil, ErrNotFound
	}

	return &session, nil
}

func (s *redisSessionStore) Create(ctx context.Context, session *model.CallSession) error {
	session.Version = 1
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.SessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Update(ctx context.Context, session *model.CallSession) error {
	key := sessionKey(session.SessionID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("read for update: %w", err)
		}

		var current model.CallSession
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("parse stored session: %w", err)
		}
		if current.Version != session.Version {
			return ErrConflict
		}

		next := *session
		next.Version++
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}

		session.Version = next.Version
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Someone else wrote between our read and the MULTI/EXEC.
		return ErrConflict
	}
	return err
}

func (s *redisSessionStore) Delete(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)

	keys := []string{
		sessionKey(sessionID),
		constraintsKey(sessionID),
		participantsKey(sessionID),
	}
	if err == nil {
		keys = append(keys, historyKey(session.ConversationID))
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete session records: %w", err)
	}
	return nil
}

func (s *redisSessionStore) DeleteAll(ctx context.Context) (int, error) {
	cleared := 0
	prefixes := []string{sessionKeyPrefix, constraintsKeyPrefix, participantsKeyPrefix, historyKeyPrefix}
	for _, prefix := range prefixes {
		var keys []string
		iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return 0, fmt.Errorf("scan %s: %w", prefix, err)
		}
		if prefix == sessionKeyPrefix {
			cleared = len(keys)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return 0, fmt.Errorf("delete %s records: %w", prefix, err)
			}
		}
	}
	return cleared, nil
}

func (s *redisSessionStore) List(ctx context.Context) ([]model.CallSession, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "callassist.store.redis",
	})

	var sessions []model.CallSession
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // deleted between SCAN and GET
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}

		var session model.CallSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.Valid() {
			s.discard(ctx, key, err)
			continue
		}
		sessions = append(sessions, session)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	return sessions, nil
}

// discard removes a record that failed parsing or structural validation.
// Non-fatal: the scan self-heals the namespace rather than raising.
func (s *redisSessionStore) discard(ctx context.Context, key string, parseErr error) {
	slog.WarnContext(ctx, "discarding corrupted session record", "key", key, "error", parseErr)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		slog.WarnContext(ctx, "failed to delete corrupted record", "key", key, "error", err)
	}
}

func (s *redisSessionStore) SaveConstraints(ctx context.Context, sessionID string, c model.Constraints) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}
	if err := s.client.Set(ctx, constraintsKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("save constraints: %w", err)
	}
	return nil
}

func (s *redisSessionStore) GetConstraints(ctx context.Context, sessionID string) (*model.Constraints, error) {
	raw, err := s.client.Get(ctx, constraintsKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get constraints: %w", err)
	}
	var c model.Constraints
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("parse constraints: %w", err)
	}
	return &c, nil
}

func (s *redisSessionStore) SaveParticipants(ctx context.Context, sessionID string, p model.Participants) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	if err := s.client.Set(ctx, participantsKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("save participants: %w", err)
	}
	return nil
}

func (s *redisSessionStore) GetParticipants(ctx context.Context, sessionID string) (*model.Participants, error) {
	raw, err := s.client.Get(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get participants: %w", err)
	}
	var p model.Participants
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("parse participants: %w", err)
	}
	return &p, nil
}

func (s *redisSessionStore) AppendMessage(ctx context.Context, conversationID string, msg model.ConversationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey(conversationID), data).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *redisSessionStore) History(ctx context.Context, conversationID string) ([]model.ConversationMessage, error) {
	raws, err := s.client.LRange(ctx, historyKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	messages := make([]model.ConversationMessage, 0, len(raws))
	for _, raw := range raws {
		var msg model.ConversationMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			slog.WarnContext(ctx, "skipping corrupted history entry", "conversation_id", conversationID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
