package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/magiciincaidev/callassist/internal/model"
)

// memorySessionStore is an in-process SessionStore with the same contract as
// the Redis implementation, including the version check on Update and the
// self-healing List scan. Used in tests and REDIS_URL-less development.
//
// Records are kept JSON-encoded so corruption scenarios behave exactly like
// the Redis store: a test can plant a malformed value and watch the scan
// discard it.
type memorySessionStore struct {
	mu      sync.Mutex
	records map[string]string
	history map[string][]string
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		records: make(map[string]string),
		history: make(map[string][]string),
	}
}

// Put plants a raw value under a key, bypassing validation. Test hook for
// corruption scenarios.
func (s *memorySessionStore) Put(key, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = raw
}

func (s *memorySessionStore) Get(_ context.Context, sessionID string) (*model.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(sessionID)
}

func (s *memorySessionStore) getLocked(sessionID string) (*model.CallSession, error) {
	raw, ok := s.records[sessionKey(sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	var session model.CallSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.Valid() {
		delete(s.records, sessionKey(sessionID))
		return nil, ErrNotFound
	}
	return &session, nil
}

func (s *memorySessionStore) Create(_ context.Context, session *model.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.Version = 1
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.records[sessionKey(session.SessionID)] = string(data)
	return nil
}

func (s *memorySessionStore) Update(_ context.Context, session *model.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getLocked(session.SessionID)
	if err != nil {
		return err
	}
	if current.Version != session.Version {
		return ErrConflict
	}

	next := *session
	next.Version++
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	s.records[sessionKey(session.SessionID)] = string(data)
	session.Version = next.Version
	return nil
}

func (s *memorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, err := s.getLocked(sessionID); err == nil {
		delete(s.history, historyKey(session.ConversationID))
	}
	delete(s.records, sessionKey(sessionID))
	delete(s.records, constraintsKey(sessionID))
	delete(s.records, participantsKey(sessionID))
	return nil
}

func (s *memorySessionStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for key := range s.records {
		if strings.HasPrefix(key, sessionKeyPrefix) {
			cleared++
		}
		delete(s.records, key)
	}
	for key := range s.history {
		delete(s.history, key)
	}
	return cleared, nil
}

func (s *memorySessionStore) List(_ context.Context) ([]model.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []model.CallSession
	for key, raw := range s.records {
		if !strings.HasPrefix(key, sessionKeyPrefix) {
			continue
		}
		var session model.CallSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil || !session.Valid() {
			delete(s.records, key)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *memorySessionStore) SaveConstraints(_ context.Context, sessionID string, c model.Constraints) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[constraintsKey(sessionID)] = string(data)
	return nil
}

func (s *memorySessionStore) GetConstraints(_ context.Context, sessionID string) (*model.Constraints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.records[constraintsKey(sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	var c model.Constraints
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *memorySessionStore) SaveParticipants(_ context.Context, sessionID string, p model.Participants) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[participantsKey(sessionID)] = string(data)
	return nil
}

func (s *memorySessionStore) GetParticipants(_ context.Context, sessionID string) (*model.Participants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.records[participantsKey(sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	var p model.Participants
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *memorySessionStore) AppendMessage(_ context.Context, conversationID string, msg model.ConversationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[historyKey(conversationID)] = append(s.history[historyKey(conversationID)], string(data))
	return nil
}

func (s *memorySessionStore) History(_ context.Context, conversationID string) ([]model.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raws := s.history[historyKey(conversationID)]
	messages := make([]model.ConversationMessage, 0, len(raws))
	for _, raw := range raws {
		var msg model.ConversationMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
