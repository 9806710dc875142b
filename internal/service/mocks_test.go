package service_test

import (
	"context"

	"github.com/magiciincaidev/callassist/internal/model"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/store"
	"github.com/magiciincaidev/callassist/internal/suggest"
)

type mockSessionStore struct {
	getFn              func(ctx context.Context, sessionID string) (*model.CallSession, error)
	createFn           func(ctx context.Context, session *model.CallSession) error
	updateFn           func(ctx context.Context, session *model.CallSession) error
	deleteFn           func(ctx context.Context, sessionID string) error
	listFn             func(ctx context.Context) ([]model.CallSession, error)
	saveConstraintsFn  func(ctx context.Context, sessionID string, c model.Constraints) error
	getConstraintsFn   func(ctx context.Context, sessionID string) (*model.Constraints, error)
	saveParticipantsFn func(ctx context.Context, sessionID string, p model.Participants) error
	getParticipantsFn  func(ctx context.Context, sessionID string) (*model.Participants, error)
	appendMessageFn    func(ctx context.Context, conversationID string, msg model.ConversationMessage) error
	historyFn          func(ctx context.Context, conversationID string) ([]model.ConversationMessage, error)
	deleteAllFn        func(ctx context.Context) (int, error)
	deleteCalls        int
}

func (m *mockSessionStore) Get(ctx context.Context, sessionID string) (*model.CallSession, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sessionID)
	}
	return nil, store.ErrNotFound
}

func (m *mockSessionStore) Create(ctx context.Context, session *model.CallSession) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionStore) Update(ctx context.Context, session *model.CallSession) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, session)
	}
	return nil
}

func (m *mockSessionStore) Delete(ctx context.Context, sessionID string) error {
	m.deleteCalls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionStore) DeleteAll(ctx context.Context) (int, error) {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx)
	}
	return 0, nil
}

func (m *mockSessionStore) List(ctx context.Context) ([]model.CallSession, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockSessionStore) SaveConstraints(ctx context.Context, sessionID string, c model.Constraints) error {
	if m.saveConstraintsFn != nil {
		return m.saveConstraintsFn(ctx, sessionID, c)
	}
	return nil
}

func (m *mockSessionStore) GetConstraints(ctx context.Context, sessionID string) (*model.Constraints, error) {
	if m.getConstraintsFn != nil {
		return m.getConstraintsFn(ctx, sessionID)
	}
	return nil, store.ErrNotFound
}

func (m *mockSessionStore) SaveParticipants(ctx context.Context, sessionID string, p model.Participants) error {
	if m.saveParticipantsFn != nil {
		return m.saveParticipantsFn(ctx, sessionID, p)
	}
	return nil
}

func (m *mockSessionStore) GetParticipants(ctx context.Context, sessionID string) (*model.Participants, error) {
	if m.getParticipantsFn != nil {
		return m.getParticipantsFn(ctx, sessionID)
	}
	return nil, store.ErrNotFound
}

func (m *mockSessionStore) AppendMessage(ctx context.Context, conversationID string, msg model.ConversationMessage) error {
	if m.appendMessageFn != nil {
		return m.appendMessageFn(ctx, conversationID, msg)
	}
	return nil
}

func (m *mockSessionStore) History(ctx context.Context, conversationID string) ([]model.ConversationMessage, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, conversationID)
	}
	return nil, nil
}

// bind wires the mock's get/update over a single session variable with the
// same version check the real stores apply, so rendezvous flows can be
// exercised end to end.
func (m *mockSessionStore) bind(session *model.CallSession) {
	m.getFn = func(_ context.Context, sessionID string) (*model.CallSession, error) {
		if session == nil || sessionID != session.SessionID {
			return nil, store.ErrNotFound
		}
		copied := *session
		return &copied, nil
	}
	m.updateFn = func(_ context.Context, updated *model.CallSession) error {
		if updated.Version != session.Version {
			return store.ErrConflict
		}
		next := *updated
		next.Version++
		*session = next
		updated.Version = next.Version
		return nil
	}
}

type mockPublisher struct {
	publishFn func(ctx context.Context, ev queue.SessionEvent) error
	events    []queue.SessionEvent
}

func (m *mockPublisher) Publish(ctx context.Context, ev queue.SessionEvent) error {
	m.events = append(m.events, ev)
	if m.publishFn != nil {
		return m.publishFn(ctx, ev)
	}
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) typesSeen() []queue.EventType {
	types := make([]queue.EventType, 0, len(m.events))
	for _, ev := range m.events {
		types = append(types, ev.Type)
	}
	return types
}

type mockSuggestService struct {
	nextActionFn func(ctx context.Context, req suggest.Request) (*model.Suggestion, error)
}

func (m *mockSuggestService) NextAction(ctx context.Context, req suggest.Request) (*model.Suggestion, error) {
	if m.nextActionFn != nil {
		return m.nextActionFn(ctx, req)
	}
	return &model.Suggestion{
		Action:     "問題の詳細ヒアリング",
		Priority:   model.PriorityMedium,
		Confidence: 80,
	}, nil
}
