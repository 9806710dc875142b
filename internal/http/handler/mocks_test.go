package handler_test

import (
	"context"
	"time"

	"github.com/magiciincaidev/callassist/internal/model"
	"github.com/magiciincaidev/callassist/internal/queue"
)

type mockCallService struct {
	createFn      func(ctx context.Context, userID, operatorID string) (*model.CallSession, error)
	getFn         func(ctx context.Context, sessionID string) (*model.CallSession, error)
	listFn        func(ctx context.Context) ([]model.CallSession, error)
	joinFn        func(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error)
	leaveFn       func(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error)
	endFn         func(ctx context.Context, sessionID string) (*model.CallSession, error)
	historyFn     func(ctx context.Context, sessionID string) ([]model.ConversationMessage, error)
	processFn     func(ctx context.Context, sessionID, message, guidelines string) (*model.Suggestion, error)
	clearFn       func(ctx context.Context, sessionID string) error
	clearAllFn    func(ctx context.Context) (int, error)
	clearCalls    int
	clearAllCalls int
}

func (m *mockCallService) Create(ctx context.Context, userID, operatorID string) (*model.CallSession, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, operatorID)
	}
	return nil, nil
}

func (m *mockCallService) Get(ctx context.Context, sessionID string) (*model.CallSession, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockCallService) List(ctx context.Context) ([]model.CallSession, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCallService) ActiveCount(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *mockCallService) Join(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, sessionID, participantID, role)
	}
	return nil, nil
}

func (m *mockCallService) Leave(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error) {
	if m.leaveFn != nil {
		return m.leaveFn(ctx, sessionID, participantID, role)
	}
	return nil, nil
}

func (m *mockCallService) End(ctx context.Context, sessionID string) (*model.CallSession, error) {
	if m.endFn != nil {
		return m.endFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockCallService) History(ctx context.Context, sessionID string) ([]model.ConversationMessage, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockCallService) ProcessUserMessage(ctx context.Context, sessionID, message, guidelines string) (*model.Suggestion, error) {
	if m.processFn != nil {
		return m.processFn(ctx, sessionID, message, guidelines)
	}
	return nil, nil
}

func (m *mockCallService) ClearSession(ctx context.Context, sessionID string) error {
	m.clearCalls++
	if m.clearFn != nil {
		return m.clearFn(ctx, sessionID)
	}
	return nil
}

func (m *mockCallService) ClearAllSessions(ctx context.Context) (int, error) {
	m.clearAllCalls++
	if m.clearAllFn != nil {
		return m.clearAllFn(ctx)
	}
	return 0, nil
}

type mockWatcher struct {
	watchFn func(ctx context.Context, sessionID, lastID string, block time.Duration) ([]queue.SessionEvent, error)
}

func (m *mockWatcher) Watch(ctx context.Context, sessionID, lastID string, block time.Duration) ([]queue.SessionEvent, error) {
	if m.watchFn != nil {
		return m.watchFn(ctx, sessionID, lastID, block)
	}
	return nil, nil
}
