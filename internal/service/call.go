package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magiciincaidev/callassist/common/id"
	"github.com/magiciincaidev/callassist/common/logger"
	"github.com/magiciincaidev/callassist/core/config"
	"github.com/magiciincaidev/callassist/internal/model"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/store"
	"github.com/magiciincaidev/callassist/internal/suggest"
)

// joinRetryAttempts bounds the re-read-and-retry loop when a join or leave
// loses the version race against the other participant's context.
const joinRetryAttempts = 3

// historyWindow is how many recent turns accompany a suggestion request.
const historyWindow = 10

var (
	ErrSessionNotFound = errors.New("セッションが見つかりません")
	ErrCapacity        = errors.New("同時ペア数の制限に達しています")
	ErrConflict        = errors.New("セッションの更新が競合しました")
	ErrSuggestionFail  = errors.New("AI応答の取得に失敗しました")
)

// CallService orchestrates session creation, participant rendezvous,
// constraint enforcement and the AI suggestion pipeline.
type CallService interface {
	Create(ctx context.Context, userID, operatorID string) (*model.CallSession, error)
	Get(ctx context.Context, sessionID string) (*model.CallSession, error)
	List(ctx context.Context) ([]model.CallSession, error)
	ActiveCount(ctx context.Context) (int, error)
	Join(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error)
	Leave(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error)
	End(ctx context.Context, sessionID string) (*model.CallSession, error)
	History(ctx context.Context, sessionID string) ([]model.ConversationMessage, error)
	ProcessUserMessage(ctx context.Context, sessionID, message, guidelines string) (*model.Suggestion, error)
	ClearSession(ctx context.Context, sessionID string) error
	ClearAllSessions(ctx context.Context) (int, error)
}

type callService struct {
	store       store.SessionStore
	events      queue.Publisher
	suggestions suggest.Service
	constraints config.ConstraintsConfig
}

func NewCallService(
	sessionStore store.SessionStore,
	events queue.Publisher,
	suggestions suggest.Service,
	constraints config.ConstraintsConfig,
) CallService {
	return &callService{
		store:       sessionStore,
		events:      events,
		suggestions: suggestions,
		constraints: constraints,
	}
}

func (s *callService) Create(ctx context.Context, userID, operatorID string) (*model.CallSession, error) {
	count, err := s.ActiveCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting active sessions: %w", err)
	}
	if count >= s.constraints.MaxConcurrentPairs {
		return nil, fmt.Errorf("%w。最大%d組まで利用可能です", ErrCapacity, s.constraints.MaxConcurrentPairs)
	}

	now := time.Now()
	session := &model.CallSession{
		SessionID:      id.NewSessionID(),
		UserID:         userID,
		OperatorID:     operatorID,
		ConversationID: id.NewConversationID(),
		StartTime:      now,
		Status:         model.SessionStatusWaiting,
		Constraints: model.Constraints{
			MaxConcurrentPairs: s.constraints.MaxConcurrentPairs,
			CreatedAt:          now,
			CleanupAt:          now.Add(s.constraints.CleanupDelay),
			MaxWaitingTime:     s.constraints.MaxWaitingTime,
		},
		Participants: model.Participants{
			User:     model.Participant{ID: userID, JoinedAt: now, Status: model.ParticipantStatusWaiting},
			Operator: model.Participant{ID: operatorID, JoinedAt: now, Status: model.ParticipantStatusWaiting},
		},
	}

	// Three independent writes, as the record layout demands: the session,
	// its constraint snapshot, and the participant-status record.
	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if err := s.store.SaveConstraints(ctx, session.SessionID, session.Constraints); err != nil {
		return nil, fmt.Errorf("saving constraints: %w", err)
	}
	if err := s.store.SaveParticipants(ctx, session.SessionID, session.Participants); err != nil {
		return nil, fmt.Errorf("saving participants: %w", err)
	}

	s.publish(ctx, queue.SessionEvent{
		Type:      queue.EventSessionCreated,
		SessionID: session.SessionID,
		Status:    session.Status,
		At:        now,
	})

	slog.InfoContext(ctx, "session created",
		"session_id", session.SessionID,
		"conversation_id", session.ConversationID,
		"user_id", userID,
		"operator_id", operatorID,
	)

	return session, nil
}

func (s *callService) Get(ctx context.Context, sessionID string) (*model.CallSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}
	// The stored status may be a stale write from the other context;
	// re-derive instead of trusting it.
	session.Status = session.DerivedStatus()
	return session, nil
}

func (s *callService) List(ctx context.Context) ([]model.CallSession, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	for i := range sessions {
		sessions[i].Status = sessions[i].DerivedStatus()
	}
	return sessions, nil
}

func (s *callService) ActiveCount(ctx context.Context) (int, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range sessions {
		if sessions[i].IsOpen() {
			count++
		}
	}
	return count, nil
}

// Join marks the participant joined and promotes the session to active once
// both slots are joined. Re-joining with the same role is idempotent: it
// refreshes JoinedAt without touching the session status.
func (s *callService) Join(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID:     logger.Ptr(sessionID),
		ParticipantID: logger.Ptr(participantID),
		Role:          logger.Ptr(string(role)),
	})

	return s.updateWithRetry(ctx, sessionID, func(session *model.CallSession) []queue.SessionEvent {
		now := time.Now()
		// The slot's ID is fixed at creation; a join only flips the slot's
		// status and refreshes the join time.
		p := session.Participants.Get(role)
		p.JoinedAt = now
		p.Status = model.ParticipantStatusJoined

		events := []queue.SessionEvent{{
			Type:          queue.EventParticipantJoined,
			SessionID:     sessionID,
			ParticipantID: participantID,
			Role:          role,
			Status:        session.Status,
			At:            now,
		}}

		bothJoined := session.Participants.User.Status == model.ParticipantStatusJoined &&
			session.Participants.Operator.Status == model.ParticipantStatusJoined
		if bothJoined && session.Status == model.SessionStatusWaiting {
			session.Status = model.SessionStatusActive
			events = append(events, queue.SessionEvent{
				Type:      queue.EventSessionActivated,
				SessionID: sessionID,
				Status:    session.Status,
				At:        now,
			})
			slog.InfoContext(ctx, "session activated", "session_id", sessionID)
		}

		return events
	})
}

// Leave marks the participant left. Either side leaving ends the whole
// session immediately; there is no reconnection grace period. Ended is
// terminal.
func (s *callService) Leave(ctx context.Context, sessionID, participantID string, role model.ParticipantRole) (*model.CallSession, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID:     logger.Ptr(sessionID),
		ParticipantID: logger.Ptr(participantID),
		Role:          logger.Ptr(string(role)),
	})

	return s.updateWithRetry(ctx, sessionID, func(session *model.CallSession) []queue.SessionEvent {
		now := time.Now()
		p := session.Participants.Get(role)
		p.LeftAt = &now
		p.Status = model.ParticipantStatusLeft

		events := []queue.SessionEvent{{
			Type:          queue.EventParticipantLeft,
			SessionID:     sessionID,
			ParticipantID: participantID,
			Role:          role,
			Status:        session.Status,
			At:            now,
		}}

		if session.Status != model.SessionStatusEnded {
			session.Status = model.SessionStatusEnded
			session.EndTime = &now
			events = append(events, queue.SessionEvent{
				Type:      queue.EventSessionEnded,
				SessionID: sessionID,
				Status:    session.Status,
				At:        now,
			})
			slog.InfoContext(ctx, "session ended by leave", "session_id", sessionID)
		}

		return events
	})
}

// End terminates the session explicitly, independent of participant state.
func (s *callService) End(ctx context.Context, sessionID string) (*model.CallSession, error) {
	return s.updateWithRetry(ctx, sessionID, func(session *model.CallSession) []queue.SessionEvent {
		if session.Status == model.SessionStatusEnded {
			return nil
		}
		now := time.Now()
		session.Status = model.SessionStatusEnded
		session.EndTime = &now
		return []queue.SessionEvent{{
			Type:      queue.EventSessionEnded,
			SessionID: sessionID,
			Status:    session.Status,
			At:        now,
		}}
	})
}

// updateWithRetry runs a read-modify-write cycle under the store's version
// check. When the other participant's context wins the race, the session is
// re-read and the mutation replayed, up to joinRetryAttempts times.
func (s *callService) updateWithRetry(
	ctx context.Context,
	sessionID string,
	mutate func(*model.CallSession) []queue.SessionEvent,
) (*model.CallSession, error) {
	for attempt := 1; ; attempt++ {
		session, err := s.store.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("getting session: %w", err)
		}

		events := mutate(session)

		err = s.store.Update(ctx, session)
		if errors.Is(err, store.ErrConflict) {
			if attempt < joinRetryAttempts {
				slog.DebugContext(ctx, "session update conflict, retrying", "attempt", attempt)
				continue
			}
			return nil, ErrConflict
		}
		if err != nil {
			return nil, fmt.Errorf("updating session: %w", err)
		}

		if err := s.store.SaveParticipants(ctx, sessionID, session.Participants); err != nil {
			return nil, fmt.Errorf("saving participants: %w", err)
		}

		for _, ev := range events {
			s.publish(ctx, ev)
		}
		return session, nil
	}
}

func (s *callService) History(ctx context.Context, sessionID string) ([]model.ConversationMessage, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, session.ConversationID)
}

// ProcessUserMessage appends the user's message to the conversation, asks the
// suggestion service for a next action, and appends the resulting AI message
// with the suggestion attached. Suggestion-pipeline errors are collapsed into
// a single generic failure for the caller.
func (s *callService) ProcessUserMessage(ctx context.Context, sessionID, message, guidelines string) (*model.Suggestion, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID:      logger.Ptr(sessionID),
		ConversationID: logger.Ptr(session.ConversationID),
	})

	history, err := s.store.History(ctx, session.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	userMsg := model.ConversationMessage{
		ID:        id.NewMessageID(),
		Timestamp: time.Now(),
		Sender:    model.SenderUser,
		Message:   message,
	}
	if err := s.store.AppendMessage(ctx, session.ConversationID, userMsg); err != nil {
		return nil, fmt.Errorf("appending user message: %w", err)
	}

	suggestion, err := s.suggestions.NextAction(ctx, suggest.Request{
		ConversationID: session.ConversationID,
		UserMessage:    message,
		History:        recentTurns(history),
		Guidelines:     guidelines,
	})
	if err != nil {
		slog.ErrorContext(ctx, "suggestion pipeline failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSuggestionFail, err)
	}

	aiMsg := model.ConversationMessage{
		ID:         id.NewMessageID(),
		Timestamp:  time.Now(),
		Sender:     model.SenderAI,
		Message:    suggestion.SuggestedResponse,
		Suggestion: suggestion,
	}
	if err := s.store.AppendMessage(ctx, session.ConversationID, aiMsg); err != nil {
		return nil, fmt.Errorf("appending ai message: %w", err)
	}

	return suggestion, nil
}

func (s *callService) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	slog.InfoContext(ctx, "session data cleared", "session_id", sessionID)
	return nil
}

func (s *callService) ClearAllSessions(ctx context.Context) (int, error) {
	// Sweeps every record namespace wholesale so orphans left behind by
	// discarded session records are cleared too.
	cleared, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing sessions: %w", err)
	}
	slog.InfoContext(ctx, "all session data cleared", "count", cleared)
	return cleared, nil
}

// recentTurns flattens the tail of the conversation into plain strings for
// the suggestion prompt.
func recentTurns(history []model.ConversationMessage) []string {
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	turns := make([]string, 0, len(history)-start)
	for _, msg := range history[start:] {
		turns = append(turns, fmt.Sprintf("%s: %s", msg.Sender, msg.Message))
	}
	return turns
}

func (s *callService) publish(ctx context.Context, ev queue.SessionEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		// Event delivery is best effort; the session record is the source
		// of truth and watchers fall back to re-reading it.
		slog.WarnContext(ctx, "failed to publish session event", "type", ev.Type, "error", err)
	}
}
