package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magiciincaidev/callassist/internal/model"
)

// EventType identifies a session lifecycle transition.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventParticipantJoined EventType = "participant_joined"
	EventSessionActivated  EventType = "session_activated"
	EventParticipantLeft   EventType = "participant_left"
	EventSessionEnded      EventType = "session_ended"
	EventSessionExpired    EventType = "session_expired"
)

// SessionEvent is one entry on a session's event stream. The two participant
// contexts rendezvous by watching this stream instead of re-reading session
// state on an interval.
type SessionEvent struct {
	ID            string // stream entry ID, set on read
	Type          EventType
	SessionID     string
	ParticipantID string
	Role          model.ParticipantRole
	Status        model.SessionStatus
	At            time.Time
}

// StreamName returns the per-session event stream key.
func StreamName(prefix, sessionID string) string {
	return fmt.Sprintf("%s:%s", prefix, sessionID)
}

func eventValues(ev SessionEvent) map[string]any {
	values := map[string]any{
		"type":       string(ev.Type),
		"session_id": ev.SessionID,
		"status":     string(ev.Status),
		"at":         ev.At.UnixMilli(),
	}
	if ev.ParticipantID != "" {
		values["participant_id"] = ev.ParticipantID
	}
	if ev.Role != "" {
		values["role"] = string(ev.Role)
	}
	return values
}

func parseEvent(msg redis.XMessage) (SessionEvent, error) {
	ev := SessionEvent{ID: msg.ID}

	evType, ok := msg.Values["type"].(string)
	if !ok || evType == "" {
		return ev, fmt.Errorf("event %s missing type", msg.ID)
	}
	ev.Type = EventType(evType)

	sessionID, ok := msg.Values["session_id"].(string)
	if !ok || sessionID == "" {
		return ev, fmt.Errorf("event %s missing session_id", msg.ID)
	}
	ev.SessionID = sessionID

	if v, ok := msg.Values["status"].(string); ok {
		ev.Status = model.SessionStatus(v)
	}
	if v, ok := msg.Values["participant_id"].(string); ok {
		ev.ParticipantID = v
	}
	if v, ok := msg.Values["role"].(string); ok {
		ev.Role = model.ParticipantRole(v)
	}
	if v, ok := msg.Values["at"].(string); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			ev.At = time.UnixMilli(ms)
		}
	}

	return ev, nil
}
