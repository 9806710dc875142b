package store

import (
	"context"
	"errors"

	"github.com/magiciincaidev/callassist/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update lost a version race against a
// concurrent writer. Callers re-read and retry.
var ErrConflict = errors.New("version conflict")

// SessionStore defines the contract for call-session data access. Records
// live under four fixed key namespaces (session, conversation history,
// constraints, participant status), each suffixed by the relevant id.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.CallSession, error)
	Create(ctx context.Context, session *model.CallSession) error
	// Update performs a compare-and-swap on the session's Version token.
	// On success the stored and in-memory Version are incremented; a stale
	// Version yields ErrConflict.
	Update(ctx context.Context, session *model.CallSession) error
	Delete(ctx context.Context, sessionID string) error
	// DeleteAll sweeps every record namespace wholesale, including orphaned
	// constraint/participant/history records whose session record is already
	// gone. Returns the number of session records removed.
	DeleteAll(ctx context.Context) (int, error)
	// List scans the session namespace. Records that fail to parse or fail
	// structural validation are deleted during the scan instead of being
	// returned.
	List(ctx context.Context) ([]model.CallSession, error)

	SaveConstraints(ctx context.Context, sessionID string, c model.Constraints) error
	GetConstraints(ctx context.Context, sessionID string) (*model.Constraints, error)
	SaveParticipants(ctx context.Context, sessionID string, p model.Participants) error
	GetParticipants(ctx context.Context, sessionID string) (*model.Participants, error)

	AppendMessage(ctx context.Context, conversationID string, msg model.ConversationMessage) error
	History(ctx context.Context, conversationID string) ([]model.ConversationMessage, error)
}

// Storage key namespaces. These mirror the record layout described in the
// persisted-records contract: string keys, JSON values.
const (
	sessionKeyPrefix      = "call-session:"
	historyKeyPrefix      = "conversation-history:"
	constraintsKeyPrefix  = "session-constraints:"
	participantsKeyPrefix = "participant-status:"
)

func sessionKey(sessionID string) string      { return sessionKeyPrefix + sessionID }
func historyKey(conversationID string) string { return historyKeyPrefix + conversationID }
func constraintsKey(sessionID string) string  { return constraintsKeyPrefix + sessionID }
func participantsKey(sessionID string) string { return participantsKeyPrefix + sessionID }
