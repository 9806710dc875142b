package model

import "time"

type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
)

type ParticipantRole string

const (
	RoleUser     ParticipantRole = "user"
	RoleOperator ParticipantRole = "operator"
)

type ParticipantStatus string

const (
	ParticipantStatusWaiting ParticipantStatus = "waiting"
	ParticipantStatusJoined  ParticipantStatus = "joined"
	ParticipantStatusLeft    ParticipantStatus = "left"
)

// Participant is one of the two named slots attached to a session.
type Participant struct {
	ID       string            `json:"id"`
	JoinedAt time.Time         `json:"joined_at"`
	LeftAt   *time.Time        `json:"left_at,omitempty"`
	Status   ParticipantStatus `json:"status"`
}

// Participants holds exactly the two slots a session has.
type Participants struct {
	User     Participant `json:"user"`
	Operator Participant `json:"operator"`
}

// Get returns the slot for the given role.
func (p *Participants) Get(role ParticipantRole) *Participant {
	if role == RoleOperator {
		return &p.Operator
	}
	return &p.User
}

// Constraints is the policy snapshot captured when a session is created.
// It is never mutated afterward.
type Constraints struct {
	MaxConcurrentPairs int           `json:"max_concurrent_pairs"`
	CreatedAt          time.Time     `json:"created_at"`
	CleanupAt          time.Time     `json:"cleanup_at"`
	MaxWaitingTime     time.Duration `json:"max_waiting_time"`
}

// CallSession is the record spanning a user and an operator exchanging
// messages, from creation to termination.
type CallSession struct {
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	OperatorID     string        `json:"operator_id"`
	ConversationID string        `json:"conversation_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	Status         SessionStatus `json:"status"`
	Constraints    Constraints   `json:"constraints"`
	Participants   Participants  `json:"participants"`

	// Version is the optimistic-concurrency token. Incremented on every
	// write; a stale writer gets a conflict instead of clobbering.
	Version int64 `json:"version"`
}

// DerivedStatus computes the session status purely from the participant
// statuses plus explicit termination. Stored sessions may be stale cached
// state from the other participant's context, so readers re-derive rather
// than trust the persisted field blindly.
func (s *CallSession) DerivedStatus() SessionStatus {
	if s.Status == SessionStatusEnded || s.EndTime != nil {
		return SessionStatusEnded
	}
	if s.Participants.User.Status == ParticipantStatusLeft ||
		s.Participants.Operator.Status == ParticipantStatusLeft {
		return SessionStatusEnded
	}
	if s.Participants.User.Status == ParticipantStatusJoined &&
		s.Participants.Operator.Status == ParticipantStatusJoined {
		return SessionStatusActive
	}
	return SessionStatusWaiting
}

// IsOpen reports whether the session still counts against the concurrent
// pair limit.
func (s *CallSession) IsOpen() bool {
	st := s.DerivedStatus()
	return st == SessionStatusWaiting || st == SessionStatusActive
}

// Valid checks structural integrity of a stored session record. Records that
// fail this check are discarded during scans instead of being surfaced.
func (s *CallSession) Valid() bool {
	if s == nil {
		return false
	}
	if s.SessionID == "" || s.UserID == "" || s.OperatorID == "" {
		return false
	}
	switch s.Status {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusEnded:
	default:
		return false
	}
	if s.Participants.User.Status == "" || s.Participants.Operator.Status == "" {
		return false
	}
	return true
}
