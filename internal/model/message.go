package model

import "time"

type MessageSender string

const (
	SenderUser     MessageSender = "user"
	SenderOperator MessageSender = "operator"
	SenderAI       MessageSender = "ai"
)

// ConversationMessage is one entry in a session's append-only message thread.
// Ordering is insertion order, which is chronological since timestamps are
// assigned at append time.
type ConversationMessage struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Sender     MessageSender `json:"sender"`
	Message    string        `json:"message"`
	Suggestion *Suggestion   `json:"ai_suggestion,omitempty"`
}
