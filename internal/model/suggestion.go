package model

import "time"

type SuggestionPriority string

const (
	PriorityLow    SuggestionPriority = "low"
	PriorityMedium SuggestionPriority = "medium"
	PriorityHigh   SuggestionPriority = "high"
)

// Suggestion is a structured next-action recommendation generated for the
// operator from the latest user utterance. Generated once per user message
// and never mutated.
type Suggestion struct {
	Action            string             `json:"action"`
	Priority          SuggestionPriority `json:"priority"`
	Description       string             `json:"description"`
	SuggestedResponse string             `json:"suggested_response,omitempty"`
	Confidence        int                `json:"confidence"` // 0-100
	Timestamp         time.Time          `json:"timestamp"`
	ConversationID    string             `json:"conversation_id"`

	// Degraded marks a canned fallback produced because the live provider
	// failed. Callers still get a usable suggestion; telemetry can tell the
	// difference.
	Degraded bool `json:"degraded,omitempty"`
}
