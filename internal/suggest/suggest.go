package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/magiciincaidev/callassist/common/logger"
	"github.com/magiciincaidev/callassist/core/config"
	"github.com/magiciincaidev/callassist/internal/model"
)

// Request carries the context the suggestion provider needs: the latest user
// utterance, a window of recent conversation turns, and optional operator
// guideline text.
type Request struct {
	ConversationID string
	UserMessage    string
	History        []string
	Guidelines     string
}

// Service produces a structured next-action suggestion for the operator.
type Service interface {
	NextAction(ctx context.Context, req Request) (*model.Suggestion, error)
}

// New selects live or mock mode based on configuration. Without an API key
// the service runs entirely on canned responses.
func New(cfg config.OpenAIConfig) Service {
	if !cfg.Enabled() {
		return NewMockService()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return &liveService{
		openai:   openai.NewClient(opts...),
		model:    modelName,
		fallback: NewMockService(),
	}
}

type liveService struct {
	openai   openai.Client
	model    string
	fallback Service
}

// NextAction asks the completion endpoint for a suggestion. Any transport or
// parse failure degrades to a canned mock response instead of propagating:
// the conversation UI must always get something to show. The fallback is
// logged and flagged so telemetry can tell degraded answers from real ones.
func (s *liveService) NextAction(ctx context.Context, req Request) (*model.Suggestion, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(req.ConversationID),
		Component:      "callassist.suggest",
	})

	suggestion, err := s.generate(ctx, req)
	if err != nil {
		slog.WarnContext(ctx, "suggestion provider failed, falling back to canned response",
			"error", err,
			"model", s.model,
			"user_message", logger.Truncate(req.UserMessage, 80),
		)
		return s.degrade(ctx, req)
	}
	return suggestion, nil
}

func (s *liveService) generate(ctx context.Context, req Request) (*model.Suggestion, error) {
	sc := logger.StartSpan(ctx, "suggest.generate")
	defer sc.End()
	ctx = sc.Context()

	completion, err := s.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		MaxTokens:   openai.Int(500),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("empty completion response")
	}

	suggestion := parseSuggestion(completion.Choices[0].Message.Content)
	suggestion.ConversationID = req.ConversationID
	suggestion.Timestamp = time.Now()
	return suggestion, nil
}

func (s *liveService) degrade(ctx context.Context, req Request) (*model.Suggestion, error) {
	suggestion, err := s.fallback.NextAction(ctx, req)
	if err != nil {
		return nil, err
	}
	suggestion.Degraded = true
	return suggestion, nil
}
