package suggest

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/magiciincaidev/callassist/internal/model"
)

// cannedSuggestions covers the common call-center situations. The mock picks
// one at random, then keyword rules may override it.
var cannedSuggestions = []model.Suggestion{
	{
		Action:            "顧客情報の確認",
		Priority:          model.PriorityHigh,
		Description:       "顧客の基本情報（氏名、電話番号、契約内容）を確認してください",
		SuggestedResponse: "申し訳ございませんが、お客様の基本情報を確認させていただいてもよろしいでしょうか？",
		Confidence:        95,
	},
	{
		Action:            "問題の詳細ヒアリング",
		Priority:          model.PriorityMedium,
		Description:       "お客様が抱えている問題の詳細を聞き取り、具体的な状況を把握してください",
		SuggestedResponse: "具体的にどのような状況でお困りでしょうか？もう少し詳しく教えていただけますか？",
		Confidence:        88,
	},
	{
		Action:            "解決策の提案",
		Priority:          model.PriorityHigh,
		Description:       "問題の解決策を複数提示し、お客様の希望に沿った対応を提案してください",
		SuggestedResponse: "この問題に対して、以下のような解決策がございます。どちらがお客様のご希望に近いでしょうか？",
		Confidence:        92,
	},
	{
		Action:            "確認とフォローアップ",
		Priority:          model.PriorityMedium,
		Description:       "提案した解決策についてお客様の理解を確認し、次のステップを説明してください",
		SuggestedResponse: "ご説明した内容でご理解いただけましたでしょうか？次に進めさせていただいてもよろしいでしょうか？",
		Confidence:        85,
	},
	{
		Action:            "緊急対応の判断",
		Priority:          model.PriorityHigh,
		Description:       "緊急性の高い問題の場合は、即座にエスカレーションまたは緊急対応を実施してください",
		SuggestedResponse: "この件は緊急性が高いため、すぐに担当部署に連絡いたします。少々お待ちください。",
		Confidence:        98,
	},
}

type mockService struct {
	baseLatency time.Duration
	jitter      time.Duration
}

// NewMockService creates the canned-response provider used in development
// and as the degraded fallback. Latency emulates a real network round trip.
func NewMockService() Service {
	return &mockService{
		baseLatency: 500 * time.Millisecond,
		jitter:      time.Second,
	}
}

// NewMockServiceWithLatency is NewMockService with an explicit latency,
// mainly so tests stay fast.
func NewMockServiceWithLatency(base, jitter time.Duration) Service {
	return &mockService{baseLatency: base, jitter: jitter}
}

func (s *mockService) NextAction(ctx context.Context, req Request) (*model.Suggestion, error) {
	suggestion := cannedSuggestions[rand.Intn(len(cannedSuggestions))]
	applyKeywordRules(&suggestion, req.UserMessage)

	suggestion.ConversationID = req.ConversationID
	suggestion.Timestamp = time.Now()

	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// applyKeywordRules adjusts the canned pick to the utterance. An urgency or
// distress keyword forces the escalation action regardless of the random
// selection.
func applyKeywordRules(s *model.Suggestion, userMessage string) {
	switch {
	case containsAny(userMessage, "緊急", "困った", "大変"):
		s.Action = "緊急対応の判断"
		s.Priority = model.PriorityHigh
		s.Description = "緊急性の高い問題のため、即座に対応が必要です"
		s.SuggestedResponse = "緊急のご相談とのことですので、すぐに対応いたします。"
		s.Confidence = 98
	case containsAny(userMessage, "確認", "調べて"):
		s.Action = "顧客情報の確認"
		s.Priority = model.PriorityMedium
		s.Description = "お客様の情報を確認し、詳細を調べる必要があります"
		s.SuggestedResponse = "承知いたしました。お客様の情報を確認させていただきます。"
		s.Confidence = 90
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func (s *mockService) sleep(ctx context.Context) error {
	delay := s.baseLatency
	if s.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(s.jitter)))
	}
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
