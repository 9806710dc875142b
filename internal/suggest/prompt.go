package suggest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/magiciincaidev/callassist/internal/model"
)

const systemPrompt = "あなたはコールセンターのオペレーターをサポートするAIアシスタントです。" +
	"ユーザーの発言内容を分析し、オペレーターが取るべき次のアクションを提案してください。"

// Reply field labels. The completion endpoint answers in semi-structured
// text; parseSuggestion matches these prefixes line by line.
const (
	labelAction      = "アクション:"
	labelPriority    = "優先度:"
	labelDescription = "説明:"
	labelResponse    = "提案レスポンス:"
	labelConfidence  = "信頼度:"
)

// Defaults for fields the reply omits.
const (
	defaultAction      = "アクション未定"
	defaultDescription = "説明なし"
	defaultConfidence  = 50
)

func buildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ユーザーの発言内容: %q\n\n", req.UserMessage)
	fmt.Fprintf(&b, "会話の文脈: %s\n\n", strings.Join(req.History, ", "))

	if req.Guidelines != "" {
		fmt.Fprintf(&b, "オペレーターガイドライン: %s\n\n", req.Guidelines)
	}

	b.WriteString("以下の形式で次のアクションを提案してください:\n")
	b.WriteString(labelAction + " [具体的なアクション]\n")
	b.WriteString(labelPriority + " [low/medium/high]\n")
	b.WriteString(labelDescription + " [アクションの詳細説明]\n")
	b.WriteString(labelResponse + " [オペレーターが言うべき内容（オプション）]\n")
	b.WriteString(labelConfidence + " [0-100の数値]")

	return b.String()
}

// parseSuggestion turns the semi-structured reply back into a Suggestion.
// Missing or unparseable fields fall back to documented defaults rather than
// failing the whole reply.
func parseSuggestion(content string) *model.Suggestion {
	suggestion := &model.Suggestion{
		Action:      defaultAction,
		Priority:    model.PriorityMedium,
		Description: defaultDescription,
		Confidence:  defaultConfidence,
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.Contains(line, labelAction):
			if v := after(line, labelAction); v != "" {
				suggestion.Action = v
			}
		case strings.Contains(line, labelPriority):
			switch model.SuggestionPriority(after(line, labelPriority)) {
			case model.PriorityLow:
				suggestion.Priority = model.PriorityLow
			case model.PriorityHigh:
				suggestion.Priority = model.PriorityHigh
			case model.PriorityMedium:
				suggestion.Priority = model.PriorityMedium
			}
		case strings.Contains(line, labelDescription):
			if v := after(line, labelDescription); v != "" {
				suggestion.Description = v
			}
		case strings.Contains(line, labelResponse):
			suggestion.SuggestedResponse = after(line, labelResponse)
		case strings.Contains(line, labelConfidence):
			if n, err := strconv.Atoi(after(line, labelConfidence)); err == nil {
				suggestion.Confidence = clampConfidence(n)
			}
		}
	}

	return suggestion
}

func after(line, label string) string {
	_, rest, found := strings.Cut(line, label)
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}

func clampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
