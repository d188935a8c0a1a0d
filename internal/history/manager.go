// Package history enforces token and character budgets on conversation
// history via recursive summarization.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightpath-edu/tutoring-platform/internal/llm"
	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/internal/prompt"
	"github.com/brightpath-edu/tutoring-platform/internal/usage"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// SummaryTurnPrefix tags the synthetic turn that replaces a summarized
// history so the model knows it is reading a prior summary.
const SummaryTurnPrefix = "Previous conversation summary: "

// defaultCharsPerToken is the fixed estimation constant for request sizing.
const defaultCharsPerToken = 4

// Config holds the budget thresholds.
type Config struct {
	// HistoryCharLimit is the character sum across turns above which the
	// whole history is summarized into one synthetic turn.
	HistoryCharLimit int

	// RequestTokenBudget bounds the estimated token size of system prompt +
	// history + pending message. Exceeding it after history summarization
	// triggers summarization of the system prompt itself.
	RequestTokenBudget int

	CharsPerToken      int
	SummaryModel       string
	SummaryTemperature float64
	SummaryMaxTokens   int
}

// Attribution identifies who a summarization call is billed to.
type Attribution struct {
	AssistantID string
	TenantID    string
	UserID      string
	LessonID    string
}

// Manager applies the two ordered budget checks. Summarization failures are
// never allowed to block the primary response: the original content is used
// and a warning is logged.
type Manager struct {
	gateway  llm.Client
	composer *prompt.Composer
	usage    usage.Recorder
	log      *logger.Logger
	cfg      Config
}

// NewManager creates a history manager.
func NewManager(gateway llm.Client, composer *prompt.Composer, recorder usage.Recorder, cfg Config, log *logger.Logger) *Manager {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = defaultCharsPerToken
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = 1024
	}
	return &Manager{
		gateway:  gateway,
		composer: composer,
		usage:    recorder,
		log:      log,
		cfg:      cfg,
	}
}

// EnforceHistory applies the conversation-length check. When the history
// exceeds the character threshold it is replaced by a single synthetic
// prior-summary turn.
func (m *Manager) EnforceHistory(ctx context.Context, attr Attribution, turns []model.Turn) []model.Turn {
	if m.cfg.HistoryCharLimit <= 0 || historyChars(turns) <= m.cfg.HistoryCharLimit {
		return turns
	}

	var lines strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&lines, "%s: %s\n", turn.Role, turn.Content)
	}

	summary, ok := m.summarize(ctx, attr, prompt.KeySummarizeHistory, "{{conversation}}", lines.String(), usage.PurposeHistorySummary)
	if !ok {
		return turns
	}

	return []model.Turn{{
		Role:    model.RoleUser,
		Content: SummaryTurnPrefix + summary,
	}}
}

// EnforceRequestBudget applies the total-request-size check and returns the
// system prompt to use, summarized in place of the original when the
// estimated request still exceeds the token budget.
func (m *Manager) EnforceRequestBudget(ctx context.Context, attr Attribution, systemPrompt string, turns []model.Turn, pending string) string {
	if m.cfg.RequestTokenBudget <= 0 {
		return systemPrompt
	}

	estimated := (len(systemPrompt) + historyChars(turns) + len(pending)) / m.cfg.CharsPerToken
	if estimated <= m.cfg.RequestTokenBudget {
		return systemPrompt
	}

	summary, ok := m.summarize(ctx, attr, prompt.KeySummarizePrompt, "{{prompt}}", systemPrompt, usage.PurposePromptSummary)
	if !ok {
		return systemPrompt
	}
	return summary
}

// summarize runs one tagged, never-retried summarization call.
func (m *Manager) summarize(ctx context.Context, attr Attribution, templateKey, marker, content, purpose string) (string, bool) {
	template := m.composer.Template(ctx, attr.AssistantID, templateKey)
	var promptText string
	if template == "" || !strings.Contains(template, marker) {
		promptText = "Summarize the following, preserving all essential information:\n\n" + content
	} else {
		promptText = strings.ReplaceAll(template, marker, content)
	}

	resp, err := m.gateway.Complete(ctx, &llm.CompletionRequest{
		Model:       m.cfg.SummaryModel,
		Temperature: m.cfg.SummaryTemperature,
		MaxTokens:   m.cfg.SummaryMaxTokens,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleUser), Content: promptText},
		},
	})
	if err != nil {
		m.log.Warnw("summarization failed, using original content",
			"purpose", purpose,
			"error", err,
		)
		metrics.RecordLLMCall(purpose, "error", 0, 0, 0)
		return "", false
	}

	metrics.RecordLLMCall(purpose, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)
	m.usage.Record(usage.Entry{
		TenantID:  attr.TenantID,
		UserID:    attr.UserID,
		LessonID:  attr.LessonID,
		Purpose:   purpose,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		LatencyMs: resp.LatencyMs,
	})

	return strings.TrimSpace(resp.Content), true
}

func historyChars(turns []model.Turn) int {
	total := 0
	for _, turn := range turns {
		total += len(turn.Content)
	}
	return total
}
