package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"parlor/domain"
	"parlor/utils/log"
)

const (
	fallbackPrefix    = "[Local fallback] I can't reach the model. Echo: "
	fallbackEchoLimit = 400

	defaultWikiSentences = 4

	enrichmentInstruction = "Use the following external context to answer. Cite it naturally when used.\n"
)

// EngineConfig tunes one conversation engine. Zero values select the
// defaults, so the zero EngineConfig is usable as-is.
type EngineConfig struct {
	HistoryCapacity int
	WikiSentences   int
	Prompts         map[domain.Mode]string
}

// Engine runs single conversation turns: it resolves the requested mode,
// keeps the bounded history, assembles the model request, and degrades to a
// local echo when no completion backend can be reached. An Engine is owned
// by exactly one session and is not safe for concurrent use.
type Engine struct {
	llm       domain.CompletionClient
	wiki      domain.Summarizer
	prompts   *domain.PromptRegistry
	history   *domain.History
	sentences int
}

// NewEngine wires an engine from its collaborators. Both llm and wiki may be
// nil: a nil llm forces every reply onto the local fallback, a nil wiki
// disables knowledge-mode enrichment.
func NewEngine(cfg EngineConfig, llm domain.CompletionClient, wiki domain.Summarizer) *Engine {
	sentences := cfg.WikiSentences
	if sentences <= 0 {
		sentences = defaultWikiSentences
	}
	return &Engine{
		llm:       llm,
		wiki:      wiki,
		prompts:   domain.NewPromptRegistry(cfg.Prompts),
		history:   domain.NewHistory(cfg.HistoryCapacity),
		sentences: sentences,
	}
}

// Reply is the outcome of one turn.
type Reply struct {
	Text     string      `json:"text"`
	Mode     domain.Mode `json:"mode"`
	Enriched bool        `json:"enriched"`
	Fallback bool        `json:"fallback"`
}

// Respond runs one turn against the user's text. The mode label is resolved
// leniently, the user message is remembered even when everything after it
// fails, and the returned reply always carries text: either the model's
// answer or the local fallback echo.
func (e *Engine) Respond(ctx context.Context, text, modeLabel string) Reply {
	mode := domain.ResolveMode(modeLabel)
	systemPrompt := e.prompts.Get(mode)

	e.history.Append(domain.UserMessage(text))

	var contextBlock string
	if mode == domain.ModeKnowledge && e.wiki != nil {
		summary, err := e.wiki.Summary(ctx, text, e.sentences)
		switch {
		case err != nil:
			log.WithCtx(ctx).Warn("wikipedia enrichment failed", zap.Error(err))
		case strings.TrimSpace(summary) != "":
			contextBlock = strings.TrimSpace(summary)
			log.WithCtx(ctx).Debug("wikipedia context attached",
				zap.Int("chars", len(contextBlock)))
		}
	}

	messages := assemble(systemPrompt, contextBlock, e.history.Snapshot(), e.history.Capacity())

	reply := Reply{Mode: mode, Enriched: contextBlock != ""}
	answer, err := e.complete(ctx, messages)
	if err != nil {
		log.WithCtx(ctx).Warn("completion failed, using local fallback", zap.Error(err))
		answer = localFallback(messages)
		reply.Fallback = true
	}
	reply.Text = answer

	e.history.Append(domain.AssistantMessage(answer))

	log.WithCtx(ctx).Info("turn completed",
		zap.String("mode", string(mode)),
		zap.Bool("enriched", reply.Enriched),
		zap.Bool("fallback", reply.Fallback),
		zap.Int("history_len", e.history.Len()))
	return reply
}

func (e *Engine) complete(ctx context.Context, messages []domain.Message) (string, error) {
	if e.llm == nil {
		return "", domain.ErrCompletionUnavailable
	}
	return e.llm.Complete(ctx, messages)
}

// Reset discards the conversation history. Prompt overrides survive.
func (e *Engine) Reset() {
	e.history.Reset()
}

// History returns a copy of the retained conversation, oldest first.
func (e *Engine) History() []domain.Message {
	return e.history.Snapshot()
}

// SetSystemPrompt replaces the system prompt used by mode from the next
// turn on.
func (e *Engine) SetSystemPrompt(mode domain.Mode, prompt string) {
	e.prompts.Set(mode, prompt)
}

// SystemPrompt returns the prompt currently registered for mode.
func (e *Engine) SystemPrompt(mode domain.Mode) string {
	return e.prompts.Get(mode)
}

// assemble builds the exact sequence sent to the model: the mode's system
// prompt, an optional enrichment block, then the newest history entries
// that still fit the capacity.
func assemble(systemPrompt, contextBlock string, history []domain.Message, capacity int) []domain.Message {
	messages := []domain.Message{domain.SystemMessage(systemPrompt)}
	if contextBlock != "" {
		messages = append(messages, domain.SystemMessage(
			enrichmentInstruction+"\n[External Source: Wikipedia]\n"+contextBlock+"\n[End Source]\n"))
	}

	keep := capacity - len(messages)
	if keep < 0 {
		keep = 0
	}
	if keep < len(history) {
		history = history[len(history)-keep:]
	}
	return append(messages, history...)
}

// localFallback deterministically answers from the newest user message when
// the model cannot. It never fails.
func localFallback(messages []domain.Message) string {
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.UserRole {
			lastUser = messages[i].Content
			break
		}
	}
	if runes := []rune(lastUser); len(runes) > fallbackEchoLimit {
		lastUser = string(runes[:fallbackEchoLimit])
	}
	return fallbackPrefix + lastUser
}
