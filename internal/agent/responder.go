package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mojobot/internal/domain"
	"mojobot/internal/metrics"
)

const webContextPreamble = "Here is some relevant information from the web:\n\n"
const webContextSuffix = "\n\nUse this to help answer the question, but don't mention that you searched the web."

// Responder turns a question into the agent's reply with one completion call.
type Responder struct {
	provider     domain.Provider
	systemPrompt string
	model        string
	maxTokens    int
	temperature  float64
	fallback     string
	defaultAsker string
	logger       *slog.Logger
}

type ResponderConfig struct {
	Provider     domain.Provider
	SystemPrompt string
	Model        string // empty uses the provider default
	MaxTokens    int
	Temperature  float64
	// Fallback is posted when the backend returns no usable text.
	Fallback     string
	DefaultAsker string
	Logger       *slog.Logger
}

func NewResponder(cfg ResponderConfig) *Responder {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Fallback == "" {
		cfg.Fallback = "Sorry, I couldn't generate a response."
	}
	if cfg.DefaultAsker == "" {
		cfg.DefaultAsker = "Someone"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Responder{
		provider:     cfg.Provider,
		systemPrompt: cfg.SystemPrompt,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		fallback:     cfg.Fallback,
		defaultAsker: cfg.DefaultAsker,
		logger:       cfg.Logger,
	}
}

// BuildMessages assembles the prompt: persona, optional web context, then the
// attributed question. A nil context produces no context message at all.
func (r *Responder) BuildMessages(question, asker string, wc *domain.WebContext) []domain.Message {
	if strings.TrimSpace(asker) == "" {
		asker = r.defaultAsker
	}
	msgs := make([]domain.Message, 0, 3)
	msgs = append(msgs, domain.Message{Role: "system", Content: r.systemPrompt})
	if wc != nil && len(wc.Entries) > 0 {
		msgs = append(msgs, domain.Message{
			Role:    "system",
			Content: webContextPreamble + wc.String() + webContextSuffix,
		})
	}
	msgs = append(msgs, domain.Message{Role: "user", Content: fmt.Sprintf("%s asks: %s", asker, question)})
	return msgs
}

// Respond calls the completion backend. Backend errors are returned as is; an
// empty answer becomes the fallback reply.
func (r *Responder) Respond(ctx context.Context, question, asker string, wc *domain.WebContext) (domain.GeneratedReply, error) {
	start := time.Now()
	metrics.CompletionsTotal.Inc()

	temperature := r.temperature
	resp, err := r.provider.Chat(ctx, domain.ChatRequest{
		Messages:    r.BuildMessages(question, asker, wc),
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: &temperature,
	})
	metrics.CompletionLatency.Since(start)
	if err != nil {
		metrics.CompletionErrors.Inc()
		return domain.GeneratedReply{}, fmt.Errorf("generate reply: %w", err)
	}

	text := ""
	if resp != nil {
		text = resp.Content
	}
	if strings.TrimSpace(text) == "" {
		r.logger.Warn("completion returned no text, using fallback reply", "provider", r.provider.Name())
		return domain.GeneratedReply{Text: r.fallback}, nil
	}
	r.logger.Debug("reply generated", "provider", r.provider.Name(), "preview", preview(text, 100))
	return domain.GeneratedReply{Text: text}, nil
}

// preview returns at most n runes of s followed by an ellipsis when cut.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
