package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mojobot/internal/domain"
	"mojobot/internal/httpclient"
)

// ErrNotConfigured is returned by Chat when no API key was supplied.
var ErrNotConfigured = errors.New("completion backend not configured: missing API key")

const defaultAPIBase = "https://api.openai.com/v1"

// chatCompletions is the slice of the SDK client used here; tests substitute it.
type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements domain.Provider for any OpenAI-compatible chat completions
// endpoint (OpenAI, AI gateways, OpenRouter, local servers).
type OpenAI struct {
	name        string
	apiKey      string
	apiBase     string
	model       string
	client      *http.Client
	completions chatCompletions
	logger      *slog.Logger
}

type OpenAIConfig struct {
	Name    string // label used in logs and errors (default: "openai")
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	httpClient := httpclient.New(cfg.Timeout)

	o := &OpenAI{
		name:    cfg.Name,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		apiBase: base,
		model:   cfg.Model,
		client:  httpClient,
		logger:  cfg.Logger,
	}
	if o.apiKey != "" {
		sdk := openai.NewClient(
			option.WithAPIKey(o.apiKey),
			option.WithBaseURL(base+"/"),
			option.WithHTTPClient(httpClient),
			// Each webhook delivery is attempted once; the platform redelivers on failure.
			option.WithMaxRetries(0),
		)
		o.completions = &sdk.Chat.Completions
	}
	return o
}

func (o *OpenAI) Name() string  { return o.name }
func (o *OpenAI) Model() string { return o.model }

// Configured reports whether an API key is present.
func (o *OpenAI) Configured() bool { return o.completions != nil }

// Healthy checks that the endpoint is reachable and accepts the key.
func (o *OpenAI) Healthy(ctx context.Context) error {
	if !o.Configured() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s not reachable: %w", o.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", o.name)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", o.name, resp.StatusCode)
	}
	return nil
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if !o.Configured() {
		return nil, ErrNotConfigured
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	ctx, span := otel.Tracer("mojobot/provider").Start(ctx, "provider.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", o.name),
		attribute.String("model", model),
		attribute.Int("messages", len(req.Messages)),
	)

	start := time.Now()
	completion, err := o.completions.New(ctx, buildParams(model, req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, fmt.Errorf("%s chat completion: %w", o.name, err)
	}
	latency := time.Since(start)

	out := &domain.ChatResponse{
		FinishReason: "stop",
		LatencyMs:    latency.Milliseconds(),
		Usage: domain.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		out.Content = choice.Message.Content
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", out.Usage.TotalTokens))
	o.logger.Debug("chat completion done",
		"provider", o.name,
		"model", model,
		"latency_ms", out.LatencyMs,
		"finish_reason", out.FinishReason,
		"total_tokens", out.Usage.TotalTokens,
	)
	return out, nil
}

func buildParams(model string, req domain.ChatRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}
