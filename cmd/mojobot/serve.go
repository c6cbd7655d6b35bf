package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mojobot/internal/agent"
	"mojobot/internal/channel"
	"mojobot/internal/config"
	"mojobot/internal/domain"
	"mojobot/internal/metrics"
	"mojobot/internal/provider"
	"mojobot/internal/stream"
	"mojobot/internal/tracing"
	"mojobot/internal/websearch"

	"github.com/spf13/cobra"
)

// app holds the wired pipeline shared by serve, ask and doctor.
type app struct {
	cfg          *config.Config
	identity     domain.AgentIdentity
	completion   *provider.OpenAI
	search       *websearch.Exa
	chat         *stream.Client
	orchestrator *agent.Orchestrator
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildApp(cfg *config.Config) *app {
	identity := domain.AgentIdentity{ID: cfg.Agent.ID, Name: cfg.Agent.Name}

	completion := provider.NewOpenAI(provider.OpenAIConfig{
		Name:    "gateway",
		APIKey:  cfg.Completion.APIKey,
		APIBase: cfg.Completion.APIBase,
		Model:   cfg.Completion.Model,
		Timeout: seconds(cfg.Completion.TimeoutSeconds),
		Logger:  logger,
	})

	search := websearch.NewExa(websearch.ExaConfig{
		APIKey:  cfg.Search.APIKey,
		APIBase: cfg.Search.APIBase,
		Type:    cfg.Search.Type,
		Timeout: seconds(cfg.Search.TimeoutSeconds),
		Logger:  logger,
	})
	webContext := websearch.NewContextProvider(websearch.ContextConfig{
		Searcher:        search,
		NumResults:      cfg.Search.NumResults,
		MaxExcerptChars: cfg.Search.MaxExcerptChars,
		RatePerMinute:   cfg.Search.RatePerMinute,
		Logger:          logger,
	})

	chat := stream.NewClient(stream.ClientConfig{
		APIKey:    cfg.Chat.APIKey,
		APISecret: cfg.Chat.APISecret,
		BaseURL:   cfg.Chat.BaseURL,
		Timeout:   seconds(cfg.Chat.TimeoutSeconds),
		Logger:    logger,
	})
	delivery := channel.NewDelivery(channel.DeliveryConfig{
		Connector: chat,
		Identity:  identity,
		Reactions: cfg.Agent.Reactions,
		Logger:    logger,
	})

	responder := agent.NewResponder(agent.ResponderConfig{
		Provider:     completion,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxTokens:    cfg.Completion.MaxTokens,
		Temperature:  cfg.Completion.Temperature,
		Fallback:     cfg.Agent.FallbackReply,
		DefaultAsker: cfg.Agent.DefaultAsker,
		Logger:       logger,
	})

	orchestrator := agent.NewOrchestrator(agent.OrchestratorConfig{
		Identity:        identity,
		Triggers:        agent.NewTriggerMatcher(cfg.Agent.Triggers),
		Responder:       responder,
		WebContext:      webContext,
		Deliverer:       delivery,
		EmptyReply:      cfg.Agent.EmptyReply,
		ReactionRate:    cfg.Agent.ReactionRate,
		ReactionTimeout: seconds(cfg.Agent.ReactionTimeoutSeconds),
		Logger:          logger,
	})

	return &app{
		cfg:          cfg,
		identity:     identity,
		completion:   completion,
		search:       search,
		chat:         chat,
		orchestrator: orchestrator,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long:  "Listens for chat platform webhooks and answers mentions until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Headers:     cfg.Tracing.Headers,
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	a := buildApp(cfg)
	if !a.completion.Configured() {
		logger.Warn("completion API key not set; mentions will fail until AI_GATEWAY_API_KEY is provided")
	}
	if !a.chat.Configured() {
		logger.Warn("chat credentials not set; replies and reactions cannot be delivered")
	}
	logger.Info("web search", "enabled", cfg.SearchEnabled())

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Collector.Handler()
	}
	secret := ""
	if cfg.Chat.VerifyWebhookSignature {
		secret = cfg.Chat.APISecret
	}

	server := channel.NewWebhook(channel.WebhookConfig{
		Addr:         cfg.Addr(),
		Path:         cfg.Server.WebhookPath,
		Secret:       secret,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Handler:      a.orchestrator,
		Metrics:      metricsHandler,
		MetricsPath:  cfg.Metrics.Path,
		OnShutdown: func(ctx context.Context) {
			if err := a.orchestrator.Drain(ctx); err != nil {
				logger.Warn("pending reactions abandoned", "err", err)
			}
		},
		ShutdownTimeout: seconds(cfg.Server.ShutdownTimeoutSeconds),
		Logger:          logger,
	})

	logger.Info("mojobot started. Press Ctrl+C to stop.",
		"version", version,
		"agent", cfg.Agent.ID,
		"triggers", cfg.Agent.Triggers,
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
