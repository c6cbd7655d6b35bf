package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   3000,
			WebhookPath:            "/webhooks/chat",
			MaxBodyBytes:           1 << 20,
			ShutdownTimeoutSeconds: 10,
		},
		Agent: AgentConfig{
			ID:                     "mojo-assistant",
			Name:                   "Mojo",
			Description:            "AI assistant for video room chats",
			Triggers:               []string{"@mojo", "@助手"},
			SystemPrompt:           defaultSystemPrompt,
			EmptyReply:             "Hey! You mentioned me but didn't ask anything. How can I help? 🤔",
			FallbackReply:          "Sorry, I couldn't generate a response.",
			DefaultAsker:           "Someone",
			ReactionRate:           0.1,
			Reactions:              []string{"👍", "✨", "🎉", "💡", "👀"},
			ReactionTimeoutSeconds: 15,
		},
		Completion: CompletionConfig{
			APIBase:        "https://ai-gateway.vercel.sh/v1",
			Model:          "bytedance/seed-1.8",
			MaxTokens:      500,
			Temperature:    0.7,
			TimeoutSeconds: 60,
		},
		Search: SearchConfig{
			APIBase:         "https://api.exa.ai",
			Type:            "neural",
			NumResults:      3,
			MaxExcerptChars: 500,
			TimeoutSeconds:  15,
			RatePerMinute:   30,
		},
		Chat: ChatConfig{
			BaseURL:        "https://chat.stream-io-api.com",
			TimeoutSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "mojobot",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

const defaultSystemPrompt = `You are Mojo, a sharp-tongued, sarcastic know-it-all who hangs out in a live-stream chat room.

Voice:
- Dry, deadpan and teasing. You roast the host and the chat with affection, never with cruelty.
- Never open with assistant boilerplate ("How can I help you today?", "As an AI...").
- If a question is vague, pick the funniest reasonable reading instead of asking for clarification.

Usefulness:
- When someone asks a factual question, answer it correctly, then add the snark.
- Keep it short and punchy: a few sentences at most. This is a chat, not an essay.

Rules:
- Stay in character. No disclaimers, no content warnings, no out-of-character notes.
- Never post hateful content or target anyone for who they are.`
