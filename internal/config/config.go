package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for mojobot. It is built once at startup and
// never mutated afterwards.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Agent      AgentConfig      `json:"agent" yaml:"agent"`
	Completion CompletionConfig `json:"completion" yaml:"completion"`
	Search     SearchConfig     `json:"search" yaml:"search"`
	Chat       ChatConfig       `json:"chat" yaml:"chat"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	WebhookPath            string `json:"webhookPath" yaml:"webhookPath"`
	MaxBodyBytes           int64  `json:"maxBodyBytes" yaml:"maxBodyBytes"`
	ShutdownTimeoutSeconds int    `json:"shutdownTimeoutSeconds" yaml:"shutdownTimeoutSeconds"`
}

// AgentConfig describes the bot persona and its engagement rules.
type AgentConfig struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Triggers      []string `json:"triggers" yaml:"triggers"`
	SystemPrompt  string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	PromptFile    string   `json:"promptFile,omitempty" yaml:"promptFile,omitempty"` // overrides systemPrompt when set
	EmptyReply    string   `json:"emptyReply" yaml:"emptyReply"`
	FallbackReply string   `json:"fallbackReply" yaml:"fallbackReply"`
	DefaultAsker  string   `json:"defaultAsker" yaml:"defaultAsker"`
	ReactionRate  float64  `json:"reactionRate" yaml:"reactionRate"`
	Reactions     []string `json:"reactions" yaml:"reactions"`
	// ReactionTimeoutSeconds bounds a detached reaction session.
	ReactionTimeoutSeconds int `json:"reactionTimeoutSeconds" yaml:"reactionTimeoutSeconds"`
}

type CompletionConfig struct {
	APIKey         string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase        string  `json:"apiBase" yaml:"apiBase"`
	Model          string  `json:"model" yaml:"model"`
	MaxTokens      int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	TimeoutSeconds int     `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type SearchConfig struct {
	APIKey          string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase         string `json:"apiBase" yaml:"apiBase"`
	Type            string `json:"type" yaml:"type"` // neural | keyword | auto
	NumResults      int    `json:"numResults" yaml:"numResults"`
	MaxExcerptChars int    `json:"maxExcerptChars" yaml:"maxExcerptChars"`
	TimeoutSeconds  int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	// RatePerMinute caps outbound searches; 0 disables the cap.
	RatePerMinute int `json:"ratePerMinute" yaml:"ratePerMinute"`
}

type ChatConfig struct {
	APIKey                 string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APISecret              string `json:"apiSecret,omitempty" yaml:"apiSecret,omitempty"`
	BaseURL                string `json:"baseUrl" yaml:"baseUrl"`
	TimeoutSeconds         int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	VerifyWebhookSignature bool   `json:"verifyWebhookSignature" yaml:"verifyWebhookSignature"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

type TracingConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // host:port of an OTLP/HTTP collector
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	ServiceName string            `json:"serviceName" yaml:"serviceName"`
	SampleRate  float64           `json:"sampleRate" yaml:"sampleRate"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// SearchEnabled reports whether web augmentation can run at all.
func (c *Config) SearchEnabled() bool { return c.Search.APIKey != "" }

// Addr returns the listen address of the webhook server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func DefaultConfigPath() string { return "mojobot.yaml" }

// LoadEnvFiles loads .env and .env.local from the working directory.
// Variables already present in the environment are left untouched.
func LoadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// Load reads the config file at path (YAML, or JSON when the extension is .json),
// expands ${VAR} references, applies environment overrides and validates the result.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = []byte(ExpandEnvVars(string(data)))
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only deployment
	default:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if cfg.Agent.PromptFile != "" {
		prompt, err := os.ReadFile(ExpandPath(cfg.Agent.PromptFile))
		if err != nil {
			return nil, fmt.Errorf("cannot read prompt file: %w", err)
		}
		cfg.Agent.SystemPrompt = strings.TrimSpace(string(prompt))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides overlays the deployment's environment variables.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	envStr(&c.Chat.APIKey, "STREAM_API_KEY", "NEXT_PUBLIC_STREAM_API_KEY")
	envStr(&c.Chat.APISecret, "STREAM_API_SECRET")
	envStr(&c.Completion.APIKey, "AI_GATEWAY_API_KEY")
	envStr(&c.Completion.APIBase, "AI_GATEWAY_BASE_URL")
	envStr(&c.Completion.Model, "AI_MODEL")
	envStr(&c.Agent.ID, "MOJO_USER_ID")
	envStr(&c.Search.APIKey, "EXA_API_KEY")
	envStr(&c.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("MOJOBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset ${VAR}
// without a default is left as-is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML (or JSON for a .json path).
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create config directory: %w", err)
		}
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values. Missing credentials are not
// errors here: the completion key is checked when generation first runs, and a
// missing search key only disables augmentation.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.maxBodyBytes must be > 0")
	}
	if strings.TrimSpace(cfg.Agent.ID) == "" {
		errs = append(errs, "agent.id is required")
	}
	if len(cfg.Agent.Triggers) == 0 {
		errs = append(errs, "agent.triggers must not be empty")
	}
	for i, t := range cfg.Agent.Triggers {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, fmt.Sprintf("agent.triggers[%d] is blank", i))
		}
	}
	if cfg.Agent.ReactionRate < 0 || cfg.Agent.ReactionRate > 1 {
		errs = append(errs, "agent.reactionRate must be between 0 and 1")
	}
	if cfg.Agent.ReactionRate > 0 && len(cfg.Agent.Reactions) == 0 {
		errs = append(errs, "agent.reactions must not be empty when reactionRate > 0")
	}
	if strings.TrimSpace(cfg.Agent.EmptyReply) == "" {
		errs = append(errs, "agent.emptyReply is required")
	}
	if strings.TrimSpace(cfg.Agent.FallbackReply) == "" {
		errs = append(errs, "agent.fallbackReply is required")
	}
	if cfg.Completion.MaxTokens < 1 {
		errs = append(errs, "completion.maxTokens must be >= 1")
	}
	if cfg.Completion.Temperature < 0 || cfg.Completion.Temperature > 2 {
		errs = append(errs, "completion.temperature must be between 0 and 2")
	}
	if cfg.Search.NumResults < 1 || cfg.Search.NumResults > 3 {
		errs = append(errs, "search.numResults must be between 1 and 3")
	}
	if cfg.Search.MaxExcerptChars < 1 {
		errs = append(errs, "search.maxExcerptChars must be >= 1")
	}
	if cfg.Search.RatePerMinute < 0 {
		errs = append(errs, "search.ratePerMinute must be >= 0")
	}
	if cfg.Chat.VerifyWebhookSignature && cfg.Chat.APISecret == "" {
		errs = append(errs, "chat.verifyWebhookSignature requires chat.apiSecret")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be one of: text, json")
	}
	if cfg.Tracing.Enabled && (cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1) {
		errs = append(errs, "tracing.sampleRate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
