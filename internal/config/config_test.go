package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable applyEnvOverrides reads so host settings
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STREAM_API_KEY", "NEXT_PUBLIC_STREAM_API_KEY", "STREAM_API_SECRET",
		"AI_GATEWAY_API_KEY", "AI_GATEWAY_BASE_URL", "AI_MODEL", "MOJO_USER_ID",
		"EXA_API_KEY", "OTEL_EXPORTER_OTLP_ENDPOINT", "MOJOBOT_PORT",
	} {
		t.Setenv(k, "")
	}
}

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	assert.Error(t, Validate(cfg))

	cfg.Server.Port = -1
	assert.Error(t, Validate(cfg))
}

func TestValidate_ReactionRateBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.ReactionRate = 1.5
	assert.Error(t, Validate(cfg))

	cfg.Agent.ReactionRate = 0
	cfg.Agent.Reactions = nil
	assert.NoError(t, Validate(cfg), "no reactions needed when reactions are off")

	cfg.Agent.ReactionRate = 0.2
	assert.Error(t, Validate(cfg))
}

func TestValidate_EmptyTriggers(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.Triggers = nil
	assert.Error(t, Validate(cfg))

	cfg.Agent.Triggers = []string{"@mojo", "  "}
	assert.Error(t, Validate(cfg))
}

func TestValidate_SearchResultCap(t *testing.T) {
	cfg := Defaults()
	cfg.Search.NumResults = 4
	assert.Error(t, Validate(cfg))
}

func TestValidate_SignatureNeedsSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Chat.VerifyWebhookSignature = true
	assert.Error(t, Validate(cfg))

	cfg.Chat.APISecret = "s3cret"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.ID = ""
	cfg.Logging.Level = "loud"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.id")
	assert.Contains(t, err.Error(), "logging.level")
}

// --- Load ---

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_GATEWAY_API_KEY", "gw-key")
	t.Setenv("MOJO_USER_ID", "mojo-test")
	t.Setenv("NEXT_PUBLIC_STREAM_API_KEY", "stream-key")
	t.Setenv("MOJOBOT_PORT", "8088")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gw-key", cfg.Completion.APIKey)
	assert.Equal(t, "mojo-test", cfg.Agent.ID)
	assert.Equal(t, "stream-key", cfg.Chat.APIKey)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.False(t, cfg.SearchEnabled())
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_EXA_KEY", "exa-123")

	path := filepath.Join(t.TempDir(), "mojobot.yaml")
	data := `
agent:
  id: bot-1
  triggers: ["@bot"]
completion:
  model: ${TEST_MODEL:-gpt-4o-mini}
search:
  apiKey: ${TEST_EXA_KEY}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bot-1", cfg.Agent.ID)
	assert.Equal(t, []string{"@bot"}, cfg.Agent.Triggers)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, "exa-123", cfg.Search.APIKey)
	assert.True(t, cfg.SearchEnabled())
	// untouched sections keep their defaults
	assert.Equal(t, 500, cfg.Completion.MaxTokens)
	assert.Equal(t, 0.1, cfg.Agent.ReactionRate)
}

func TestLoad_JSONByExtension(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mojobot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":9999}}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_MODEL", "env-model")
	path := filepath.Join(t.TempDir(), "mojobot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("completion:\n  model: file-model\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Completion.Model)
}

func TestLoad_PromptFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	promptPath := filepath.Join(dir, "persona.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("  Be brief.\n"), 0o600))
	path := filepath.Join(dir, "mojobot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  promptFile: "+promptPath+"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", cfg.Agent.SystemPrompt)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mojobot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mojobot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  reactionRate: 3\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reactionRate")
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MOJO_SET", "value")
	t.Setenv("MOJO_EMPTY", "")

	assert.Equal(t, "value", ExpandEnvVars("${MOJO_SET}"))
	assert.Equal(t, "fallback", ExpandEnvVars("${MOJO_EMPTY:-fallback}"))
	assert.Equal(t, "${MOJO_UNSET_VAR}", ExpandEnvVars("${MOJO_UNSET_VAR}"))
	assert.Equal(t, "a-value-b", ExpandEnvVars("a-${MOJO_SET}-b"))
}

// --- Save round trip ---

func TestSave_ThenLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "mojobot.yaml")
	cfg := Defaults()
	cfg.Agent.Name = "Saved"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Saved", loaded.Agent.Name)
}

// --- Sanitize / GetByPath ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Completion.APIKey = "sk-1234567890abcdef"
	cfg.Chat.APISecret = "super-secret"
	cfg.Search.APIKey = "short"

	s := Sanitize(cfg)
	assert.Equal(t, "sk-1...cdef", s.Completion.APIKey)
	assert.Equal(t, "***", s.Chat.APISecret)
	assert.Equal(t, "***", s.Search.APIKey)
	assert.Equal(t, "sk-1234567890abcdef", cfg.Completion.APIKey, "original must not change")
}

func TestGetByPath(t *testing.T) {
	cfg := Defaults()

	v, err := GetByPath(cfg, "agent.id")
	require.NoError(t, err)
	assert.Equal(t, "mojo-assistant", v)

	v, err = GetByPath(cfg, "agent.triggers.0")
	require.NoError(t, err)
	assert.Equal(t, "@mojo", v)

	_, err = GetByPath(cfg, "agent.nope")
	assert.Error(t, err)
}
