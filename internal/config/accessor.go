package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "agent.triggers").
func GetByPath(cfg *Config, path string) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// Sanitize returns a copy of the config with credentials masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Completion.APIKey = maskString(cfg.Completion.APIKey)
	out.Search.APIKey = maskString(cfg.Search.APIKey)
	out.Chat.APIKey = maskString(cfg.Chat.APIKey)
	if cfg.Chat.APISecret != "" {
		out.Chat.APISecret = "***"
	}
	if len(cfg.Tracing.Headers) > 0 {
		out.Tracing.Headers = make(map[string]string, len(cfg.Tracing.Headers))
		for k := range cfg.Tracing.Headers {
			out.Tracing.Headers[k] = "***"
		}
	}
	return &out
}

// maskString keeps the first and last 4 characters of longer secrets.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
