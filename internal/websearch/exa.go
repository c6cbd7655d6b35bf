// Package websearch fetches short web excerpts that ground time-sensitive answers.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mojobot/internal/domain"
	"mojobot/internal/httpclient"
)

// ErrNotConfigured is returned by Search when no API key was supplied.
var ErrNotConfigured = errors.New("web search not configured: missing API key")

const (
	defaultExaBase   = "https://api.exa.ai"
	maxErrorBody     = 512
	maxResponseBytes = 1 << 20
)

// APIError is a non-2xx answer from the search backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search API returned %d: %s", e.StatusCode, e.Body)
}

// Exa is a domain.Searcher backed by the Exa search API.
type Exa struct {
	apiKey     string
	apiBase    string
	searchType string
	client     *http.Client
	logger     *slog.Logger
}

type ExaConfig struct {
	APIKey  string
	APIBase string
	Type    string // neural | keyword | auto
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewExa(cfg ExaConfig) *Exa {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultExaBase
	}
	if cfg.Type == "" {
		cfg.Type = "neural"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Exa{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		searchType: cfg.Type,
		client:     httpclient.New(cfg.Timeout),
		logger:     cfg.Logger,
	}
}

func (e *Exa) Name() string { return "exa" }

// Configured reports whether an API key is present.
func (e *Exa) Configured() bool { return e.apiKey != "" }

type exaRequest struct {
	Query      string      `json:"query"`
	Type       string      `json:"type"`
	NumResults int         `json:"numResults"`
	Contents   exaContents `json:"contents"`
}

type exaContents struct {
	Text exaText `json:"text"`
}

type exaText struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaResponse struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	} `json:"results"`
}

func (e *Exa) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !e.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(exaRequest{
		Query:      query,
		Type:       e.searchType,
		NumResults: opts.NumResults,
		Contents:   exaContents{Text: exaText{MaxCharacters: opts.MaxExcerptChars}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	var parsed exaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, domain.SearchResult{Title: r.Title, URL: r.URL, Text: r.Text})
	}
	e.logger.Debug("web search done", "backend", e.Name(), "results", len(results))
	return results, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
