package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mojobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSearcher struct {
	results []domain.SearchResult
	err     error
	calls   int
	opts    domain.SearchOptions
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(_ context.Context, _ string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	f.calls++
	f.opts = opts
	return f.results, f.err
}

// --- Exa client ---

func TestExa_SearchRequestShape(t *testing.T) {
	var body map[string]any
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		key = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"results":[
			{"title":"Forecast","url":"https://wx.example/1","text":"Light rain after noon."},
			{"title":"","url":"https://wx.example/2","text":"Showers expected."}]}`)
	}))
	defer srv.Close()

	exa := NewExa(ExaConfig{APIKey: "exa-key", APIBase: srv.URL + "/", Logger: testLogger()})
	results, err := exa.Search(context.Background(), "is it raining today?",
		domain.SearchOptions{NumResults: 3, MaxExcerptChars: 500})
	require.NoError(t, err)

	assert.Equal(t, "exa-key", key)
	assert.Equal(t, "is it raining today?", body["query"])
	assert.Equal(t, "neural", body["type"])
	assert.EqualValues(t, 3, body["numResults"])
	contents := body["contents"].(map[string]any)
	text := contents["text"].(map[string]any)
	assert.EqualValues(t, 500, text["maxCharacters"])

	require.Len(t, results, 2)
	assert.Equal(t, "Forecast", results[0].Title)
	assert.Equal(t, "https://wx.example/2", results[1].URL)
}

func TestExa_NonSuccessIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, strings.Repeat("x", 2000))
	}))
	defer srv.Close()

	exa := NewExa(ExaConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := exa.Search(context.Background(), "q", domain.SearchOptions{NumResults: 1})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestExa_NotConfigured(t *testing.T) {
	exa := NewExa(ExaConfig{Logger: testLogger()})
	assert.False(t, exa.Configured())
	_, err := exa.Search(context.Background(), "q", domain.SearchOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// --- Format ---

func TestFormat(t *testing.T) {
	wc := Format([]domain.SearchResult{
		{Title: "A", Text: "first"},
		{Title: "  ", Text: "second"},
		{Title: "C", Text: "third"},
		{Title: "D", Text: "dropped"},
	}, domain.SearchOptions{NumResults: 3, MaxExcerptChars: 500})

	require.NotNil(t, wc)
	assert.Equal(t, "[1] A: first\n\n[2] Untitled: second\n\n[3] C: third", wc.String())
}

func TestFormat_TruncatesExcerpts(t *testing.T) {
	wc := Format([]domain.SearchResult{{Title: "T", Text: strings.Repeat("é", 600)}},
		domain.SearchOptions{NumResults: 3, MaxExcerptChars: 500})
	require.NotNil(t, wc)
	assert.Equal(t, 500, len([]rune(wc.Entries[0].Excerpt)))
}

func TestFormat_EmptyIsNil(t *testing.T) {
	assert.Nil(t, Format(nil, domain.SearchOptions{NumResults: 3}))
}

// --- ContextProvider ---

func TestLookup_Hit(t *testing.T) {
	s := &fakeSearcher{results: []domain.SearchResult{{Title: "Rain", Text: "Yes."}}}
	p := NewContextProvider(ContextConfig{Searcher: s, Logger: testLogger()})

	wc := p.Lookup(context.Background(), "is it raining today?")
	require.NotNil(t, wc)
	assert.Equal(t, "[1] Rain: Yes.", wc.String())
	assert.Equal(t, domain.SearchOptions{NumResults: 3, MaxExcerptChars: 500}, s.opts)
}

func TestLookup_DegradesToNil(t *testing.T) {
	tests := []struct {
		name     string
		searcher domain.Searcher
	}{
		{"no searcher", nil},
		{"zero results", &fakeSearcher{}},
		{"backend error", &fakeSearcher{err: errors.New("dial tcp: refused")}},
		{"unconfigured exa", NewExa(ExaConfig{Logger: testLogger()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewContextProvider(ContextConfig{Searcher: tt.searcher, Logger: testLogger()})
			assert.Nil(t, p.Lookup(context.Background(), "latest news"))
		})
	}
}

func TestLookup_RateLimited(t *testing.T) {
	s := &fakeSearcher{results: []domain.SearchResult{{Title: "x", Text: "y"}}}
	p := NewContextProvider(ContextConfig{Searcher: s, RatePerMinute: 2, Logger: testLogger()})

	assert.NotNil(t, p.Lookup(context.Background(), "q"))
	assert.NotNil(t, p.Lookup(context.Background(), "q"))
	assert.Nil(t, p.Lookup(context.Background(), "q"))
	assert.Equal(t, 2, s.calls, "exhausted budget must not reach the backend")
}

func TestEnabled(t *testing.T) {
	var nilProvider *ContextProvider
	assert.False(t, nilProvider.Enabled())
	assert.False(t, NewContextProvider(ContextConfig{}).Enabled())
	assert.True(t, NewContextProvider(ContextConfig{Searcher: &fakeSearcher{}}).Enabled())
	assert.True(t, NewContextProvider(ContextConfig{Searcher: NewExa(ExaConfig{APIKey: "k"})}).Enabled())
}
