package domain

import (
	"context"
	"fmt"
	"strings"
)

// SearchResult is a single hit returned by a web search backend.
type SearchResult struct {
	Title string
	URL   string
	Text  string
}

// SearchOptions bounds a single search request.
type SearchOptions struct {
	NumResults      int
	MaxExcerptChars int
}

// Searcher is a web search backend.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
	Name() string
}

// WebContextEntry is one ranked excerpt inside a WebContext.
type WebContextEntry struct {
	Rank    int
	Title   string
	Excerpt string
}

// WebContext is formatted search context for the prompt. A nil *WebContext means
// no context is available; a non-nil one always has at least one entry.
type WebContext struct {
	Entries []WebContextEntry
}

// String renders the context as numbered "title: excerpt" blocks separated by blank lines.
func (w *WebContext) String() string {
	if w == nil {
		return ""
	}
	blocks := make([]string, 0, len(w.Entries))
	for _, e := range w.Entries {
		blocks = append(blocks, fmt.Sprintf("[%d] %s: %s", e.Rank, e.Title, e.Excerpt))
	}
	return strings.Join(blocks, "\n\n")
}
