package websearch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"mojobot/internal/domain"
	"mojobot/internal/metrics"
)

const untitled = "Untitled"

// ContextProvider turns a question into formatted web context. Every failure
// mode degrades to "no context"; it never returns an error.
type ContextProvider struct {
	searcher domain.Searcher
	opts     domain.SearchOptions
	limiter  *rate.Limiter
	logger   *slog.Logger
}

type ContextConfig struct {
	Searcher        domain.Searcher // nil disables augmentation
	NumResults      int
	MaxExcerptChars int
	// RatePerMinute caps outbound searches; 0 means unlimited.
	RatePerMinute int
	Logger        *slog.Logger
}

func NewContextProvider(cfg ContextConfig) *ContextProvider {
	if cfg.NumResults <= 0 {
		cfg.NumResults = 3
	}
	if cfg.MaxExcerptChars <= 0 {
		cfg.MaxExcerptChars = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &ContextProvider{
		searcher: cfg.Searcher,
		opts:     domain.SearchOptions{NumResults: cfg.NumResults, MaxExcerptChars: cfg.MaxExcerptChars},
		logger:   cfg.Logger,
	}
	if cfg.RatePerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return p
}

// Enabled reports whether a search backend is wired in.
func (p *ContextProvider) Enabled() bool {
	if p == nil || p.searcher == nil {
		return false
	}
	if c, ok := p.searcher.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Lookup runs one search for question and returns nil when there is nothing
// usable: search disabled, budget exhausted, backend failure or zero results.
func (p *ContextProvider) Lookup(ctx context.Context, question string) *domain.WebContext {
	if !p.Enabled() {
		metrics.Search("disabled").Inc()
		return nil
	}
	if p.limiter != nil && !p.limiter.Allow() {
		p.logger.Warn("web search budget exhausted, answering without context")
		metrics.Search("limited").Inc()
		return nil
	}

	ctx, span := otel.Tracer("mojobot/websearch").Start(ctx, "websearch.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("backend", p.searcher.Name()))

	results, err := p.searcher.Search(ctx, question, p.opts)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
		}
		span.RecordError(err)
		p.logger.Warn("web search failed, answering without context", "backend", p.searcher.Name(), "err", err)
		metrics.Search("error").Inc()
		return nil
	}

	wc := Format(results, p.opts)
	span.SetAttributes(attribute.Int("results", len(results)))
	if wc == nil {
		metrics.Search("empty").Inc()
		return nil
	}
	metrics.Search("hit").Inc()
	return wc
}

// Format ranks and trims results into a WebContext. It keeps at most
// opts.NumResults entries and cuts each excerpt to opts.MaxExcerptChars.
// It returns nil for an empty result set.
func Format(results []domain.SearchResult, opts domain.SearchOptions) *domain.WebContext {
	if opts.NumResults > 0 && len(results) > opts.NumResults {
		results = results[:opts.NumResults]
	}
	if len(results) == 0 {
		return nil
	}
	wc := &domain.WebContext{Entries: make([]domain.WebContextEntry, 0, len(results))}
	for i, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = untitled
		}
		excerpt := r.Text
		if opts.MaxExcerptChars > 0 {
			excerpt = truncate(excerpt, opts.MaxExcerptChars)
		}
		wc.Entries = append(wc.Entries, domain.WebContextEntry{Rank: i + 1, Title: title, Excerpt: excerpt})
	}
	return wc
}
