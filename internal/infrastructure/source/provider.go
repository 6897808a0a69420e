package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
)

// Provider implements discovery via registered scanner strategies, filtered
// by the stream's keywords or topics.
type Provider struct {
	registry *Registry
	sites    []config.SourceSite
	logger   *slog.Logger
}

var _ ports.SourceProvider = (*Provider)(nil)

// NewProvider wires the scanner registry with config-defined sites.
func NewProvider(registry *Registry, sites []config.SourceSite, logger *slog.Logger) *Provider {
	return &Provider{
		registry: registry,
		sites:    sites,
		logger:   logger,
	}
}

// Discover iterates over configured sites, executes their scanners, and keeps
// the items matching the stream's terms.
func (p *Provider) Discover(ctx context.Context, st domain.Stream) ([]domain.Source, error) {
	if p.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	terms := streamTerms(st)
	p.debug("discover", "stream", st.ID, "sites", len(p.sites), "terms", len(terms))

	var aggregated []domain.Source
	for _, site := range p.sites {
		strategy, err := p.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		results, err := strategy.Scan(ctx, site)
		if err != nil {
			return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
		}

		for _, src := range results {
			if matchesTerms(src, terms) {
				aggregated = append(aggregated, src)
			}
		}
		p.debug("site scanned", "site", site.Name, "items", len(results))
	}

	limit := st.Research.MaxSources
	if st.Focus == domain.FocusResearch && limit > 0 && len(aggregated) > limit {
		aggregated = aggregated[:limit]
	}

	p.debug("discover done", "stream", st.ID, "sources", len(aggregated))
	return aggregated, nil
}

func streamTerms(st domain.Stream) []string {
	var raw []string
	if st.Focus == domain.FocusNews {
		raw = st.News.Keywords
	} else {
		raw = st.Research.Topics
	}

	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// matchesTerms keeps everything when the stream declares no terms.
func matchesTerms(src domain.Source, terms []string) bool {
	if len(terms) == 0 {
		return true
	}

	haystack := strings.ToLower(src.Title + " " + src.Snippet)
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

func (p *Provider) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
