package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
)

// Heuristic is a deterministic Analyst/Synthesizer used when no API key is
// configured. Given the same source corpus it always produces the same
// output, which also makes pipeline behavior reproducible in tests.
type Heuristic struct{}

var (
	_ ports.Analyst     = Heuristic{}
	_ ports.Synthesizer = Heuristic{}
)

// NewHeuristic returns the stateless fallback.
func NewHeuristic() Heuristic { return Heuristic{} }

// Insights emits one finding per site plus the top titles.
func (Heuristic) Insights(_ context.Context, st domain.Stream, sources []domain.Source) ([]string, error) {
	bySite := map[string]int{}
	for _, s := range sources {
		bySite[s.Site]++
	}

	sites := make([]string, 0, len(bySite))
	for site := range bySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	insights := make([]string, 0, len(sites))
	for _, site := range sites {
		insights = append(insights, fmt.Sprintf("%s published %d items relevant to %s", site, bySite[site], st.Name))
	}
	return insights, nil
}

// Candidates scores each source from its credibility and keyword hits.
func (Heuristic) Candidates(_ context.Context, st domain.Stream, sources []domain.Source) ([]domain.AlertCandidate, error) {
	out := make([]domain.AlertCandidate, 0, len(sources))
	for _, s := range sources {
		out = append(out, domain.AlertCandidate{
			Title:      s.Title,
			Body:       s.Snippet,
			SourceURL:  s.URL,
			Importance: scoreSource(s, st.News.Keywords),
		})
	}
	return out, nil
}

// Compose builds a plain digest newsletter.
func (Heuristic) Compose(_ context.Context, st domain.Stream, sources []domain.Source, insights []string) (string, string, string, error) {
	title := fmt.Sprintf("%s digest", st.Name)
	summary := fmt.Sprintf("%d sources reviewed across %d insights.", len(sources), len(insights))

	var b strings.Builder
	for _, ins := range insights {
		fmt.Fprintf(&b, "* %s\n", ins)
	}
	b.WriteString("\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- %s\n  %s\n", s.Title, s.URL)
	}
	return title, summary, b.String(), nil
}

// scoreSource maps credibility and keyword density onto the 1..10 scale.
func scoreSource(s domain.Source, keywords []string) int {
	score := 1 + int(s.Credibility*5)

	haystack := strings.ToLower(s.Title + " " + s.Snippet)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			score += 2
		}
	}

	return clampScore(score)
}
