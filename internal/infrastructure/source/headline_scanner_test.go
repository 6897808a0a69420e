package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
)

const listPage = `
<ul class="items">
  <li class="item">
    <span class="headline">GPU prices fall again</span>
    <a class="link" href="/story/gpu-prices">read</a>
    <p class="teaser">Supply finally catches demand.</p>
  </li>
  <li class="item">
    <span class="headline">New compiler released</span>
    <a class="link" href="https://other.example/compiler">read</a>
  </li>
  <li class="item">
    <span class="headline">Duplicate link entry</span>
    <a class="link" href="/story/gpu-prices">read</a>
  </li>
  <li class="item">
    <span class="headline"></span>
    <a class="link" href="/story/untitled">read</a>
  </li>
</ul>`

func testSite(url string) config.SourceSite {
	return config.SourceSite{
		Name:            "tech-front",
		URL:             url,
		Scanner:         "headline",
		ItemSelector:    "li.item",
		TitleSelector:   "span.headline",
		LinkSelector:    "a.link",
		SnippetSelector: "p.teaser",
		Credibility:     0.7,
	}
}

func TestHeadlineScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listPage))
	}))
	defer server.Close()

	sc := NewHeadlineScanner(server.Client())
	sources, err := sc.Scan(context.Background(), testSite(server.URL))
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	// Duplicate href and the untitled item are dropped.
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	first := sources[0]
	if first.Title != "GPU prices fall again" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.URL != server.URL+"/story/gpu-prices" {
		t.Fatalf("relative href should resolve against the site url, got %s", first.URL)
	}
	if first.Snippet != "Supply finally catches demand." {
		t.Fatalf("unexpected snippet: %s", first.Snippet)
	}
	if first.Site != "tech-front" || first.Credibility != 0.7 {
		t.Fatalf("site metadata not carried: %+v", first)
	}

	if sources[1].URL != "https://other.example/compiler" {
		t.Fatalf("absolute href must pass through unchanged, got %s", sources[1].URL)
	}
}

func TestHeadlineScannerNonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sc := NewHeadlineScanner(server.Client())
	if _, err := sc.Scan(context.Background(), testSite(server.URL)); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestProviderFiltersByStreamTerms(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`
<ul class="items">
  <li class="item">
    <span class="headline">Quantum breakthrough announced</span>
    <a class="link" href="/q">read</a>
  </li>
  <li class="item">
    <span class="headline">Local sports roundup</span>
    <a class="link" href="/s">read</a>
  </li>
</ul>`))
	}))
	defer server.Close()

	registry := NewRegistry()
	registry.Register(NewHeadlineScanner(server.Client()))
	provider := NewProvider(registry, []config.SourceSite{testSite(server.URL)}, nil)

	st := domain.Stream{
		ID:       "stream-1",
		Focus:    domain.FocusResearch,
		Research: domain.ResearchConfig{Topics: []string{"quantum"}},
	}

	sources, err := provider.Discover(context.Background(), st)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected only the matching source, got %d", len(sources))
	}
	if sources[0].Title != "Quantum breakthrough announced" {
		t.Fatalf("unexpected source kept: %s", sources[0].Title)
	}

	// No terms keeps everything.
	st.Research.Topics = nil
	sources, err = provider.Discover(context.Background(), st)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("termless stream should keep all sources, got %d", len(sources))
	}
}

func TestProviderCapsResearchSources(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`
<ul class="items">
  <li class="item"><span class="headline">one</span><a class="link" href="/1">x</a></li>
  <li class="item"><span class="headline">two</span><a class="link" href="/2">x</a></li>
  <li class="item"><span class="headline">three</span><a class="link" href="/3">x</a></li>
</ul>`))
	}))
	defer server.Close()

	registry := NewRegistry()
	registry.Register(NewHeadlineScanner(server.Client()))
	provider := NewProvider(registry, []config.SourceSite{testSite(server.URL)}, nil)

	st := domain.Stream{
		ID:       "stream-1",
		Focus:    domain.FocusResearch,
		Research: domain.ResearchConfig{MaxSources: 2},
	}

	sources, err := provider.Discover(context.Background(), st)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected the research cap to apply, got %d", len(sources))
	}
}

func TestProviderUnknownScanner(t *testing.T) {
	t.Parallel()

	site := testSite("https://unused.example")
	site.Scanner = "rss"
	provider := NewProvider(NewRegistry(), []config.SourceSite{site}, nil)

	if _, err := provider.Discover(context.Background(), domain.Stream{Focus: domain.FocusNews}); err == nil {
		t.Fatalf("expected unknown scanner error")
	}
}
