package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
)

// HeadlineScanner extracts items from a headline-list page using the
// selectors configured per site.
type HeadlineScanner struct {
	client *http.Client
}

// NewHeadlineScanner wires an HTTP client.
func NewHeadlineScanner(client *http.Client) *HeadlineScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HeadlineScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HeadlineScanner) Name() string {
	return "headline"
}

// Scan fetches the site page and extracts one source per configured item.
func (h *HeadlineScanner) Scan(ctx context.Context, site config.SourceSite) ([]domain.Source, error) {
	doc, err := h.fetchDocument(ctx, site.URL)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Name, err)
	}

	base, err := url.Parse(site.URL)
	if err != nil {
		return nil, fmt.Errorf("site %s: invalid url: %w", site.Name, err)
	}

	var results []domain.Source
	seen := map[string]struct{}{}

	doc.Find(site.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(site.TitleSelector).First().Text())
		if title == "" {
			return
		}

		href, _ := item.Find(site.LinkSelector).First().Attr("href")
		href = absoluteURL(base, href)
		if href == "" {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}

		snippet := ""
		if site.SnippetSelector != "" {
			snippet = strings.TrimSpace(item.Find(site.SnippetSelector).First().Text())
		}

		results = append(results, domain.Source{
			Title:       title,
			URL:         href,
			Snippet:     snippet,
			Site:        site.Name,
			Credibility: site.Credibility,
		})
	})

	return results, nil
}

func (h *HeadlineScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "StreamPulse/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
