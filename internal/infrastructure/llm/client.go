// Package llm provides Analyst and Synthesizer implementations: an
// OpenAI-compatible HTTP client and a deterministic heuristic fallback.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var (
	_ ports.Analyst     = (*Client)(nil)
	_ ports.Synthesizer = (*Client)(nil)
)

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Insights asks the model for the key findings across the sources.
func (c *Client) Insights(ctx context.Context, st domain.Stream, sources []domain.Source) ([]string, error) {
	prompt := fmt.Sprintf(
		"Stream %q (research). List the key insights across these sources as a JSON array of strings.\n%s",
		st.Name, sourcesBlock(sources))

	var insights []string
	if err := c.completeJSON(ctx, prompt, &insights); err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}
	return insights, nil
}

// Candidates asks the model to extract scored alert candidates.
func (c *Client) Candidates(ctx context.Context, st domain.Stream, sources []domain.Source) ([]domain.AlertCandidate, error) {
	prompt := fmt.Sprintf(
		"Stream %q (news). For each source worth alerting on, emit a JSON array of "+
			`{"title","body","sourceUrl","importance"} with importance an integer 1-10.`+"\n%s",
		st.Name, sourcesBlock(sources))

	var raw []struct {
		Title      string `json:"title"`
		Body       string `json:"body"`
		SourceURL  string `json:"sourceUrl"`
		Importance int    `json:"importance"`
	}
	if err := c.completeJSON(ctx, prompt, &raw); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	out := make([]domain.AlertCandidate, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.AlertCandidate{
			Title:      r.Title,
			Body:       r.Body,
			SourceURL:  r.SourceURL,
			Importance: clampScore(r.Importance),
		})
	}
	return out, nil
}

// Compose asks the model for the newsletter title, summary, and body.
func (c *Client) Compose(ctx context.Context, st domain.Stream, sources []domain.Source, insights []string) (string, string, string, error) {
	prompt := fmt.Sprintf(
		"Stream %q (research). Compose a newsletter as JSON "+
			`{"title","summary","body"} from these insights and sources.`+
			"\nInsights: %s\n%s",
		st.Name, strings.Join(insights, "; "), sourcesBlock(sources))

	var raw struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
		Body    string `json:"body"`
	}
	if err := c.completeJSON(ctx, prompt, &raw); err != nil {
		return "", "", "", fmt.Errorf("compose: %w", err)
	}
	return raw.Title, raw.Summary, raw.Body, nil
}

// completeJSON posts a chat completion request and decodes the first choice's
// content into v.
func (c *Client) completeJSON(ctx context.Context, prompt string, v any) error {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return fmt.Errorf("llm client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("llm returned no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("parse completion: %w", err)
	}
	return nil
}

func sourcesBlock(sources []domain.Source) string {
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "- %s (%s) %s\n", s.Title, s.URL, s.Snippet)
	}
	return b.String()
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
