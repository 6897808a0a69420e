package domain

import "time"

// FocusType selects the pipeline shape a stream runs through.
type FocusType string

const (
	FocusNews     FocusType = "news"
	FocusResearch FocusType = "research"
)

// Valid reports whether the focus is one of the known kinds.
func (f FocusType) Valid() bool {
	return f == FocusNews || f == FocusResearch
}

// NewsConfig tunes alerting for news-focused streams.
type NewsConfig struct {
	AlertThreshold     int      `yaml:"alertThreshold" json:"alertThreshold"`
	MaxArticlesPerHour int      `yaml:"maxArticlesPerHour" json:"maxArticlesPerHour"`
	Keywords           []string `yaml:"keywords" json:"keywords,omitempty"`
}

// ResearchConfig tunes synthesis for research-focused streams.
type ResearchConfig struct {
	Topics     []string `yaml:"topics" json:"topics,omitempty"`
	MaxSources int      `yaml:"maxSources" json:"maxSources"`
}

// Stream is a user's recurring topic subscription.
type Stream struct {
	ID       string         `json:"id"`
	Owner    string         `json:"owner"`
	Name     string         `json:"name"`
	Focus    FocusType      `json:"focusType"`
	Schedule ScheduleSpec   `json:"schedule"`
	News     NewsConfig     `json:"newsConfig,omitempty"`
	Research ResearchConfig `json:"researchConfig,omitempty"`

	IsActive bool      `json:"isActive"`
	NextRun  time.Time `json:"nextRun"`
	LastRun  time.Time `json:"lastRun,omitempty"`

	// Failures counts consecutive failed scheduled cycles and drives the
	// scheduler backoff state machine.
	Failures int `json:"-"`

	SourceCount  int `json:"sourceCount"`
	InsightCount int `json:"insightCount"`

	CreatedAt time.Time `json:"createdAt"`
}

// Source is one discovered item a pipeline execution works on.
type Source struct {
	Title       string
	URL         string
	Snippet     string
	Site        string
	Credibility float64
	PublishedAt time.Time
}
