package domain

import "time"

// Newsletter is the research-focus artifact. Immutable once created.
type Newsletter struct {
	ID           string    `json:"id"`
	StreamID     string    `json:"streamId"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Body         string    `json:"content"`
	Sources      []string  `json:"sources"`
	KeyInsights  []string  `json:"keyInsights"`
	Confidence   float64   `json:"confidence"`
	ReportNumber int       `json:"reportNumber"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// AlertType classifies a news alert by urgency.
type AlertType string

const (
	AlertBreaking AlertType = "breaking"
	AlertTrending AlertType = "trending"
	AlertUpdate   AlertType = "update"
)

// AlertTypeForScore maps an importance score to its alert type. Total over
// the 1..10 range; scores below the per-stream threshold never reach it.
func AlertTypeForScore(score int) AlertType {
	switch {
	case score >= 9:
		return AlertBreaking
	case score >= 7:
		return AlertTrending
	default:
		return AlertUpdate
	}
}

// AlertCandidate is a scored news item before filtering. Candidates are not
// persisted; only admitted alerts are.
type AlertCandidate struct {
	Title      string
	Body       string
	SourceURL  string
	Importance int
}

// NewsAlert is an admitted, user-visible news alert.
type NewsAlert struct {
	ID         string    `json:"id"`
	StreamID   string    `json:"streamId"`
	Title      string    `json:"title"`
	Body       string    `json:"content"`
	SourceURL  string    `json:"sourceUrl"`
	Importance int       `json:"importanceScore"`
	Type       AlertType `json:"alertType"`
	IsRead     bool      `json:"isRead"`
	SentAt     time.Time `json:"sentAt"`
}
