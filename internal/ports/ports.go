package ports

import (
	"context"
	"time"

	"StreamPulse/internal/domain"
)

// StreamStore is the durable record of streams and their schedule fields.
type StreamStore interface {
	Stream(ctx context.Context, id string) (domain.Stream, error)
	StreamsByOwner(ctx context.Context, owner string) ([]domain.Stream, error)
	// Due returns active streams with next_run <= now.
	Due(ctx context.Context, now time.Time) ([]domain.Stream, error)
	SaveStream(ctx context.Context, st domain.Stream) error
}

// ExecutionStore persists pipeline execution snapshots.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec domain.PipelineExecution) error
}

// NewsletterStore persists research artifacts.
type NewsletterStore interface {
	SaveNewsletter(ctx context.Context, n domain.Newsletter) error
	// NextReportNumber returns the next monotonic per-stream number.
	NextReportNumber(ctx context.Context, streamID string) (int, error)
}

// AlertStore persists admitted news alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, a domain.NewsAlert) error
	// RecentAlerts returns alerts sent after the given instant, newest last.
	RecentAlerts(ctx context.Context, streamID string, since time.Time) ([]domain.NewsAlert, error)
	MarkAlertRead(ctx context.Context, alertID string) error
}

// MessageStore persists the delivery envelope log. AppendMessage assigns and
// returns the next strictly increasing per-stream sequence number.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg domain.Message) (int64, error)
	// MessagesSince returns messages with seq > since in ascending order.
	MessagesSince(ctx context.Context, streamID string, since int64) ([]domain.Message, error)
}

// SourceProvider pulls fresh sources for a stream during discovery.
type SourceProvider interface {
	Discover(ctx context.Context, st domain.Stream) ([]domain.Source, error)
}

// Analyst derives insights and alert candidates from discovered sources.
type Analyst interface {
	Insights(ctx context.Context, st domain.Stream, sources []domain.Source) ([]string, error)
	Candidates(ctx context.Context, st domain.Stream, sources []domain.Source) ([]domain.AlertCandidate, error)
}

// Synthesizer composes the newsletter text for research streams.
type Synthesizer interface {
	Compose(ctx context.Context, st domain.Stream, sources []domain.Source, insights []string) (title, summary, body string, err error)
}

// EventMirror republishes delivered messages to an external bus.
type EventMirror interface {
	Mirror(msg domain.Message) error
}
