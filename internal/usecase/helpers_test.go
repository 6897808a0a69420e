package usecase

import (
	"context"
	"sync"
	"time"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
)

// capturePublisher records published messages and assigns sequence numbers
// the way the broker would.
type capturePublisher struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (p *capturePublisher) Publish(_ context.Context, _ string, msg domain.Message) (domain.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg.Seq = int64(len(p.msgs) + 1)
	p.msgs = append(p.msgs, msg)
	return msg, nil
}

func (p *capturePublisher) byKind(kind domain.MessageKind) []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Message
	for _, m := range p.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeSource struct {
	fn func(ctx context.Context, st domain.Stream) ([]domain.Source, error)
}

func (f fakeSource) Discover(ctx context.Context, st domain.Stream) ([]domain.Source, error) {
	return f.fn(ctx, st)
}

type fakeAnalyst struct {
	insightsFn   func(ctx context.Context, st domain.Stream, sources []domain.Source) ([]string, error)
	candidatesFn func(ctx context.Context, st domain.Stream, sources []domain.Source) ([]domain.AlertCandidate, error)
}

func (f fakeAnalyst) Insights(ctx context.Context, st domain.Stream, sources []domain.Source) ([]string, error) {
	return f.insightsFn(ctx, st, sources)
}

func (f fakeAnalyst) Candidates(ctx context.Context, st domain.Stream, sources []domain.Source) ([]domain.AlertCandidate, error) {
	return f.candidatesFn(ctx, st, sources)
}

type fakeSynthesizer struct {
	fn func(ctx context.Context, st domain.Stream, sources []domain.Source, insights []string) (string, string, string, error)
}

func (f fakeSynthesizer) Compose(ctx context.Context, st domain.Stream, sources []domain.Source, insights []string) (string, string, string, error) {
	return f.fn(ctx, st, sources, insights)
}

func alertConfig() config.AlertConfig {
	return config.AlertConfig{
		DedupWindow:       config.Duration(24 * time.Hour),
		SimilarityCutoff:  0.82,
		DefaultThreshold:  5,
		DefaultMaxPerHour: 6,
	}
}

func pipelineConfig() config.PipelineConfig {
	retries := 2
	return config.PipelineConfig{
		StageTimeout:      config.Duration(5 * time.Second),
		StageRetries:      &retries,
		TargetSources:     10,
		CountWeight:       0.4,
		CredibilityWeight: 0.6,
	}
}
