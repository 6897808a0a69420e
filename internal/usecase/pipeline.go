package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
	"StreamPulse/internal/metrics"
	"StreamPulse/internal/ports"
)

// Publisher is the broker surface the use cases need.
type Publisher interface {
	Publish(ctx context.Context, owner string, msg domain.Message) (domain.Message, error)
}

// RunOutcome reports a finished execution back to the scheduler.
type RunOutcome struct {
	Execution domain.PipelineExecution
	Insights  int
	Err       error
}

// Runner executes one admitted stream; implemented by Pipeline.
type Runner interface {
	Run(ctx context.Context, st domain.Stream, exec domain.PipelineExecution) RunOutcome
}

// PipelineDeps wires all driven adapters into the pipeline engine.
type PipelineDeps struct {
	Source      ports.SourceProvider
	Analyst     ports.Analyst
	Synthesizer ports.Synthesizer
	Executions  ports.ExecutionStore
	Newsletters ports.NewsletterStore
	Alerts      *AlertFilter
	Publisher   Publisher
	Logger      *slog.Logger
}

// Pipeline turns one due stream into an artifact through the stage sequence
// discovery -> analysis -> synthesis -> finalize. Transitions are strictly
// forward except same-stage retry; completed/failed are terminal.
type Pipeline struct {
	source      ports.SourceProvider
	analyst     ports.Analyst
	synthesizer ports.Synthesizer
	executions  ports.ExecutionStore
	newsletters ports.NewsletterStore
	alerts      *AlertFilter
	publisher   Publisher
	logger      *slog.Logger
	cfg         config.PipelineConfig
	retries     int
	now         func() time.Time
}

var _ Runner = (*Pipeline)(nil)

// NewPipeline constructs the engine. A nil StageRetries means no retries.
func NewPipeline(deps PipelineDeps, cfg config.PipelineConfig) *Pipeline {
	retries := 0
	if cfg.StageRetries != nil {
		retries = *cfg.StageRetries
	}
	return &Pipeline{
		source:      deps.Source,
		analyst:     deps.Analyst,
		synthesizer: deps.Synthesizer,
		executions:  deps.Executions,
		newsletters: deps.Newsletters,
		alerts:      deps.Alerts,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		cfg:         cfg,
		retries:     retries,
		now:         time.Now,
	}
}

// Run advances the execution stage by stage, emitting a progress event after
// each stage. Discovery and analysis are retried up to the configured budget
// within the same execution; synthesis and finalize failures are terminal.
func (p *Pipeline) Run(ctx context.Context, st domain.Stream, exec domain.PipelineExecution) RunOutcome {
	exec.Status = domain.ExecutionRunning
	exec.StartedAt = p.now()
	p.saveExec(ctx, exec)

	var (
		sources    []domain.Source
		insights   []string
		candidates []domain.AlertCandidate
	)

	err := p.runStage(ctx, &exec, domain.StageDiscovery, p.retries, func(ctx context.Context) error {
		var err error
		sources, err = p.source.Discover(ctx, st)
		return err
	})
	if err != nil {
		return p.fail(ctx, st, exec, err)
	}
	p.progress(ctx, st, exec, len(sources), 0)

	err = p.runStage(ctx, &exec, domain.StageAnalysis, p.retries, func(ctx context.Context) error {
		var err error
		if st.Focus == domain.FocusNews {
			candidates, err = p.analyst.Candidates(ctx, st, sources)
		} else {
			insights, err = p.analyst.Insights(ctx, st, sources)
		}
		return err
	})
	if err != nil {
		return p.fail(ctx, st, exec, err)
	}
	exec.SourcesAnalyzed = len(sources)
	exec.Confidence = p.confidence(sources)
	p.progress(ctx, st, exec, len(sources), len(sources))

	var title, summary, body string
	err = p.runStage(ctx, &exec, domain.StageSynthesis, 0, func(ctx context.Context) error {
		if st.Focus == domain.FocusNews {
			// News synthesis is local: candidates already carry their
			// scores and bodies.
			return nil
		}
		var err error
		title, summary, body, err = p.synthesizer.Compose(ctx, st, sources, insights)
		return err
	})
	if err != nil {
		return p.fail(ctx, st, exec, err)
	}
	p.progress(ctx, st, exec, len(sources), len(sources))

	// Finalize is terminal on failure: no partial artifact survives.
	err = p.runStage(ctx, &exec, domain.StageFinalize, 0, func(ctx context.Context) error {
		if st.Focus == domain.FocusNews {
			_, err := p.alerts.Admit(ctx, st, candidates)
			return err
		}
		return p.publishNewsletter(ctx, st, &exec, sources, insights, title, summary, body)
	})
	if err != nil {
		return p.fail(ctx, st, exec, err)
	}

	exec.Status = domain.ExecutionCompleted
	exec.FinishedAt = p.now()
	p.saveExec(ctx, exec)
	metrics.ExecutionsTotal.WithLabelValues(string(st.Focus), string(domain.ExecutionCompleted)).Inc()

	if p.logger != nil {
		p.logger.Info("execution completed",
			"stream", st.ID,
			"execution", exec.ID,
			"sources", exec.SourcesAnalyzed,
			"confidence", exec.Confidence)
	}
	return RunOutcome{Execution: exec, Insights: len(insights)}
}

// runStage executes fn under the stage timeout, re-entering the same stage up
// to budget extra attempts.
func (p *Pipeline) runStage(ctx context.Context, exec *domain.PipelineExecution, stage domain.Stage, budget int, fn func(context.Context) error) error {
	exec.Stage = stage
	p.saveExec(ctx, *exec)

	var err error
	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(string(stage)).Inc()
			if p.logger != nil {
				p.logger.Warn("retrying stage", "stage", stage, "execution", exec.ID, "attempt", attempt+1)
			}
		}

		start := p.now()
		stageCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout.Std())
		err = fn(stageCtx)
		cancel()
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(p.now().Sub(start).Seconds())

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("stage %s: %w: %v", stage, domain.ErrStageFailed, err)
}

func (p *Pipeline) publishNewsletter(ctx context.Context, st domain.Stream, exec *domain.PipelineExecution, sources []domain.Source, insights []string, title, summary, body string) error {
	reportNo, err := p.newsletters.NextReportNumber(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("next report number: %w", err)
	}

	urls := make([]string, 0, len(sources))
	for _, s := range sources {
		urls = append(urls, s.URL)
	}

	n := domain.Newsletter{
		ID:           uuid.NewString(),
		StreamID:     st.ID,
		Title:        title,
		Summary:      summary,
		Body:         body,
		Sources:      urls,
		KeyInsights:  insights,
		Confidence:   exec.Confidence,
		ReportNumber: reportNo,
		GeneratedAt:  p.now(),
	}
	if err := p.newsletters.SaveNewsletter(ctx, n); err != nil {
		return fmt.Errorf("persist newsletter: %w", err)
	}

	msg := domain.NewMessage(st.ID, domain.KindNewsletter, p.now())
	msg.Newsletter = &n
	if _, err := p.publisher.Publish(ctx, st.Owner, msg); err != nil {
		return fmt.Errorf("deliver newsletter: %w", err)
	}
	return nil
}

// confidence is a weighted combination of source count and mean credibility,
// saturating at 1.0. Deterministic for a frozen corpus and fixed weights.
func (p *Pipeline) confidence(sources []domain.Source) float64 {
	if len(sources) == 0 {
		return 0
	}

	target := p.cfg.TargetSources
	if target <= 0 {
		target = 1
	}
	countPart := float64(len(sources)) / float64(target)
	if countPart > 1 {
		countPart = 1
	}

	var credSum float64
	for _, s := range sources {
		credSum += s.Credibility
	}
	credPart := credSum / float64(len(sources))

	conf := p.cfg.CountWeight*countPart + p.cfg.CredibilityWeight*credPart
	if conf > 1 {
		conf = 1
	}
	return conf
}

func (p *Pipeline) progress(ctx context.Context, st domain.Stream, exec domain.PipelineExecution, found, analyzed int) {
	msg := domain.NewMessage(st.ID, domain.KindProgress, p.now())
	msg.Progress = &domain.ProgressPayload{
		ExecutionID:     exec.ID,
		Stage:           exec.Stage,
		SourcesFound:    found,
		SourcesAnalyzed: analyzed,
	}
	if _, err := p.publisher.Publish(ctx, st.Owner, msg); err != nil && p.logger != nil {
		p.logger.Warn("progress publish failed", "stream", st.ID, "stage", exec.Stage, "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, st domain.Stream, exec domain.PipelineExecution, err error) RunOutcome {
	exec.Status = domain.ExecutionFailed
	exec.FinishedAt = p.now()
	exec.Error = err.Error()
	p.saveExec(ctx, exec)
	metrics.ExecutionsTotal.WithLabelValues(string(st.Focus), string(domain.ExecutionFailed)).Inc()

	if p.logger != nil {
		p.logger.Error("execution failed", "stream", st.ID, "execution", exec.ID, "stage", exec.Stage, "error", err)
	}
	return RunOutcome{Execution: exec, Err: err}
}

func (p *Pipeline) saveExec(ctx context.Context, exec domain.PipelineExecution) {
	if err := p.executions.SaveExecution(ctx, exec); err != nil && p.logger != nil {
		p.logger.Warn("persist execution failed", "execution", exec.ID, "error", err)
	}
}
