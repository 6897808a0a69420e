package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
	"StreamPulse/internal/guard"
	"StreamPulse/internal/metrics"
	"StreamPulse/internal/ports"
)

// SchedulerDeps wires the scheduler's collaborators.
type SchedulerDeps struct {
	Streams   ports.StreamStore
	Guard     *guard.Guard
	Runner    Runner
	Publisher Publisher
	Logger    *slog.Logger
}

// TaskScheduler decides which streams are due and keeps next_run consistent.
// Executions run on a bounded worker pool; outcomes come back on a channel
// consumed by the same loop that ticks, so schedule state has a single writer.
type TaskScheduler struct {
	streams   ports.StreamStore
	guard     *guard.Guard
	runner    Runner
	publisher Publisher
	logger    *slog.Logger
	cfg       config.SchedulerConfig
	now       func() time.Time

	outcomes chan finishedRun
	slots    chan struct{}

	// provisional holds the next_run computed at admission, committed only
	// when the execution succeeds. Keyed by stream id; the guard guarantees
	// one in-flight execution per stream.
	provMu      sync.Mutex
	provisional map[string]time.Time
}

// NewTaskScheduler constructs the scheduler.
func NewTaskScheduler(deps SchedulerDeps, cfg config.SchedulerConfig) *TaskScheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &TaskScheduler{
		streams:     deps.Streams,
		guard:       deps.Guard,
		runner:      deps.Runner,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
		outcomes:    make(chan finishedRun, workers),
		slots:       make(chan struct{}, workers),
		provisional: make(map[string]time.Time),
	}
}

// Run drives the tick loop until the context is cancelled. Store errors are
// logged and retried on the next tick; nothing here is process-fatal.
func (s *TaskScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-s.outcomes:
			s.handleOutcome(ctx, out)
		case t := <-ticker.C:
			s.Tick(ctx, t)
		}
	}
}

// Tick scans active streams whose next_run has passed and starts an execution
// for each the guard admits. A denied stream is deferred to the next tick
// without advancing next_run.
func (s *TaskScheduler) Tick(ctx context.Context, now time.Time) {
	metrics.SchedulerTicks.Inc()

	due, err := s.streams.Due(ctx, now)
	if err != nil {
		s.log().Error("due scan failed", "error", err)
		return
	}

	for _, st := range due {
		if !st.IsActive {
			continue
		}

		token, ok := s.guard.TryAcquire(st.ID)
		if !ok {
			metrics.StreamsDeferred.Inc()
			continue
		}

		// Anchor the provisional next_run at the previous next_run, not
		// now, so delivery latency never causes drift or run-skipping.
		next, err := st.Schedule.NextRun(st.NextRun)
		if err != nil {
			s.guard.Release(token)
			s.log().Error("next run computation failed", "stream", st.ID, "error", err)
			continue
		}

		if !s.start(ctx, st, domain.NewExecution(st.ID, true), token, next) {
			metrics.StreamsDeferred.Inc()
		}
	}
}

// ManualTrigger bypasses the due-time check but still goes through the guard.
// It never alters next_run. A denied admission surfaces as "already running".
func (s *TaskScheduler) ManualTrigger(ctx context.Context, streamID string) (domain.PipelineExecution, error) {
	st, err := s.streams.Stream(ctx, streamID)
	if err != nil {
		return domain.PipelineExecution{}, fmt.Errorf("load stream: %w", err)
	}

	token, ok := s.guard.TryAcquire(st.ID)
	if !ok {
		return domain.PipelineExecution{}, domain.ErrAlreadyRunning
	}

	exec := domain.NewExecution(st.ID, false)
	if !s.start(ctx, st, exec, token, time.Time{}) {
		s.guard.Release(token)
		return domain.PipelineExecution{}, fmt.Errorf("worker pool exhausted: %w", domain.ErrAlreadyRunning)
	}
	return exec, nil
}

// finishedRun pairs an execution outcome with the guard token that admitted
// it. The token travels to handleOutcome so the lease outlives the worker and
// is only released once the schedule state is committed.
type finishedRun struct {
	out   RunOutcome
	token guard.Token
}

// start claims a worker slot and runs the execution asynchronously. Returns
// false (releasing the guard) when the pool is full.
func (s *TaskScheduler) start(ctx context.Context, st domain.Stream, exec domain.PipelineExecution, token guard.Token, provisionalNext time.Time) bool {
	select {
	case s.slots <- struct{}{}:
	default:
		s.guard.Release(token)
		return false
	}

	if exec.IsAutomated {
		s.provMu.Lock()
		s.provisional[st.ID] = provisionalNext
		s.provMu.Unlock()
	}

	go func() {
		defer func() { <-s.slots }()

		stop := make(chan struct{})
		go s.keepAlive(token, stop)
		out := s.runner.Run(ctx, st, exec)
		close(stop)

		s.outcomes <- finishedRun{out: out, token: token}
	}()

	return true
}

// keepAlive renews the execution lease while the run is in flight, so an
// execution slower than the lease TTL cannot lose its slot to the next tick.
func (s *TaskScheduler) keepAlive(token guard.Token, stop <-chan struct{}) {
	interval := s.guard.TTL() / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.guard.Renew(token) {
				select {
				case <-stop:
				default:
					s.log().Warn("execution lease reclaimed mid-run", "stream", token.StreamID)
				}
				return
			}
		}
	}
}

// handleOutcome commits or rolls back the provisional next_run and advances
// the backoff state machine persisted on the stream record. The guard lease
// is held until this returns: releasing it earlier would let a tick see the
// still-stale stored next_run and admit the same cycle twice.
func (s *TaskScheduler) handleOutcome(ctx context.Context, run finishedRun) {
	defer s.guard.Release(run.token)

	out := run.out
	exec := out.Execution

	s.provMu.Lock()
	prov, hasProv := s.provisional[exec.StreamID]
	delete(s.provisional, exec.StreamID)
	s.provMu.Unlock()

	st, err := s.streams.Stream(ctx, exec.StreamID)
	if err != nil {
		s.log().Error("reload stream after outcome failed", "stream", exec.StreamID, "error", err)
		return
	}

	now := s.now()
	st.LastRun = now

	switch {
	case out.Err == nil:
		st.Failures = 0
		st.SourceCount += exec.SourcesAnalyzed
		st.InsightCount += out.Insights
		if exec.IsAutomated && hasProv {
			st.NextRun = prov
		}
	case !exec.IsAutomated:
		// Manual failures surface per execution; they do not touch the
		// schedule or the backoff counter.
	default:
		st.Failures++
		if st.Failures >= s.cfg.MaxFailures {
			st.IsActive = false
			metrics.StreamsPaused.Inc()
			s.notifyPaused(ctx, st)
		} else {
			st.NextRun = now.Add(s.backoff(st.Failures))
		}
	}

	if err := s.streams.SaveStream(ctx, st); err != nil {
		s.log().Error("persist schedule outcome failed", "stream", st.ID, "error", err)
	}
}

// backoff returns base * min(2^failures, cap).
func (s *TaskScheduler) backoff(failures int) time.Duration {
	mult := 1
	for i := 0; i < failures && mult < s.cfg.BackoffCap; i++ {
		mult *= 2
	}
	if mult > s.cfg.BackoffCap {
		mult = s.cfg.BackoffCap
	}
	return time.Duration(mult) * s.cfg.BackoffBase.Std()
}

func (s *TaskScheduler) notifyPaused(ctx context.Context, st domain.Stream) {
	msg := domain.NewMessage(st.ID, domain.KindNotice, s.now())
	msg.Notice = &domain.NoticePayload{
		Level: "error",
		Text:  fmt.Sprintf("%s: stream %q paused after %d consecutive failures", domain.ErrBackoffExhausted, st.Name, st.Failures),
	}
	if _, err := s.publisher.Publish(ctx, st.Owner, msg); err != nil {
		s.log().Error("pause notification failed", "stream", st.ID, "error", err)
	}
}

// AwaitOutcome blocks until the next execution outcome is processed or the
// context ends. Used by tests and the manual-trigger path for deterministic
// assertions without the tick loop.
func (s *TaskScheduler) AwaitOutcome(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case out := <-s.outcomes:
		s.handleOutcome(ctx, out)
		return true
	}
}

func (s *TaskScheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
