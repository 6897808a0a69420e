// Package memory is a mutex-guarded in-memory implementation of the storage
// ports, used by tests and DSN-less development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
)

// Store holds everything in process memory.
type Store struct {
	mu          sync.RWMutex
	streams     map[string]domain.Stream
	executions  map[string]domain.PipelineExecution
	newsletters map[string][]domain.Newsletter
	alerts      map[string][]domain.NewsAlert
	alertIndex  map[string]alertRef
	messages    map[string][]domain.Message
}

// alertRef locates an alert inside the per-stream slice; positions are
// stable because alerts are append-only.
type alertRef struct {
	streamID string
	pos      int
}

var (
	_ ports.StreamStore     = (*Store)(nil)
	_ ports.ExecutionStore  = (*Store)(nil)
	_ ports.NewsletterStore = (*Store)(nil)
	_ ports.AlertStore      = (*Store)(nil)
	_ ports.MessageStore    = (*Store)(nil)
)

// New builds an empty store.
func New() *Store {
	return &Store{
		streams:     make(map[string]domain.Stream),
		executions:  make(map[string]domain.PipelineExecution),
		newsletters: make(map[string][]domain.Newsletter),
		alerts:      make(map[string][]domain.NewsAlert),
		alertIndex:  make(map[string]alertRef),
		messages:    make(map[string][]domain.Message),
	}
}

// Stream returns the stream by id.
func (s *Store) Stream(_ context.Context, id string) (domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.streams[id]
	if !ok {
		return domain.Stream{}, domain.ErrNotFound
	}
	return st, nil
}

// StreamsByOwner lists the owner's streams sorted by creation time.
func (s *Store) StreamsByOwner(_ context.Context, owner string) ([]domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Stream
	for _, st := range s.streams {
		if st.Owner == owner {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Due returns active streams with next_run <= now.
func (s *Store) Due(_ context.Context, now time.Time) ([]domain.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Stream
	for _, st := range s.streams {
		if st.IsActive && !st.NextRun.After(now) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out, nil
}

// SaveStream upserts the stream record. Reactivating a paused stream clears
// its failure counter so it resumes on a fresh backoff budget.
func (s *Store) SaveStream(_ context.Context, st domain.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.streams[st.ID]; ok && !prev.IsActive && st.IsActive {
		st.Failures = 0
	}
	s.streams[st.ID] = st
	return nil
}

// SaveExecution upserts the execution snapshot.
func (s *Store) SaveExecution(_ context.Context, exec domain.PipelineExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.ID] = exec
	return nil
}

// Execution returns a stored execution snapshot; test hook.
func (s *Store) Execution(id string) (domain.PipelineExecution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	return exec, ok
}

// SaveNewsletter appends the newsletter to the stream's history.
func (s *Store) SaveNewsletter(_ context.Context, n domain.Newsletter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.newsletters[n.StreamID] = append(s.newsletters[n.StreamID], n)
	return nil
}

// NextReportNumber returns one past the highest stored report number.
func (s *Store) NextReportNumber(_ context.Context, streamID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for _, n := range s.newsletters[streamID] {
		if n.ReportNumber > max {
			max = n.ReportNumber
		}
	}
	return max + 1, nil
}

// SaveAlert appends an admitted alert.
func (s *Store) SaveAlert(_ context.Context, a domain.NewsAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[a.StreamID] = append(s.alerts[a.StreamID], a)
	s.alertIndex[a.ID] = alertRef{streamID: a.StreamID, pos: len(s.alerts[a.StreamID]) - 1}
	return nil
}

// RecentAlerts returns alerts sent after the given instant.
func (s *Store) RecentAlerts(_ context.Context, streamID string, since time.Time) ([]domain.NewsAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.NewsAlert
	for _, a := range s.alerts[streamID] {
		if a.SentAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// MarkAlertRead flips is_read; the transition is one-way.
func (s *Store) MarkAlertRead(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.alertIndex[alertID]
	if !ok {
		return domain.ErrNotFound
	}
	s.alerts[ref.streamID][ref.pos].IsRead = true
	return nil
}

// AppendMessage assigns the next per-stream sequence and stores the message.
func (s *Store) AppendMessage(_ context.Context, msg domain.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := int64(1)
	log := s.messages[msg.StreamID]
	if n := len(log); n > 0 {
		seq = log[n-1].Seq + 1
	}
	msg.Seq = seq
	s.messages[msg.StreamID] = append(log, msg)
	return seq, nil
}

// MessagesSince returns messages with seq > since in ascending order.
func (s *Store) MessagesSince(_ context.Context, streamID string, since int64) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, m := range s.messages[streamID] {
		if m.Seq > since {
			out = append(out, m)
		}
	}
	return out, nil
}
