// Package delivery provides ordered, at-least-once fan-out of artifacts and
// progress events to live sessions, backed by a durable message log for
// offline replay.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"StreamPulse/internal/domain"
	"StreamPulse/internal/metrics"
	"StreamPulse/internal/ports"
)

// Session is one live client connection. Send must not block; a session that
// cannot keep up returns an error and relies on replay to catch up.
type Session interface {
	Owner() string
	Send(msg domain.Message) error
}

// Broker assigns per-stream sequence numbers, persists every message, and
// pushes to all live sessions of the stream's owner.
type Broker struct {
	store  ports.MessageStore
	mirror ports.EventMirror
	logger *slog.Logger

	// pubMu serializes the assign-persist-push path so messages reach any
	// one session in sequence order.
	pubMu sync.Mutex

	mu       sync.RWMutex
	sessions map[string]map[Session]struct{}
}

// NewBroker wires the durable store and an optional external mirror.
func NewBroker(store ports.MessageStore, mirror ports.EventMirror, logger *slog.Logger) *Broker {
	return &Broker{
		store:    store,
		mirror:   mirror,
		logger:   logger,
		sessions: make(map[string]map[Session]struct{}),
	}
}

// Register adds a live session to the owner's connection table.
func (b *Broker) Register(s Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	owner := s.Owner()
	if b.sessions[owner] == nil {
		b.sessions[owner] = make(map[Session]struct{})
	}
	b.sessions[owner][s] = struct{}{}
	metrics.ActiveSessions.Inc()
}

// Unregister removes a session; pending messages stay durable for replay.
func (b *Broker) Unregister(s Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	owner := s.Owner()
	if set, ok := b.sessions[owner]; ok {
		if _, present := set[s]; present {
			delete(set, s)
			metrics.ActiveSessions.Dec()
		}
		if len(set) == 0 {
			delete(b.sessions, owner)
		}
	}
}

// Publish persists the message under the next per-stream sequence number and
// pushes it to every live session of the owner. A failed push to one session
// is dropped for that session only; the durable record covers replay.
func (b *Broker) Publish(ctx context.Context, owner string, msg domain.Message) (domain.Message, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	seq, err := b.store.AppendMessage(ctx, msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	msg.Seq = seq
	metrics.MessagesPublished.WithLabelValues(string(msg.Kind)).Inc()

	if b.mirror != nil {
		if err := b.mirror.Mirror(msg); err != nil {
			b.log().Warn("mirror publish failed", "stream", msg.StreamID, "seq", seq, "error", err)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.sessions[owner] {
		if err := s.Send(msg); err != nil {
			metrics.DeliveryDrops.Inc()
			b.log().Warn("session push dropped", "owner", owner, "stream", msg.StreamID, "seq", seq, "error", err)
		}
	}

	return msg, nil
}

// ReplaySince returns all messages for the stream with sequence > since, in
// ascending order. Idempotent and side-effect free.
func (b *Broker) ReplaySince(ctx context.Context, streamID string, since int64) ([]domain.Message, error) {
	msgs, err := b.store.MessagesSince(ctx, streamID, since)
	if err != nil {
		return nil, fmt.Errorf("replay since %d: %w", since, err)
	}
	return msgs, nil
}

func (b *Broker) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}
