// Package natsbus republishes delivered messages onto NATS so downstream
// services can consume the stream without touching the core's store.
package natsbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
)

// Mirror publishes every delivered message to <prefix>.<streamID>.
type Mirror struct {
	nc     *nats.Conn
	prefix string
}

var _ ports.EventMirror = (*Mirror)(nil)

// Connect dials NATS with unlimited reconnects.
func Connect(url, prefix string, logger *slog.Logger) (*Mirror, error) {
	nc, err := nats.Connect(url,
		nats.Name("streampulse-mirror"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats connection lost", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &Mirror{nc: nc, prefix: prefix}, nil
}

// Mirror publishes the message envelope as JSON.
func (m *Mirror) Mirror(msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", m.prefix, msg.StreamID)
	if err := m.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (m *Mirror) Close() {
	if m.nc != nil {
		m.nc.Close()
	}
}
