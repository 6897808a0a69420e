// Package gateway exposes the bidirectional event channel clients connect
// to, plus health and metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"StreamPulse/internal/delivery"
	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
	"StreamPulse/internal/usecase"
)

// Gateway terminates websocket connections and dispatches wire events onto
// the core. Each connection gets its own session object registered in the
// broker's owner-keyed table; there is no process-wide client singleton.
type Gateway struct {
	streams   ports.StreamStore
	alerts    ports.AlertStore
	broker    *delivery.Broker
	scheduler *usecase.TaskScheduler
	tokens    map[string]string
	buffer    int
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	now       func() time.Time
}

// New constructs the gateway. tokens maps client tokens to owner ids.
func New(streams ports.StreamStore, alerts ports.AlertStore, broker *delivery.Broker, scheduler *usecase.TaskScheduler, tokens map[string]string, buffer int, logger *slog.Logger) *Gateway {
	return &Gateway{
		streams:   streams,
		alerts:    alerts,
		broker:    broker,
		scheduler: scheduler,
		tokens:    tokens,
		buffer:    buffer,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Routes registers the gateway endpoints.
func (g *Gateway) Routes(r *gin.Engine) {
	r.GET("/ws", g.handleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (g *Gateway) handleWS(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := newSession(conn, "", g.buffer)
	go session.writeLoop()
	defer func() {
		if session.owner != "" {
			g.broker.Unregister(session)
		}
		session.close()
	}()

	ctx := c.Request.Context()
	for {
		var env clientEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("read failed", "error", err)
			}
			return
		}

		if env.Type == evAuthenticate {
			g.handleAuthenticate(ctx, session, env.Payload)
			continue
		}
		if session.owner == "" {
			_ = session.push(serverEnvelope{Type: evAuthError, Payload: gin.H{"message": domain.ErrAuthentication.Error()}})
			continue
		}

		g.dispatch(ctx, session, env)
	}
}

func (g *Gateway) handleAuthenticate(ctx context.Context, s *wsSession, payload json.RawMessage) {
	var p authenticatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		_ = s.push(serverEnvelope{Type: evAuthError, Payload: gin.H{"message": "malformed payload"}})
		return
	}

	owner, ok := g.tokens[p.Token]
	if !ok {
		_ = s.push(serverEnvelope{Type: evAuthError, Payload: gin.H{"message": domain.ErrAuthentication.Error()}})
		return
	}

	if s.owner == "" {
		s.owner = owner
		g.broker.Register(s)
	}

	streams, err := g.streams.StreamsByOwner(ctx, owner)
	if err != nil {
		g.logger.Error("list streams failed", "owner", owner, "error", err)
		_ = s.push(serverEnvelope{Type: evError, Payload: gin.H{"message": "cannot load streams"}})
		return
	}
	_ = s.push(serverEnvelope{Type: evStreamsUpdated, Payload: streams})
}

func (g *Gateway) dispatch(ctx context.Context, s *wsSession, env clientEnvelope) {
	var err error
	switch env.Type {
	case evSendMessage:
		err = g.handleSendMessage(ctx, s, env.Payload)
	case evCreateStream:
		err = g.handleCreateStream(ctx, s, env.Payload)
	case evUpdateSchedule:
		err = g.handleUpdateSchedule(ctx, s, env.Payload)
	case evTriggerResearch:
		err = g.handleTrigger(ctx, s, env.Payload)
	case evSwitchFocus:
		err = g.handleSwitchFocus(ctx, s, env.Payload)
	case evMarkAlertRead:
		err = g.handleMarkAlertRead(ctx, s, env.Payload)
	case evReplay:
		err = g.handleReplay(ctx, s, env.Payload)
	default:
		err = errors.New("unknown event type " + env.Type)
	}

	if err != nil {
		_ = s.push(serverEnvelope{Type: evError, Payload: gin.H{"message": err.Error()}})
	}
}

// ownedStream loads the stream and rejects access across owners. A foreign
// stream id is indistinguishable from a missing one.
func (g *Gateway) ownedStream(ctx context.Context, s *wsSession, id string) (domain.Stream, error) {
	st, err := g.streams.Stream(ctx, id)
	if err != nil {
		return domain.Stream{}, err
	}
	if st.Owner != s.owner {
		return domain.Stream{}, domain.ErrNotFound
	}
	return st, nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p sendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	st, err := g.ownedStream(ctx, s, p.StreamID)
	if err != nil {
		return err
	}

	msg := domain.NewMessage(st.ID, domain.KindChat, g.now())
	msg.Chat = &domain.ChatPayload{Author: s.owner, Text: p.Content}
	_, err = g.broker.Publish(ctx, st.Owner, msg)
	return err
}

func (g *Gateway) handleCreateStream(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p createStreamPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	focus := domain.FocusType(p.FocusType)
	if !focus.Valid() {
		return errors.New("unknown focus type " + p.FocusType)
	}

	spec, err := p.Schedule.toScheduleSpec()
	if err != nil {
		return err
	}

	now := g.now()
	next, err := spec.NextRun(now)
	if err != nil {
		return err
	}

	st := domain.Stream{
		ID:        uuid.NewString(),
		Owner:     s.owner,
		Name:      p.Name,
		Focus:     focus,
		Schedule:  spec,
		IsActive:  true,
		NextRun:   next,
		CreatedAt: now,
	}
	if p.News != nil {
		st.News = *p.News
	}
	if p.Research != nil {
		st.Research = *p.Research
	}

	if err := g.streams.SaveStream(ctx, st); err != nil {
		return err
	}

	return s.push(serverEnvelope{Type: evStreamCreated, Payload: st})
}

func (g *Gateway) handleUpdateSchedule(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p updateSchedulePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	st, err := g.ownedStream(ctx, s, p.StreamID)
	if err != nil {
		return err
	}

	spec, err := p.Schedule.toScheduleSpec()
	if err != nil {
		return err
	}

	next, err := spec.NextRun(g.now())
	if err != nil {
		return err
	}

	st.Schedule = spec
	st.NextRun = next
	if err := g.streams.SaveStream(ctx, st); err != nil {
		return err
	}

	return s.push(serverEnvelope{Type: evScheduleUpdated, Payload: gin.H{
		"streamId": st.ID,
		"schedule": spec,
		"nextRun":  next,
	}})
}

func (g *Gateway) handleTrigger(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p triggerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	st, err := g.ownedStream(ctx, s, p.StreamID)
	if err != nil {
		return err
	}

	if _, err := g.scheduler.ManualTrigger(ctx, st.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			return errors.New("already running")
		}
		return err
	}

	confirmed := evResearchTriggered
	if st.Focus == domain.FocusNews {
		confirmed = evNewsUpdateTriggered
	}
	return s.push(serverEnvelope{Type: confirmed, Payload: gin.H{"streamId": st.ID}})
}

func (g *Gateway) handleSwitchFocus(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p switchFocusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	focus := domain.FocusType(p.FocusType)
	if !focus.Valid() {
		return errors.New("unknown focus type " + p.FocusType)
	}

	st, err := g.ownedStream(ctx, s, p.StreamID)
	if err != nil {
		return err
	}

	st.Focus = focus
	if err := g.streams.SaveStream(ctx, st); err != nil {
		return err
	}

	return s.push(serverEnvelope{Type: evStreamUpdated, Payload: gin.H{
		"id":        st.ID,
		"focusType": st.Focus,
	}})
}

func (g *Gateway) handleMarkAlertRead(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p markAlertReadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return g.alerts.MarkAlertRead(ctx, p.AlertID)
}

func (g *Gateway) handleReplay(ctx context.Context, s *wsSession, payload json.RawMessage) error {
	var p replayPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	if _, err := g.ownedStream(ctx, s, p.StreamID); err != nil {
		return err
	}

	msgs, err := g.broker.ReplaySince(ctx, p.StreamID, p.SinceSeq)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := s.push(serverEnvelope{Type: evMessage, Payload: msg}); err != nil {
			return err
		}
	}
	return nil
}
