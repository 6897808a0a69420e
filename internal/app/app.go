// Package app wires configuration into the running service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"StreamPulse/internal/config"
	"StreamPulse/internal/delivery"
	"StreamPulse/internal/gateway"
	"StreamPulse/internal/guard"
	"StreamPulse/internal/infrastructure/llm"
	"StreamPulse/internal/infrastructure/natsbus"
	"StreamPulse/internal/infrastructure/source"
	"StreamPulse/internal/infrastructure/storage"
	"StreamPulse/internal/infrastructure/storage/memory"
	"StreamPulse/internal/logging"
	"StreamPulse/internal/ports"
	"StreamPulse/internal/usecase"
)

// stores groups the persistence ports the rest of the wiring consumes, so
// the memory and Postgres backends stay interchangeable.
type stores struct {
	streams     ports.StreamStore
	executions  ports.ExecutionStore
	newsletters ports.NewsletterStore
	alerts      ports.AlertStore
	messages    ports.MessageStore
}

// Application owns the composed service and its lifecycle.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *usecase.TaskScheduler
	server    *http.Server
	mirror    *natsbus.Mirror
	db        *sql.DB
}

// New builds the full object graph from configuration. Optional
// collaborators (Postgres, NATS, the LLM) degrade to local substitutes when
// unconfigured: the in-memory store, no mirror, the heuristic analyst.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.NATS.URL != "" {
		mirror, err := natsbus.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, baseLogger.With("component", "natsbus"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.mirror = mirror
	}

	var eventMirror ports.EventMirror
	if a.mirror != nil {
		eventMirror = a.mirror
	}
	broker := delivery.NewBroker(st.messages, eventMirror, baseLogger.With("component", "broker"))

	registry := source.NewRegistry()
	registry.Register(source.NewHeadlineScanner(nil))
	provider := source.NewProvider(registry, cfg.Sources, baseLogger.With("component", "source"))

	var (
		analyst     ports.Analyst
		synthesizer ports.Synthesizer
	)
	if cfg.LLM.APIKey != "" {
		client := llm.NewClient(cfg.LLM)
		analyst, synthesizer = client, client
	} else {
		h := llm.NewHeuristic()
		analyst, synthesizer = h, h
	}

	filter := usecase.NewAlertFilter(st.alerts, broker, cfg.Alerts, baseLogger.With("component", "alertfilter"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:      provider,
		Analyst:     analyst,
		Synthesizer: synthesizer,
		Executions:  st.executions,
		Newsletters: st.newsletters,
		Alerts:      filter,
		Publisher:   broker,
		Logger:      baseLogger.With("component", "pipeline"),
	}, cfg.Pipeline)

	a.scheduler = usecase.NewTaskScheduler(usecase.SchedulerDeps{
		Streams:   st.streams,
		Guard:     guard.New(cfg.Guard.LeaseTTL.Std()),
		Runner:    pipeline,
		Publisher: broker,
		Logger:    baseLogger.With("component", "scheduler"),
	}, cfg.Scheduler)

	gw := gateway.New(st.streams, st.alerts, broker, a.scheduler,
		cfg.Auth.Tokens, cfg.Delivery.SessionBuffer, baseLogger.With("component", "gateway"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	gw.Routes(router)

	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// openStores selects Postgres when a DSN is configured, the in-memory store
// otherwise, and returns the same backend for every port.
func (a *Application) openStores(ctx context.Context) (stores, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database dsn configured, using in-memory store")
		mem := memory.New()
		return stores{streams: mem, executions: mem, newsletters: mem, alerts: mem, messages: mem}, nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return stores{}, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return stores{}, fmt.Errorf("ping database: %w", err)
	}

	pg := storage.NewPostgresStore(db)
	if err := pg.Init(ctx); err != nil {
		return stores{}, fmt.Errorf("init database schema: %w", err)
	}
	a.db = db
	return stores{streams: pg, executions: pg, newsletters: pg, alerts: pg, messages: pg}, nil
}

// Run starts the scheduler loop and the HTTP listener and blocks until the
// context is cancelled, then shuts both down.
func (a *Application) Run(ctx context.Context) error {
	schedErr := make(chan error, 1)
	go func() {
		schedErr <- a.scheduler.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.server.Addr)
		serveErr <- a.server.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	case err = <-schedErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}

	a.close()

	if err == http.ErrServerClosed || err == context.Canceled {
		return nil
	}
	return err
}

func (a *Application) close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database failed", "error", err)
		}
	}
}
