// Package storage persists the orchestration schema in Postgres.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"StreamPulse/internal/domain"
	"StreamPulse/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implements all storage ports on a sql.DB.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ports.StreamStore     = (*PostgresStore)(nil)
	_ ports.ExecutionStore  = (*PostgresStore)(nil)
	_ ports.NewsletterStore = (*PostgresStore)(nil)
	_ ports.AlertStore      = (*PostgresStore)(nil)
	_ ports.MessageStore    = (*PostgresStore)(nil)
)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the schema if missing.
func (s *PostgresStore) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			focus_type TEXT NOT NULL,
			frequency TEXT NOT NULL,
			day_of_week INT NOT NULL DEFAULT 0,
			schedule_time TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT '',
			alert_threshold INT NOT NULL DEFAULT 0,
			max_articles_per_hour INT NOT NULL DEFAULT 0,
			keywords TEXT[] NOT NULL DEFAULT '{}',
			topics TEXT[] NOT NULL DEFAULT '{}',
			max_sources INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			next_run TIMESTAMPTZ,
			last_run TIMESTAMPTZ,
			failures INT NOT NULL DEFAULT 0,
			source_count INT NOT NULL DEFAULT 0,
			insight_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS research_sessions (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			sources_analyzed INT NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_automated BOOLEAN NOT NULL DEFAULT TRUE,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS newsletters (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			content TEXT NOT NULL,
			sources TEXT[] NOT NULL DEFAULT '{}',
			key_insights TEXT[] NOT NULL DEFAULT '{}',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			report_number INT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS news_alerts (
			id TEXT PRIMARY KEY,
			news_stream_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			source_url TEXT NOT NULL,
			importance_score INT NOT NULL,
			alert_type TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			type TEXT NOT NULL,
			content JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			UNIQUE (stream_id, seq)
		)`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) scanStream(row sq.RowScanner) (domain.Stream, error) {
	var (
		st               domain.Stream
		dayOfWeek        int
		nextRun, lastRun sql.NullTime
		keywords, topics pq.StringArray
	)

	err := row.Scan(
		&st.ID, &st.Owner, &st.Name, &st.Focus,
		&st.Schedule.Frequency, &dayOfWeek, &st.Schedule.TimeOfDay, &st.Schedule.Timezone,
		&st.News.AlertThreshold, &st.News.MaxArticlesPerHour, &keywords,
		&topics, &st.Research.MaxSources,
		&st.IsActive, &nextRun, &lastRun, &st.Failures,
		&st.SourceCount, &st.InsightCount, &st.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Stream{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Stream{}, fmt.Errorf("scan stream: %w", err)
	}

	st.Schedule.DayOfWeek = time.Weekday(dayOfWeek)
	st.News.Keywords = keywords
	st.Research.Topics = topics
	if nextRun.Valid {
		st.NextRun = nextRun.Time
	}
	if lastRun.Valid {
		st.LastRun = lastRun.Time
	}
	return st, nil
}

var streamColumns = []string{
	"id", "owner_id", "name", "focus_type",
	"frequency", "day_of_week", "schedule_time", "timezone",
	"alert_threshold", "max_articles_per_hour", "keywords",
	"topics", "max_sources",
	"is_active", "next_run", "last_run", "failures",
	"source_count", "insight_count", "created_at",
}

// Stream returns the stream by id.
func (s *PostgresStore) Stream(ctx context.Context, id string) (domain.Stream, error) {
	query, args, err := psql.Select(streamColumns...).From("streams").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Stream{}, fmt.Errorf("build query: %w", err)
	}
	return s.scanStream(s.db.QueryRowContext(ctx, query, args...))
}

// StreamsByOwner lists the owner's streams.
func (s *PostgresStore) StreamsByOwner(ctx context.Context, owner string) ([]domain.Stream, error) {
	query, args, err := psql.Select(streamColumns...).From("streams").
		Where(sq.Eq{"owner_id": owner}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.queryStreams(ctx, query, args)
}

// Due returns active streams with next_run <= now.
func (s *PostgresStore) Due(ctx context.Context, now time.Time) ([]domain.Stream, error) {
	query, args, err := psql.Select(streamColumns...).From("streams").
		Where(sq.Eq{"is_active": true}).
		Where(sq.LtOrEq{"next_run": now}).
		OrderBy("next_run").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.queryStreams(ctx, query, args)
}

func (s *PostgresStore) queryStreams(ctx context.Context, query string, args []interface{}) ([]domain.Stream, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var out []domain.Stream
	for rows.Next() {
		st, err := s.scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SaveStream upserts the stream record. Reactivating a paused stream clears
// its failure counter so it resumes on a fresh backoff budget.
func (s *PostgresStore) SaveStream(ctx context.Context, st domain.Stream) error {
	query, args, err := psql.Insert("streams").
		Columns(streamColumns...).
		Values(
			st.ID, st.Owner, st.Name, st.Focus,
			st.Schedule.Frequency, int(st.Schedule.DayOfWeek), st.Schedule.TimeOfDay, st.Schedule.Timezone,
			st.News.AlertThreshold, st.News.MaxArticlesPerHour, pq.StringArray(st.News.Keywords),
			pq.StringArray(st.Research.Topics), st.Research.MaxSources,
			st.IsActive, nullTime(st.NextRun), nullTime(st.LastRun), st.Failures,
			st.SourceCount, st.InsightCount, st.CreatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			focus_type = EXCLUDED.focus_type,
			frequency = EXCLUDED.frequency,
			day_of_week = EXCLUDED.day_of_week,
			schedule_time = EXCLUDED.schedule_time,
			timezone = EXCLUDED.timezone,
			alert_threshold = EXCLUDED.alert_threshold,
			max_articles_per_hour = EXCLUDED.max_articles_per_hour,
			keywords = EXCLUDED.keywords,
			topics = EXCLUDED.topics,
			max_sources = EXCLUDED.max_sources,
			is_active = EXCLUDED.is_active,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			failures = CASE
				WHEN NOT streams.is_active AND EXCLUDED.is_active THEN 0
				ELSE EXCLUDED.failures
			END,
			source_count = EXCLUDED.source_count,
			insight_count = EXCLUDED.insight_count`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert stream: %w", err)
	}
	return nil
}

// SaveExecution upserts the execution snapshot.
func (s *PostgresStore) SaveExecution(ctx context.Context, exec domain.PipelineExecution) error {
	query, args, err := psql.Insert("research_sessions").
		Columns("id", "stream_id", "status", "stage", "started_at", "finished_at",
			"sources_analyzed", "confidence", "is_automated", "error").
		Values(exec.ID, exec.StreamID, exec.Status, exec.Stage,
			nullTime(exec.StartedAt), nullTime(exec.FinishedAt),
			exec.SourcesAnalyzed, exec.Confidence, exec.IsAutomated, exec.Error).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			sources_analyzed = EXCLUDED.sources_analyzed,
			confidence = EXCLUDED.confidence,
			error = EXCLUDED.error`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

// SaveNewsletter stores the immutable artifact.
func (s *PostgresStore) SaveNewsletter(ctx context.Context, n domain.Newsletter) error {
	query, args, err := psql.Insert("newsletters").
		Columns("id", "stream_id", "title", "summary", "content", "sources",
			"key_insights", "confidence", "report_number", "generated_at").
		Values(n.ID, n.StreamID, n.Title, n.Summary, n.Body, pq.StringArray(n.Sources),
			pq.StringArray(n.KeyInsights), n.Confidence, n.ReportNumber, n.GeneratedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert newsletter: %w", err)
	}
	return nil
}

// NextReportNumber returns one past the highest stored report number.
func (s *PostgresStore) NextReportNumber(ctx context.Context, streamID string) (int, error) {
	query, args, err := psql.Select("COALESCE(MAX(report_number), 0) + 1").
		From("newsletters").
		Where(sq.Eq{"stream_id": streamID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var next int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&next); err != nil {
		return 0, fmt.Errorf("next report number: %w", err)
	}
	return next, nil
}

// SaveAlert stores an admitted alert.
func (s *PostgresStore) SaveAlert(ctx context.Context, a domain.NewsAlert) error {
	query, args, err := psql.Insert("news_alerts").
		Columns("id", "news_stream_id", "title", "content", "source_url",
			"importance_score", "alert_type", "is_read", "sent_at").
		Values(a.ID, a.StreamID, a.Title, a.Body, a.SourceURL,
			a.Importance, a.Type, a.IsRead, a.SentAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns alerts sent after the given instant, oldest first.
func (s *PostgresStore) RecentAlerts(ctx context.Context, streamID string, since time.Time) ([]domain.NewsAlert, error) {
	query, args, err := psql.Select("id", "news_stream_id", "title", "content", "source_url",
		"importance_score", "alert_type", "is_read", "sent_at").
		From("news_alerts").
		Where(sq.Eq{"news_stream_id": streamID}).
		Where(sq.Gt{"sent_at": since}).
		OrderBy("sent_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.NewsAlert
	for rows.Next() {
		var a domain.NewsAlert
		if err := rows.Scan(&a.ID, &a.StreamID, &a.Title, &a.Body, &a.SourceURL,
			&a.Importance, &a.Type, &a.IsRead, &a.SentAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// MarkAlertRead flips is_read; the transition is one-way.
func (s *PostgresStore) MarkAlertRead(ctx context.Context, alertID string) error {
	query, args, err := psql.Update("news_alerts").
		Set("is_read", true).
		Where(sq.Eq{"id": alertID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendMessage persists the envelope under the next per-stream sequence.
// The broker serializes the publish path in-process; the unique
// (stream_id, seq) constraint backstops races across processes.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg domain.Message) (int64, error) {
	content, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}

	const query = `INSERT INTO messages (id, stream_id, seq, type, content, timestamp)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5
		FROM messages WHERE stream_id = $2
		RETURNING seq`

	var seq int64
	err = s.db.QueryRowContext(ctx, query,
		msg.ID, msg.StreamID, msg.Kind, content, msg.SentAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return seq, nil
}

// MessagesSince returns envelopes with seq > since in ascending order.
func (s *PostgresStore) MessagesSince(ctx context.Context, streamID string, since int64) ([]domain.Message, error) {
	query, args, err := psql.Select("seq", "content").
		From("messages").
		Where(sq.Eq{"stream_id": streamID}).
		Where(sq.Gt{"seq": since}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			seq     int64
			content []byte
		)
		if err := rows.Scan(&seq, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg domain.Message
		if err := json.Unmarshal(content, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msg.Seq = seq
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
