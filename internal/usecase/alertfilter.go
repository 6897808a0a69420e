package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
	"StreamPulse/internal/metrics"
	"StreamPulse/internal/ports"
)

// AlertFilter decides which news candidates become user-visible alerts.
// Rejected candidates are counted and dropped, never persisted.
type AlertFilter struct {
	alerts    ports.AlertStore
	publisher Publisher
	cfg       config.AlertConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewAlertFilter constructs the filter.
func NewAlertFilter(alerts ports.AlertStore, publisher Publisher, cfg config.AlertConfig, logger *slog.Logger) *AlertFilter {
	return &AlertFilter{
		alerts:    alerts,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Admit filters the candidate batch for one stream: threshold, rolling-window
// dedup, then the per-hour cap with higher-importance candidates preferred.
// Admitted alerts are persisted and handed to the broker.
func (f *AlertFilter) Admit(ctx context.Context, st domain.Stream, candidates []domain.AlertCandidate) ([]domain.NewsAlert, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	threshold := st.News.AlertThreshold
	if threshold == 0 {
		threshold = f.cfg.DefaultThreshold
	}
	maxPerHour := st.News.MaxArticlesPerHour
	if maxPerHour == 0 {
		maxPerHour = f.cfg.DefaultMaxPerHour
	}

	now := f.now()
	recent, err := f.alerts.RecentAlerts(ctx, st.ID, now.Add(-f.cfg.DedupWindow.Std()))
	if err != nil {
		return nil, fmt.Errorf("load recent alerts: %w", err)
	}

	hourAgo := now.Add(-time.Hour)
	sentThisHour := 0
	for _, a := range recent {
		if a.SentAt.After(hourAgo) {
			sentThisHour++
		}
	}

	// Higher importance first so the hourly cap keeps the urgent ones.
	ordered := make([]domain.AlertCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Importance > ordered[j].Importance
	})

	var admitted []domain.NewsAlert
	for _, cand := range ordered {
		switch {
		case cand.Importance < threshold:
			metrics.AlertsRejected.WithLabelValues("below_threshold").Inc()
			continue
		case f.isDuplicate(cand, recent):
			metrics.AlertsRejected.WithLabelValues("duplicate").Inc()
			continue
		case sentThisHour >= maxPerHour:
			metrics.AlertsRejected.WithLabelValues("rate_limited").Inc()
			continue
		}

		alert := domain.NewsAlert{
			ID:         uuid.NewString(),
			StreamID:   st.ID,
			Title:      cand.Title,
			Body:       cand.Body,
			SourceURL:  cand.SourceURL,
			Importance: cand.Importance,
			Type:       domain.AlertTypeForScore(cand.Importance),
			SentAt:     now,
		}
		if err := f.alerts.SaveAlert(ctx, alert); err != nil {
			return admitted, fmt.Errorf("persist alert: %w", err)
		}

		msg := domain.NewMessage(st.ID, domain.KindAlert, now)
		msg.Alert = &alert
		if _, err := f.publisher.Publish(ctx, st.Owner, msg); err != nil {
			return admitted, fmt.Errorf("deliver alert: %w", err)
		}

		metrics.AlertsAdmitted.Inc()
		admitted = append(admitted, alert)
		recent = append(recent, alert)
		sentThisHour++
	}

	if f.logger != nil {
		f.logger.Debug("alert batch filtered",
			"stream", st.ID,
			"candidates", len(candidates),
			"admitted", len(admitted))
	}
	return admitted, nil
}

// isDuplicate matches on identical source URL or near-identical title within
// the dedup window.
func (f *AlertFilter) isDuplicate(cand domain.AlertCandidate, recent []domain.NewsAlert) bool {
	for _, a := range recent {
		if a.SourceURL != "" && a.SourceURL == cand.SourceURL {
			return true
		}
		if titleSimilarity(cand.Title, a.Title) >= f.cfg.SimilarityCutoff {
			return true
		}
	}
	return false
}

// titleSimilarity is the Jaccard index over lower-cased title tokens.
func titleSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?\"'()[]")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}
