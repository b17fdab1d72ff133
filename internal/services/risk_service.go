package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/engine"
	"github.com/volcanowatch/volcano-risk/internal/metrics"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/query"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// View names used for metrics and latency tracking.
const (
	ViewSearch = "search"
	ViewEntity = "entity"
	ViewMap    = "map"
)

// EntityResult is a resolved single-entity request: the candidates considered, the one
// chosen, and its view.
type EntityResult struct {
	Candidates []models.Entity   `json:"candidates,omitempty"`
	Selected   int               `json:"selected"`
	Matched    bool              `json:"matched"`
	View       models.EntityView `json:"view"`
}

// RiskService is the façade the transports call: it resolves user input, runs the
// pipeline and records latency and outcome metrics.
type RiskService struct {
	logger      *slog.Logger
	pipeline    *engine.Pipeline
	resolver    query.Resolver
	mapDefaults query.MapDefaults
	now         func() time.Time
	latencies   map[string]*utils.LatencyTracker
}

// NewRiskService constructs the service façade. A nil now uses time.Now.
func NewRiskService(logger *slog.Logger, pipeline *engine.Pipeline, resolver query.Resolver, mapDefaults query.MapDefaults, now func() time.Time) *RiskService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &RiskService{
		logger:      logger,
		pipeline:    pipeline,
		resolver:    resolver,
		mapDefaults: mapDefaults,
		now:         now,
		latencies: map[string]*utils.LatencyTracker{
			ViewSearch: utils.NewLatencyTracker(1024),
			ViewEntity: utils.NewLatencyTracker(1024),
			ViewMap:    utils.NewLatencyTracker(256),
		},
	}
}

// Today is the current UTC calendar date.
func (s *RiskService) Today() models.Date {
	return models.DateOf(s.now().UTC())
}

// Search returns candidate entities for text.
func (s *RiskService) Search(ctx context.Context, text string) (entities []models.Entity, err error) {
	defer s.observe(ViewSearch, time.Now(), &err)
	return s.pipeline.Search(ctx, text)
}

// EntityView resolves sel into a key, picks the entity and assembles its view. With search
// text the deep-linked id is preferred among the candidates, else the first one is used.
func (s *RiskService) EntityView(ctx context.Context, sel models.UserSelection) (result EntityResult, err error) {
	const op = "services.EntityView"
	defer s.observe(ViewEntity, time.Now(), &err)

	key, err := s.resolver.Resolve(sel, s.Today())
	if err != nil {
		return EntityResult{}, err
	}

	text := strings.TrimSpace(sel.DeepLink.Query)
	if text == "" {
		text = strings.TrimSpace(sel.Text)
	}
	switch {
	case text != "":
		candidates, err := s.pipeline.Search(ctx, text)
		if err != nil {
			return EntityResult{}, err
		}
		idx, matched := engine.Select(candidates, key.EntityID)
		if !matched && key.EntityID != "" {
			s.logger.Info("deep-linked entity not among search results, using first candidate",
				slog.String("entity_id", key.EntityID),
				slog.String("query", text),
			)
		}
		result.Candidates, result.Selected, result.Matched = candidates, idx, matched
		key = key.ForEntity(candidates[idx].ID)
	case key.EntityID == "":
		return EntityResult{}, utils.NewValidationError(op, "either search text or an entity id is required", utils.ErrEmptyQuery)
	default:
		result.Matched = true
	}

	view, err := s.pipeline.View(ctx, key)
	if err != nil {
		return EntityResult{}, err
	}
	result.View = view
	return result, nil
}

// MapView normalizes req against the configured defaults and builds the map dataset.
func (s *RiskService) MapView(ctx context.Context, req query.MapRequest) (view models.MapView, err error) {
	defer s.observe(ViewMap, time.Now(), &err)

	q, err := query.NormalizeMap(req, s.mapDefaults)
	if err != nil {
		return models.MapView{}, err
	}
	view, err = s.pipeline.BuildMapView(ctx, q, s.Today())
	if err != nil {
		return models.MapView{}, err
	}
	s.logger.Debug("map view built",
		slog.String("mode", s.pipeline.MapMode()),
		slog.Int("rows", len(view.Rows)),
		slog.Int("failed", view.Stats.Failed),
		slog.Int("skipped", view.Stats.Skipped),
		slog.Duration("elapsed", view.Stats.Elapsed),
	)
	return view, nil
}

// Latency returns the latency digest of every view.
func (s *RiskService) Latency() map[string]utils.LatencySummary {
	out := make(map[string]utils.LatencySummary, len(s.latencies))
	for name, tracker := range s.latencies {
		out[name] = tracker.Summary()
	}
	return out
}

func (s *RiskService) observe(view string, started time.Time, errp *error) {
	duration := time.Since(started)
	outcome := metrics.OutcomeSuccess
	if err := *errp; err != nil {
		outcome = metrics.OutcomeError
		switch utils.KindOf(err) {
		case utils.KindNotFound:
			outcome = metrics.OutcomeNotFound
		case utils.KindValidation:
		default:
			s.logger.Warn("view failed", slog.String("view", view), slog.Any("error", err))
		}
	}
	metrics.ObserveView(view, duration, outcome)

	tracker := s.latencies[view]
	tracker.Observe(duration)
	if total := tracker.Total(); total%20 == 0 {
		s.logger.Info("view latency", slog.String("view", view), slog.Duration("p95", tracker.Percentile(95)), slog.Int("samples", tracker.Count()))
	}
}
