package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/volcanowatch/volcano-risk/internal/cache"
	"github.com/volcanowatch/volcano-risk/internal/metrics"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/query"
	"github.com/volcanowatch/volcano-risk/internal/repo"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

var engineTracer = otel.Tracer("volcano-risk.engine")

// BuildMap fetches indicators for every placed entity with at most bound backend calls in flight.
// Each call has its own deadline; a failed or timed-out entity yields no row and never
// affects its siblings. Rows come back in input order. A worker slot is released only once
// the backend call it started has returned, so a slow unwind after a deadline cannot let
// more than bound calls overlap.
func (p *Pipeline) BuildMap(ctx context.Context, entities []models.Entity, template models.QueryKey, bound int) ([]models.MapRow, models.FanOutStats, error) {
	const op = "engine.BuildMap"
	stats := models.FanOutStats{Requested: len(entities)}
	if bound < 1 {
		return nil, stats, utils.NewValidationError(op, "concurrency bound must be at least 1", nil)
	}

	ctx, span := engineTracer.Start(ctx, "engine.Pipeline.BuildMap",
		trace.WithAttributes(
			attribute.Int("fanout.entities", len(entities)),
			attribute.Int("fanout.bound", bound),
		),
	)
	defer span.End()
	started := time.Now()

	slots := make([]*models.MapRow, len(entities))
	failed := make([]bool, len(entities))

	var g errgroup.Group
	g.SetLimit(bound)
	for i, entity := range entities {
		if entity.Coordinate == nil {
			stats.Skipped++
			metrics.ObserveFanoutEntity(metrics.OutcomeSkipped)
			continue
		}
		if ctx.Err() != nil {
			failed[i] = true
			continue
		}
		i, entity := i, entity
		g.Go(func() error {
			if ctx.Err() != nil {
				failed[i] = true
				metrics.ObserveFanoutEntity(metrics.OutcomeError)
				return nil
			}
			row, err := p.fetchRow(ctx, entity, template)
			if err != nil {
				failed[i] = true
				metrics.ObserveFanoutEntity(metrics.OutcomeError)
				p.logger.Debug("fan-out entity dropped",
					slog.String("entity_id", entity.ID),
					slog.Any("error", err),
				)
				return nil
			}
			metrics.ObserveFanoutEntity(metrics.OutcomeSuccess)
			slots[i] = &row
			return nil
		})
	}
	_ = g.Wait()

	rows := make([]models.MapRow, 0, len(entities))
	for i, slot := range slots {
		if failed[i] {
			stats.Failed++
		}
		if slot != nil {
			rows = append(rows, *slot)
		}
	}
	stats.Succeeded = len(rows)
	stats.Elapsed = time.Since(started)

	span.SetAttributes(
		attribute.Int("fanout.succeeded", stats.Succeeded),
		attribute.Int("fanout.failed", stats.Failed),
		attribute.Int("fanout.skipped", stats.Skipped),
	)
	if err := ctx.Err(); err != nil && stats.Succeeded == 0 && stats.Requested > stats.Skipped {
		return nil, stats, utils.NewUpstreamError(op, "fan-out cancelled", err)
	}
	return rows, stats, nil
}

// fetchRow waits on ctx, not on the per-call deadline: the deadline lives inside the
// cache fetch, so fetchRow returns only after the backend call it led has returned.
func (p *Pipeline) fetchRow(ctx context.Context, entity models.Entity, template models.QueryKey) (models.MapRow, error) {
	if entity.ID == "" {
		return models.MapRow{}, utils.NewValidationError("engine.fetchRow", "entity has no id", nil)
	}
	key := template.ForEntity(entity.ID)
	report, err := p.indicators.GetOrFetch(ctx, cache.KindIndicators, key, p.loadIndicatorsWithDeadline)
	if err != nil {
		return models.MapRow{}, err
	}
	name := entity.Name
	if name == "" {
		name = report.Entity.Name
	}
	return models.MapRow{
		EntityID:   entity.ID,
		Name:       name,
		Coordinate: *entity.Coordinate,
		Color:      report.Badge.Color,
		Score:      report.Badge.Score,
		Basis:      report.Badge.Basis,
	}, nil
}

func (p *Pipeline) loadIndicatorsWithDeadline(ctx context.Context, key models.QueryKey) (models.IndicatorReport, error) {
	release := metrics.FanoutStarted()
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.loadIndicators(callCtx, key)
}

// BuildMapView produces the map dataset for q, ending at today, in the configured mode.
// q must already be normalized.
func (p *Pipeline) BuildMapView(ctx context.Context, q models.MapQuery, today models.Date) (models.MapView, error) {
	template, err := query.MapTemplate(q.Days, q.RadiusKm, q.MinMag, today)
	if err != nil {
		return models.MapView{}, err
	}
	if q.Concurrency < 1 {
		return models.MapView{}, utils.NewValidationError("engine.BuildMapView", "concurrency bound must be at least 1", nil)
	}

	view := models.MapView{Query: q, Key: template}
	switch p.mapMode {
	case ModeRemote:
		started := time.Now()
		key := q
		key.HighOnly = false
		rows, err := p.riskMaps.GetOrFetch(ctx, cache.KindRiskMap, key, p.loadRiskMap)
		if err != nil {
			return models.MapView{}, err
		}
		view.Rows = rows
		view.Stats = models.FanOutStats{Requested: len(rows), Succeeded: len(rows), Elapsed: time.Since(started)}
	default:
		page, err := p.catalog.GetOrFetch(ctx, cache.KindCatalog, catalogKey{page: q.Page, limit: q.Limit}, p.loadCatalog)
		if err != nil {
			return models.MapView{}, err
		}
		rows, stats, err := p.BuildMap(ctx, page.Entities, template, q.Concurrency)
		if err != nil {
			return models.MapView{}, err
		}
		view.Rows, view.Stats = rows, stats
	}

	if q.HighOnly {
		view.Rows = FilterHighRisk(view.Rows)
	}
	if view.Rows == nil {
		view.Rows = []models.MapRow{}
	}
	return view, nil
}

func (p *Pipeline) loadRiskMap(ctx context.Context, q models.MapQuery) ([]models.MapRow, error) {
	rows, err := p.backend.FetchRiskMap(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Color = ParseColor(string(rows[i].Color))
	}
	return rows, nil
}

func (p *Pipeline) loadCatalog(ctx context.Context, key catalogKey) (repo.CatalogPage, error) {
	return p.backend.ListEntities(ctx, key.page, key.limit)
}
