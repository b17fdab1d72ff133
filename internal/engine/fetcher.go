package engine

import (
	"context"
	"log/slog"

	"github.com/volcanowatch/volcano-risk/internal/cache"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// FetchIndicators returns the indicator report for key, cached under the indicators kind.
// The badge color is normalized; everything else passes through.
func (p *Pipeline) FetchIndicators(ctx context.Context, key models.QueryKey) (models.IndicatorReport, error) {
	if key.EntityID == "" {
		return models.IndicatorReport{}, utils.NewValidationError("engine.FetchIndicators", "query has no entity id", nil)
	}
	return p.indicators.GetOrFetch(ctx, cache.KindIndicators, key, p.loadIndicators)
}

// FetchEvents returns the cleaned, time-ordered event series for key, cached under the events kind.
func (p *Pipeline) FetchEvents(ctx context.Context, key models.QueryKey) ([]models.SeismicEvent, error) {
	if key.EntityID == "" {
		return nil, utils.NewValidationError("engine.FetchEvents", "query has no entity id", nil)
	}
	return p.events.GetOrFetch(ctx, cache.KindEvents, key, p.loadEvents)
}

// View assembles the single-entity result. Indicators are required. Missing events, whether
// the backend returned none or the events call failed, yield NoEvents rather than an error.
func (p *Pipeline) View(ctx context.Context, key models.QueryKey) (models.EntityView, error) {
	report, err := p.FetchIndicators(ctx, key)
	if err != nil {
		return models.EntityView{}, err
	}

	view := models.EntityView{Key: key, Report: report}
	events, err := p.FetchEvents(ctx, key)
	if err != nil {
		p.logger.Warn("events unavailable, serving indicators only",
			slog.String("entity_id", key.EntityID),
			slog.Any("error", err),
		)
		view.EventsErr = err
	}
	view.Events = events
	if view.Events == nil {
		view.Events = []models.SeismicEvent{}
	}
	view.NoEvents = len(view.Events) == 0
	return view, nil
}

func (p *Pipeline) loadIndicators(ctx context.Context, key models.QueryKey) (models.IndicatorReport, error) {
	report, err := p.backend.FetchIndicators(ctx, key)
	if err != nil {
		return models.IndicatorReport{}, err
	}
	report.Badge.Color = ParseColor(string(report.Badge.Color))
	return report, nil
}

func (p *Pipeline) loadEvents(ctx context.Context, key models.QueryKey) ([]models.SeismicEvent, error) {
	raw, err := p.backend.FetchEvents(ctx, key)
	if err != nil {
		return nil, err
	}
	return p.extractor.Extract(raw), nil
}
