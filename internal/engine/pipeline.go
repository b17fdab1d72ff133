package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/cache"
	"github.com/volcanowatch/volcano-risk/internal/extractors"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/repo"
)

// Map build modes.
const (
	// ModeClient fans out per-entity indicator fetches over the backend catalog.
	ModeClient = "client"
	// ModeRemote delegates the fan-out to the backend's batched risk-map endpoint.
	ModeRemote = "remote"
)

// Backend is the remote seismic service as seen by the pipeline.
type Backend interface {
	Search(ctx context.Context, text string) ([]models.Entity, error)
	ListEntities(ctx context.Context, page, limit int) (repo.CatalogPage, error)
	FetchIndicators(ctx context.Context, key models.QueryKey) (models.IndicatorReport, error)
	FetchEvents(ctx context.Context, key models.QueryKey) ([]models.RawEvent, error)
	FetchRiskMap(ctx context.Context, q models.MapQuery) ([]models.MapRow, error)
}

// Options tunes a Pipeline.
type Options struct {
	Logger      *slog.Logger
	Cache       cache.Options
	CallTimeout time.Duration
	MapMode     string
	Extractor   *extractors.EventExtractor
}

type catalogKey struct {
	page  int
	limit int
}

// Pipeline resolves searches, single-entity views and map datasets against the backend,
// consulting the TTL caches before every remote call.
type Pipeline struct {
	logger      *slog.Logger
	backend     Backend
	extractor   *extractors.EventExtractor
	callTimeout time.Duration
	mapMode     string

	searches   *cache.Cache[string, []models.Entity]
	indicators *cache.Cache[models.QueryKey, models.IndicatorReport]
	events     *cache.Cache[models.QueryKey, []models.SeismicEvent]
	riskMaps   *cache.Cache[models.MapQuery, []models.MapRow]
	catalog    *cache.Cache[catalogKey, repo.CatalogPage]
}

// NewPipeline constructs a pipeline over backend.
func NewPipeline(backend Backend, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = extractors.NewEventExtractor(logger)
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	mode := strings.ToLower(strings.TrimSpace(opts.MapMode))
	if mode != ModeRemote {
		mode = ModeClient
	}

	return &Pipeline{
		logger:      logger,
		backend:     backend,
		extractor:   extractor,
		callTimeout: callTimeout,
		mapMode:     mode,
		searches:    cache.New[string, []models.Entity](opts.Cache),
		indicators:  cache.New[models.QueryKey, models.IndicatorReport](opts.Cache),
		events:      cache.New[models.QueryKey, []models.SeismicEvent](opts.Cache),
		riskMaps:    cache.New[models.MapQuery, []models.MapRow](opts.Cache),
		catalog:     cache.New[catalogKey, repo.CatalogPage](opts.Cache),
	}
}

// MapMode reports the configured map build mode.
func (p *Pipeline) MapMode() string { return p.mapMode }
