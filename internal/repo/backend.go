package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/volcanowatch/volcano-risk/internal/metrics"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

var backendTracer = otel.Tracer("volcano-risk.repo.backend")

const (
	endpointSearch     = "search"
	endpointCatalog    = "catalog"
	endpointIndicators = "indicators"
	endpointEvents     = "events"
	endpointRiskMap    = "riskmap"
)

// BackendOptions configures a BackendClient.
type BackendOptions struct {
	BaseURL       string
	SearchPath    string
	VolcanoesPath string
	RiskMapPath   string
	Timeout       time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	Logger        *slog.Logger
}

// CatalogPage is one page of the backend's entity listing.
type CatalogPage struct {
	Page     int
	Limit    int
	Total    int
	Pages    int
	Entities []models.Entity
}

// BackendClient reads search results, indicators, events and risk snapshots from the
// remote seismic backend over HTTP GET + JSON.
type BackendClient struct {
	baseURL       string
	searchPath    string
	volcanoesPath string
	riskMapPath   string
	maxRetries    int
	retryBase     time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewBackendClient constructs a client targeting the configured backend instance.
func NewBackendClient(opts BackendOptions) *BackendClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 250 * time.Millisecond
	}
	return &BackendClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		searchPath:    firstNonEmpty(opts.SearchPath, "/volcanoes/search"),
		volcanoesPath: firstNonEmpty(opts.VolcanoesPath, "/volcanoes"),
		riskMapPath:   firstNonEmpty(opts.RiskMapPath, "/risk-map"),
		maxRetries:    opts.MaxRetries,
		retryBase:     opts.RetryBase,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		logger:        utils.OrDefault(opts.Logger),
	}
}

// Search returns candidates for text in the backend's own relevance order.
func (c *BackendClient) Search(ctx context.Context, text string) ([]models.Entity, error) {
	params := url.Values{"q": {text}}
	var response volcanoList
	if err := c.getJSON(ctx, endpointSearch, c.searchURL(params), &response); err != nil {
		return nil, fmt.Errorf("backend search request failed: %w", err)
	}
	entities := make([]models.Entity, 0, len(response.Results))
	for _, v := range response.Results {
		if v.VNum == "" {
			continue
		}
		entities = append(entities, v.entity())
	}
	return entities, nil
}

// ListEntities returns one page of the backend's entity catalog.
func (c *BackendClient) ListEntities(ctx context.Context, page, limit int) (CatalogPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var response volcanoList
	if err := c.getJSON(ctx, endpointCatalog, c.withQuery(c.volcanoesPath, params), &response); err != nil {
		return CatalogPage{}, fmt.Errorf("backend catalog request failed: %w", err)
	}
	out := CatalogPage{
		Page:     firstPositive(response.Page, page),
		Limit:    firstPositive(response.Limit, limit),
		Total:    response.Total,
		Pages:    response.Pages,
		Entities: make([]models.Entity, 0, len(response.Results)),
	}
	for _, v := range response.Results {
		if v.VNum == "" {
			continue
		}
		out.Entities = append(out.Entities, v.entity())
	}
	return out, nil
}

// FetchIndicators retrieves the indicator report for one entity and key.
func (c *BackendClient) FetchIndicators(ctx context.Context, key models.QueryKey) (models.IndicatorReport, error) {
	var response wireIndicators
	endpoint := c.entityURL(key, "indicators")
	if err := c.getJSON(ctx, endpointIndicators, endpoint, &response); err != nil {
		return models.IndicatorReport{}, fmt.Errorf("backend indicators request for %s failed: %w", key.EntityID, err)
	}
	report := response.report()
	if report.Entity.ID == "" {
		report.Entity.ID = key.EntityID
	}
	return report, nil
}

// FetchEvents retrieves the raw event list for one entity and key. Timestamps are not validated here.
func (c *BackendClient) FetchEvents(ctx context.Context, key models.QueryKey) ([]models.RawEvent, error) {
	var response wireEvents
	endpoint := c.entityURL(key, "earthquakes")
	if err := c.getJSON(ctx, endpointEvents, endpoint, &response); err != nil {
		return nil, fmt.Errorf("backend events request for %s failed: %w", key.EntityID, err)
	}
	events := make([]models.RawEvent, 0, len(response.Events))
	for _, ev := range response.Events {
		events = append(events, models.RawEvent{
			ID:      string(ev.EventID),
			Time:    ev.Time,
			Mag:     ev.Mag.ptr(),
			DepthKm: ev.DepthKm.ptr(),
			Place:   ev.Place,
		})
	}
	return events, nil
}

// FetchRiskMap asks the backend to run the fan-out itself. Rows lacking a coordinate are dropped.
func (c *BackendClient) FetchRiskMap(ctx context.Context, q models.MapQuery) ([]models.MapRow, error) {
	params := url.Values{}
	params.Set("days", strconv.Itoa(q.Days))
	params.Set("radius_km", formatFloat(q.RadiusKm))
	params.Set("minmag", formatFloat(q.MinMag))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Concurrency > 0 {
		params.Set("concurrency", strconv.Itoa(q.Concurrency))
	}

	var response wireRiskMap
	if err := c.getJSON(ctx, endpointRiskMap, c.withQuery(c.riskMapPath, params), &response); err != nil {
		return nil, fmt.Errorf("backend risk-map request failed: %w", err)
	}
	rows := make([]models.MapRow, 0, len(response.Results))
	for _, r := range response.Results {
		lat, lon := r.Lat.ptr(), r.Lon.ptr()
		if r.VNum == "" || lat == nil || lon == nil {
			continue
		}
		row := models.MapRow{
			EntityID:   string(r.VNum),
			Name:       r.Name,
			Coordinate: models.Coordinate{Lat: *lat, Lon: *lon},
			Color:      models.BadgeColor(r.Color),
			Score:      r.Score.ptr(),
		}
		if r.Basis != nil {
			row.Basis = *r.Basis
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *BackendClient) searchURL(params url.Values) string {
	return c.withQuery(c.searchPath, params)
}

func (c *BackendClient) entityURL(key models.QueryKey, leaf string) string {
	params := url.Values{}
	params.Set("start", key.Window.Start.String())
	params.Set("end", key.Window.End.String())
	params.Set("radius_km", formatFloat(key.RadiusKm))
	params.Set("minmag", formatFloat(key.MinMag))
	return c.withQuery(path.Join(c.volcanoesPath, key.EntityID, leaf), params)
}

func (c *BackendClient) withQuery(p string, params url.Values) string {
	base := c.resolvePath(p)
	if base == "" || len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

func (c *BackendClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// getJSON issues a GET with retries on transport errors and 5xx responses. 4xx responses are final.
func (c *BackendClient) getJSON(ctx context.Context, endpointName, endpoint string, out any) (err error) {
	const op = "repo.BackendClient"
	if c == nil {
		return utils.NewUpstreamError(op, "backend client not initialised", nil)
	}
	if endpoint == "" {
		return utils.NewUpstreamError(op, "backend base URL not configured", nil)
	}

	ctx, span := backendTracer.Start(ctx, "repo.BackendClient."+endpointName,
		trace.WithAttributes(attribute.String("http.url", endpoint)),
	)
	started := time.Now()
	defer func() {
		metrics.ObserveUpstream(endpointName, time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << (attempt - 1)
			c.logger.Debug("retrying backend request",
				slog.String("endpoint", endpointName),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr),
			)
			select {
			case <-ctx.Done():
				return utils.NewUpstreamError(op, endpointName+" request cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		retry, reqErr := c.doGet(ctx, endpoint, out)
		span.SetAttributes(attribute.Int("http.attempts", attempt+1))
		if reqErr == nil {
			return nil
		}
		lastErr = reqErr
		if !retry || ctx.Err() != nil {
			break
		}
	}

	var appErr *utils.AppError
	if errors.As(lastErr, &appErr) {
		return lastErr
	}
	return utils.NewUpstreamError(op, endpointName+" request failed", lastErr)
}

func (c *BackendClient) doGet(ctx context.Context, endpoint string, out any) (retry bool, err error) {
	const op = "repo.BackendClient"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, utils.NewNotFoundError(op, "backend returned 404", utils.ErrUnknownEntity)
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("backend returned %s", resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, utils.NewUpstreamError(op, "backend returned "+resp.Status, nil)
	}

	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, utils.NewUpstreamError(op, "decode response", err)
	}
	return false, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
