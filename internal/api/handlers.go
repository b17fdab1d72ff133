package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/present"
	"github.com/volcanowatch/volcano-risk/internal/query"
	"github.com/volcanowatch/volcano-risk/internal/refresh"
	"github.com/volcanowatch/volcano-risk/internal/services"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// RiskAPI is the service surface the HTTP handlers call.
type RiskAPI interface {
	Search(ctx context.Context, text string) ([]models.Entity, error)
	EntityView(ctx context.Context, sel models.UserSelection) (services.EntityResult, error)
	MapView(ctx context.Context, req query.MapRequest) (models.MapView, error)
	Latency() map[string]utils.LatencySummary
}

// SnapshotSource exposes the latest published refresh output.
type SnapshotSource interface {
	Snapshot() present.Snapshot
}

// RefreshStatus exposes the scheduler's last cycle and health.
type RefreshStatus interface {
	Last() refresh.CycleReport
	Healthy() bool
}

// Widgets are the slider values used when a request does not set them.
type Widgets struct {
	RadiusKm float64
	MinMag   float64
}

// Handler serves the JSON and GeoJSON endpoints.
type Handler struct {
	logger    *slog.Logger
	svc       RiskAPI
	snapshots SnapshotSource
	status    RefreshStatus
	widgets   Widgets
	now       func() time.Time
}

// NewHandler wires the handlers. snapshots and status may be nil when refresh is disabled.
func NewHandler(logger *slog.Logger, svc RiskAPI, snapshots SnapshotSource, status RefreshStatus, widgets Widgets) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if widgets.RadiusKm <= 0 {
		widgets.RadiusKm = 25
	}
	return &Handler{
		logger:    logger,
		svc:       svc,
		snapshots: snapshots,
		status:    status,
		widgets:   widgets,
		now:       time.Now,
	}
}

// NewRouter builds the gin engine with CORS, recovery and request logging.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)
	v1 := r.Group("/v1")
	{
		v1.GET("/search", h.Search)
		v1.GET("/entity", h.Entity)
		v1.GET("/risk-map", h.RiskMap)
		v1.GET("/risk-map.geojson", h.RiskMapGeoJSON)
		v1.GET("/snapshot", h.Snapshot)
		v1.GET("/stats", h.Stats)
	}
	return r
}

// Healthz reports liveness and, when a scheduler runs, its health.
func (h *Handler) Healthz(c *gin.Context) {
	if h.status != nil && !h.status.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "refresh": h.status.Last()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Search returns candidate entities for ?q=.
func (h *Handler) Search(c *gin.Context) {
	entities, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": entities})
}

// Entity resolves the widget and deep-link parameters into a single-entity panel.
//
// Widget parameters: text, id, radius, mag, from, to.
// Deep-link parameters (override widgets): q, vnum, radius_km, minmag, start, end.
func (h *Handler) Entity(c *gin.Context) {
	sel, err := h.selection(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	result, err := h.svc.EntityView(c.Request.Context(), sel)
	if err != nil {
		h.writeError(c, err)
		return
	}

	body := gin.H{
		"candidates": result.Candidates,
		"selected":   result.Selected,
		"matched":    result.Matched,
		"key":        result.View.Key,
		"panel":      present.NewEntityPanel(result.View, h.now()),
	}
	if result.View.EventsErr != nil {
		body["events_error"] = result.View.EventsErr.Error()
	}
	c.JSON(http.StatusOK, body)
}

// RiskMap returns the map layer for the requested parameters.
func (h *Handler) RiskMap(c *gin.Context) {
	view, ok := h.mapView(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, present.NewMapLayer(view, h.now()))
}

// RiskMapGeoJSON returns the map rows as a GeoJSON FeatureCollection.
func (h *Handler) RiskMapGeoJSON(c *gin.Context) {
	view, ok := h.mapView(c)
	if !ok {
		return
	}
	body, err := present.MarshalFeatureCollection(view)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

// Snapshot returns the scheduler's latest output.
func (h *Handler) Snapshot(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "background refresh is disabled", "kind": utils.KindNotFound.String()})
		return
	}
	body := gin.H{"snapshot": h.snapshots.Snapshot()}
	if h.status != nil {
		body["refresh"] = h.status.Last()
		body["healthy"] = h.status.Healthy()
	}
	c.JSON(http.StatusOK, body)
}

// Stats returns the per-view latency digest.
func (h *Handler) Stats(c *gin.Context) {
	out := make(map[string]gin.H)
	for view, s := range h.svc.Latency() {
		out[view] = gin.H{
			"count":  s.Count,
			"p50_ms": s.P50.Milliseconds(),
			"p95_ms": s.P95.Milliseconds(),
			"p99_ms": s.P99.Milliseconds(),
			"max_ms": s.Max.Milliseconds(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"latency": out})
}

func (h *Handler) selection(c *gin.Context) (models.UserSelection, error) {
	const op = "api.selection"
	sel := models.UserSelection{
		Text:     strings.TrimSpace(c.Query("text")),
		EntityID: strings.TrimSpace(c.Query("id")),
		RadiusKm: h.widgets.RadiusKm,
		MinMag:   h.widgets.MinMag,
		DeepLink: query.ParseDeepLink(c.Request.URL.Query()),
	}
	if raw, ok := c.GetQuery("radius"); ok {
		v, parsed := utils.ParseFloat(raw)
		if !parsed {
			return models.UserSelection{}, utils.NewValidationError(op, "radius must be a number", nil)
		}
		sel.RadiusKm = v
	}
	if raw, ok := c.GetQuery("mag"); ok {
		v, parsed := utils.ParseFloat(raw)
		if !parsed {
			return models.UserSelection{}, utils.NewValidationError(op, "mag must be a number", nil)
		}
		sel.MinMag = v
	}
	from, to := c.Query("from"), c.Query("to")
	switch {
	case from != "" && to != "":
		sel.DateRange = &[2]string{from, to}
	case from != "" || to != "":
		return models.UserSelection{}, utils.NewValidationError(op, "from and to must be given together", utils.ErrInvalidRange)
	}
	return sel, nil
}

func (h *Handler) mapView(c *gin.Context) (models.MapView, bool) {
	req, err := mapRequest(c)
	if err != nil {
		h.writeError(c, err)
		return models.MapView{}, false
	}
	view, err := h.svc.MapView(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return models.MapView{}, false
	}
	return view, true
}

// mapRequest reads the risk-map parameters. Absent or blank parameters stay nil so
// the service defaults apply; anything supplied, zero included, is passed through.
func mapRequest(c *gin.Context) (query.MapRequest, error) {
	const op = "api.mapRequest"
	var req query.MapRequest
	ints := []struct {
		name string
		dst  **int
	}{
		{"days", &req.Days},
		{"limit", &req.Limit},
		{"page", &req.Page},
		{"concurrency", &req.Concurrency},
	}
	for _, p := range ints {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return query.MapRequest{}, utils.NewValidationError(op, p.name+" must be an integer", err)
		}
		*p.dst = &v
	}
	floats := []struct {
		name string
		dst  **float64
	}{
		{"radius_km", &req.RadiusKm},
		{"minmag", &req.MinMag},
	}
	for _, p := range floats {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		v, ok := utils.ParseFloat(raw)
		if !ok {
			return query.MapRequest{}, utils.NewValidationError(op, p.name+" must be a number", nil)
		}
		*p.dst = &v
	}
	if raw := c.Query("high_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return query.MapRequest{}, utils.NewValidationError(op, "high_only must be a boolean", err)
		}
		req.HighOnly = v
	}
	return req, nil
}

func (h *Handler) writeError(c *gin.Context, err error) {
	kind := utils.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case utils.KindValidation:
		status = http.StatusBadRequest
	case utils.KindNotFound:
		status = http.StatusNotFound
	case utils.KindUpstream:
		status = http.StatusBadGateway
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		h.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	}
}
