package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/present"
	"github.com/volcanowatch/volcano-risk/internal/query"
	"github.com/volcanowatch/volcano-risk/internal/refresh"
	"github.com/volcanowatch/volcano-risk/internal/services"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

type fakeService struct {
	searchErr error
	entities  []models.Entity

	lastSelection models.UserSelection
	entityResult  services.EntityResult
	entityErr     error

	lastMap  query.MapRequest
	mapCalls int
	mapView  models.MapView
	mapErr   error
}

func (f *fakeService) Search(_ context.Context, text string) ([]models.Entity, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.entities, nil
}

func (f *fakeService) EntityView(_ context.Context, sel models.UserSelection) (services.EntityResult, error) {
	f.lastSelection = sel
	return f.entityResult, f.entityErr
}

func (f *fakeService) MapView(_ context.Context, req query.MapRequest) (models.MapView, error) {
	f.mapCalls++
	f.lastMap = req
	return f.mapView, f.mapErr
}

func (f *fakeService) Latency() map[string]utils.LatencySummary {
	return map[string]utils.LatencySummary{"search": {Count: 3, P95: 40 * time.Millisecond}}
}

type fakeStatus struct {
	healthy bool
}

func (f fakeStatus) Last() refresh.CycleReport { return refresh.CycleReport{ID: "cycle-1"} }
func (f fakeStatus) Healthy() bool             { return f.healthy }

func newTestRouter(svc RiskAPI, snapshots SnapshotSource, status RefreshStatus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, svc, snapshots, status, Widgets{RadiusKm: 25})
	return NewRouter(h, nil)
}

func do(t *testing.T, r http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestSearchMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.NewValidationError("op", "empty", utils.ErrEmptyQuery), http.StatusBadRequest},
		{utils.NewNotFoundError("op", "none", utils.ErrNoResults), http.StatusNotFound},
		{utils.NewUpstreamError("op", "down", errors.New("503")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newTestRouter(&fakeService{searchErr: tc.err}, nil, nil)
		w := do(t, r, "/v1/search?q=etna")
		if w.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestSearchReturnsResults(t *testing.T) {
	svc := &fakeService{entities: []models.Entity{{ID: "211060", Name: "Etna"}}}
	w := do(t, newTestRouter(svc, nil, nil), "/v1/search?q=etna")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Results []models.Entity `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].ID != "211060" {
		t.Fatalf("unexpected results: %+v", body.Results)
	}
}

func TestEntityBuildsSelectionFromWidgetsAndDeepLink(t *testing.T) {
	svc := &fakeService{entityResult: services.EntityResult{
		Matched: true,
		View: models.EntityView{
			Key:      models.QueryKey{EntityID: "211060"},
			Report:   models.IndicatorReport{Entity: models.Entity{ID: "211060", Name: "Etna"}},
			NoEvents: true,
		},
	}}
	r := newTestRouter(svc, nil, nil)

	w := do(t, r, "/v1/entity?text=etna&radius=40&from=2024-01-01&to=2024-02-01&vnum=211060&minmag=1.5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	sel := svc.lastSelection
	if sel.Text != "etna" || sel.RadiusKm != 40 || sel.MinMag != 0 {
		t.Fatalf("unexpected widget values: %+v", sel)
	}
	if sel.DateRange == nil || sel.DateRange[0] != "2024-01-01" || sel.DateRange[1] != "2024-02-01" {
		t.Fatalf("unexpected date range: %+v", sel.DateRange)
	}
	if sel.DeepLink.EntityID != "211060" || sel.DeepLink.MinMag != "1.5" {
		t.Fatalf("unexpected deep link: %+v", sel.DeepLink)
	}

	var body struct {
		Panel present.EntityPanel `json:"panel"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Panel.NoEvents || body.Panel.Notice != present.NoEventsNotice {
		t.Fatalf("expected no-events notice, got %+v", body.Panel)
	}
}

func TestEntityRejectsMalformedWidgets(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc, nil, nil)

	for _, target := range []string{
		"/v1/entity?id=1&radius=wide",
		"/v1/entity?id=1&from=2024-01-01",
	} {
		if w := do(t, r, target); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestRiskMapRejectsMalformedNumbersWithoutCallingService(t *testing.T) {
	svc := &fakeService{}
	w := do(t, newTestRouter(svc, nil, nil), "/v1/risk-map?days=thirty")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if svc.mapCalls != 0 {
		t.Fatalf("expected no service call, got %d", svc.mapCalls)
	}
}

func TestRiskMapParsesQuery(t *testing.T) {
	svc := &fakeService{mapView: models.MapView{Rows: []models.MapRow{
		{EntityID: "1", Name: "A", Coordinate: models.Coordinate{Lat: 1, Lon: 2}, Color: models.ColorRed},
	}}}
	w := do(t, newTestRouter(svc, nil, nil), "/v1/risk-map?days=7&radius_km=30&minmag=2&limit=50&page=2&concurrency=4&high_only=true")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got, err := query.NormalizeMap(svc.lastMap, query.MapDefaults{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := models.MapQuery{Days: 7, RadiusKm: 30, MinMag: 2, Limit: 50, Page: 2, Concurrency: 4, HighOnly: true}
	if got != want {
		t.Fatalf("unexpected map query: %+v", got)
	}
	var layer present.MapLayer
	if err := json.Unmarshal(w.Body.Bytes(), &layer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(layer.Markers) != 1 || !layer.Markers[0].HighRisk {
		t.Fatalf("unexpected markers: %+v", layer.Markers)
	}
}

func TestRiskMapKeepsExplicitZeroMagnitude(t *testing.T) {
	svc := &fakeService{}
	if w := do(t, newTestRouter(svc, nil, nil), "/v1/risk-map?minmag=0&days="); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	req := svc.lastMap
	if req.MinMag == nil || *req.MinMag != 0 {
		t.Fatalf("expected explicit minmag 0, got %v", req.MinMag)
	}
	if req.Days != nil || req.RadiusKm != nil || req.Limit != nil || req.Page != nil || req.Concurrency != nil {
		t.Fatalf("absent parameters must stay unset: %+v", req)
	}
	q, err := query.NormalizeMap(req, query.MapDefaults{MinMag: 2})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.MinMag != 0 {
		t.Fatalf("default magnitude overrode explicit 0: %v", q.MinMag)
	}
}

func TestRiskMapRejectsExplicitZeroDays(t *testing.T) {
	svc := &fakeService{mapErr: utils.NewValidationError("query.NormalizeMap", "days must be between 1 and 365", utils.ErrInvalidRange)}
	w := do(t, newTestRouter(svc, nil, nil), "/v1/risk-map?days=0")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if svc.lastMap.Days == nil || *svc.lastMap.Days != 0 {
		t.Fatalf("expected explicit days 0 to reach the service, got %v", svc.lastMap.Days)
	}
}

func TestRiskMapGeoJSON(t *testing.T) {
	svc := &fakeService{mapView: models.MapView{
		Key: models.QueryKey{RadiusKm: 25},
		Rows: []models.MapRow{
			{EntityID: "1", Name: "A", Coordinate: models.Coordinate{Lat: 1, Lon: 2}, Color: models.ColorGreen},
		},
	}}
	w := do(t, newTestRouter(svc, nil, nil), "/v1/risk-map.geojson")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/geo+json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"FeatureCollection"`) {
		t.Fatalf("expected a feature collection, got %s", w.Body.String())
	}
}

func TestSnapshotAndHealth(t *testing.T) {
	sink := present.NewMemorySink()
	if err := sink.PublishMap(context.Background(), present.MapLayer{GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	r := newTestRouter(&fakeService{}, sink, fakeStatus{healthy: true})
	w := do(t, r, "/v1/snapshot")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"cycle-1"`) {
		t.Fatalf("expected refresh report in body: %s", w.Body.String())
	}
	if w := do(t, r, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", w.Code)
	}

	unhealthy := newTestRouter(&fakeService{}, sink, fakeStatus{healthy: false})
	if w := do(t, unhealthy, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestSnapshotDisabled(t *testing.T) {
	w := do(t, newTestRouter(&fakeService{}, nil, nil), "/v1/snapshot")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	w := do(t, newTestRouter(&fakeService{}, nil, nil), "/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Latency map[string]map[string]int64 `json:"latency"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := body.Latency["search"]["p95_ms"]; got != 40 {
		t.Fatalf("expected p95 40ms, got %d", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(&fakeService{}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header, got none (status %d)", w.Code)
	}
}
