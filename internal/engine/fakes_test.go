package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/repo"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

var errBackendDown = utils.NewUpstreamError("fake", "backend down", errors.New("boom"))

type fakeBackend struct {
	mu sync.Mutex

	searchResults []models.Entity
	searchErr     error
	catalog       []models.Entity
	reports       map[string]models.IndicatorReport
	events        map[string][]models.RawEvent
	eventsErr     error
	riskMap       []models.MapRow

	// failIndicators decides per entity id whether FetchIndicators fails.
	failIndicators func(id string) bool
	// hangIndicators makes FetchIndicators block until its context is done.
	hangIndicators func(id string) bool
	delay          time.Duration
	// unwind is how long FetchIndicators keeps running after its context ends.
	unwind time.Duration
	// onIndicators runs at the start of every FetchIndicators call.
	onIndicators func(id string)

	searchCalls     int32
	indicatorCalls  int32
	eventCalls      int32
	riskMapCalls    int32
	catalogCalls    int32
	inflight        int32
	maxInflight     int32
	lastRiskMapArgs models.MapQuery
}

func (f *fakeBackend) Search(ctx context.Context, text string) ([]models.Entity, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeBackend) ListEntities(ctx context.Context, page, limit int) (repo.CatalogPage, error) {
	atomic.AddInt32(&f.catalogCalls, 1)
	return repo.CatalogPage{Page: page, Limit: limit, Total: len(f.catalog), Pages: 1, Entities: f.catalog}, nil
}

func (f *fakeBackend) FetchIndicators(ctx context.Context, key models.QueryKey) (models.IndicatorReport, error) {
	atomic.AddInt32(&f.indicatorCalls, 1)
	current := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxInflight)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxInflight, seen, current) {
			break
		}
	}

	if f.onIndicators != nil {
		f.onIndicators(key.EntityID)
	}
	if f.hangIndicators != nil && f.hangIndicators(key.EntityID) {
		<-ctx.Done()
		time.Sleep(f.unwind)
		return models.IndicatorReport{}, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			time.Sleep(f.unwind)
			return models.IndicatorReport{}, ctx.Err()
		}
	}
	if f.failIndicators != nil && f.failIndicators(key.EntityID) {
		return models.IndicatorReport{}, errBackendDown
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if report, ok := f.reports[key.EntityID]; ok {
		return report, nil
	}
	score := 10.0
	return models.IndicatorReport{
		Entity: models.Entity{ID: key.EntityID, Name: "Volcano " + key.EntityID},
		Badge:  models.RiskBadge{Color: "Green", Score: &score},
	}, nil
}

func (f *fakeBackend) FetchEvents(ctx context.Context, key models.QueryKey) ([]models.RawEvent, error) {
	atomic.AddInt32(&f.eventCalls, 1)
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[key.EntityID], nil
}

func (f *fakeBackend) FetchRiskMap(ctx context.Context, q models.MapQuery) ([]models.MapRow, error) {
	atomic.AddInt32(&f.riskMapCalls, 1)
	f.mu.Lock()
	f.lastRiskMapArgs = q
	f.mu.Unlock()
	out := make([]models.MapRow, len(f.riskMap))
	copy(out, f.riskMap)
	return out, nil
}

func placedEntities(n int) []models.Entity {
	entities := make([]models.Entity, 0, n)
	for i := 0; i < n; i++ {
		entities = append(entities, models.Entity{
			ID:         fmt.Sprintf("%d", 100+i),
			Name:       fmt.Sprintf("Volcano %d", i),
			Coordinate: &models.Coordinate{Lat: float64(i), Lon: float64(-i)},
		})
	}
	return entities
}

func testTemplate() models.QueryKey {
	return models.QueryKey{
		Window: models.TimeWindow{
			Start: models.Date{Year: 2024, Month: 5, Day: 16},
			End:   models.Date{Year: 2024, Month: 6, Day: 15},
		},
		RadiusKm: 25,
	}
}

func intPtr(v int) *int { return &v }
