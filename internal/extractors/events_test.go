package extractors

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/models"
)

func mag(v float64) *float64 { return &v }

func TestExtractDropsMalformedAndOrdersByTime(t *testing.T) {
	raw := []models.RawEvent{
		{ID: "c", Time: json.RawMessage(`"2024-03-05T12:00:00Z"`), Mag: mag(2.1)},
		{ID: "bad", Time: json.RawMessage(`"yesterday-ish"`), Mag: mag(4.0)},
		{ID: "a", Time: json.RawMessage(`1709596800000`), Mag: mag(1.0)},
		{ID: "b", Time: json.RawMessage(`"2024-03-05T06:00:00+00:00"`)},
		{ID: "missing", Mag: mag(3.3)},
	}

	events := NewEventExtractor(nil).Extract(raw)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if events[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, events[i].ID)
		}
	}
	if events[1].Mag != nil {
		t.Fatalf("missing magnitude must stay unknown, got %v", *events[1].Mag)
	}
}

func TestExtractKeepsReceivedOrderForEqualTimestamps(t *testing.T) {
	ts := json.RawMessage(`"2024-03-05T12:00:00Z"`)
	events := NewEventExtractor(nil).Extract([]models.RawEvent{{ID: "first", Time: ts}, {ID: "second", Time: ts}})
	if events[0].ID != "first" || events[1].ID != "second" {
		t.Fatalf("expected stable order, got %s,%s", events[0].ID, events[1].ID)
	}
}

func TestDailyCountsZeroFillsWindow(t *testing.T) {
	window := models.TimeWindow{
		Start: models.Date{Year: 2024, Month: 3, Day: 1},
		End:   models.Date{Year: 2024, Month: 3, Day: 3},
	}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []models.SeismicEvent{
		{Time: base.Add(2 * time.Hour)},
		{Time: base.Add(5 * time.Hour)},
		{Time: base.Add(50 * time.Hour)},
		{Time: base.Add(-time.Hour)},
		{Time: base.Add(80 * time.Hour)},
	}

	counts := DailyCounts(events, window)
	if len(counts) != 3 {
		t.Fatalf("expected 3 days, got %d", len(counts))
	}
	got := []int{counts[0].Count, counts[1].Count, counts[2].Count}
	if got[0] != 2 || got[1] != 0 || got[2] != 1 {
		t.Fatalf("unexpected counts %v", got)
	}
}

func TestDetectSurges(t *testing.T) {
	series := make([]DailyCount, 0, 15)
	day := models.Date{Year: 2024, Month: 1, Day: 1}
	for i := 0; i < 15; i++ {
		count := 1
		if i == 14 {
			count = 30
		}
		series = append(series, DailyCount{Day: day.AddDays(i), Count: count})
	}

	surges := DetectSurges(series, 2)
	if len(surges) != 1 || surges[0].Day != day.AddDays(14) {
		t.Fatalf("expected a single surge on the last day, got %+v", surges)
	}
	if DetectSurges(series[:5], 2) != nil {
		t.Fatalf("flat series must not surge")
	}
}

func TestMagnitudePointsSkipsUnknown(t *testing.T) {
	points := MagnitudePoints([]models.SeismicEvent{{Mag: mag(1.5)}, {}})
	if len(points) != 1 || points[0].Mag != 1.5 {
		t.Fatalf("unexpected points %+v", points)
	}
}
