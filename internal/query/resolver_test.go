package query

import (
	"errors"
	"net/url"
	"testing"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

var today = models.Date{Year: 2024, Month: 6, Day: 15}

func dateRange(start, end string) *[2]string {
	return &[2]string{start, end}
}

func TestResolveEquivalentDateFormsProduceEqualKeys(t *testing.T) {
	r := NewResolver(0, 0)
	forms := [][2]string{
		{"2024-03-05", "2024-04-01"},
		{"2024-3-5", "2024-4-1"},
		{"2024/03/05", "2024/04/01"},
		{"20240305", "20240401"},
		{"2024-03-05T08:30:00Z", "2024-04-01T23:59:59Z"},
	}

	keys := make(map[models.QueryKey]int)
	for _, f := range forms {
		key, err := r.Resolve(models.UserSelection{
			EntityID:  " 211060 ",
			RadiusKm:  25,
			MinMag:    -0.5,
			DateRange: dateRange(f[0], f[1]),
		}, today)
		if err != nil {
			t.Fatalf("Resolve(%v) returned error: %v", f, err)
		}
		keys[key]++
	}
	if len(keys) != 1 {
		t.Fatalf("expected a single distinct key, got %d: %v", len(keys), keys)
	}
	for key := range keys {
		if key.EntityID != "211060" || key.Window.Start.String() != "2024-03-05" || key.Window.End.String() != "2024-04-01" {
			t.Fatalf("unexpected key %s", key)
		}
	}
}

func TestResolveRejectsReversedOrMalformedRange(t *testing.T) {
	r := NewResolver(0, 0)
	cases := []*[2]string{
		dateRange("2024-04-01", "2024-03-05"),
		dateRange("not-a-date", "2024-03-05"),
		dateRange("2024-03-05", ""),
	}
	for _, dr := range cases {
		_, err := r.Resolve(models.UserSelection{RadiusKm: 10, DateRange: dr}, today)
		if !errors.Is(err, utils.ErrValidation) || !errors.Is(err, utils.ErrInvalidRange) {
			t.Fatalf("expected invalid range validation error for %v, got %v", *dr, err)
		}
	}
}

func TestResolveClampsDeepLinkDates(t *testing.T) {
	r := NewResolver(0, 0)
	sel := models.UserSelection{
		RadiusKm: 25,
		DeepLink: models.DeepLink{Start: "1990-01-01", End: "2030-12-31"},
	}
	key, err := r.Resolve(sel, today)
	if err != nil {
		t.Fatalf("deep-link dates must be clamped, got error: %v", err)
	}
	if key.Window.Start != r.Floor(today) {
		t.Fatalf("expected start clamped to floor %s, got %s", r.Floor(today), key.Window.Start)
	}
	if key.Window.End != today {
		t.Fatalf("expected end clamped to today, got %s", key.Window.End)
	}
}

func TestResolveDeepLinkOverridesWidgets(t *testing.T) {
	r := NewResolver(0, 0)
	sel := models.UserSelection{
		EntityID:  "100",
		RadiusKm:  25,
		MinMag:    1,
		DateRange: dateRange("2024-01-01", "2024-02-01"),
		DeepLink:  ParseDeepLink(url.Values{"vnum": {"357120"}, "radius_km": {"50"}, "minmag": {"abc"}, "start": {"2024-05-01"}, "end": {"2024-05-31"}}),
	}
	key, err := r.Resolve(sel, today)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if key.EntityID != "357120" {
		t.Fatalf("expected deep-link entity id, got %q", key.EntityID)
	}
	if key.RadiusKm != 50 {
		t.Fatalf("expected deep-link radius 50, got %v", key.RadiusKm)
	}
	if key.MinMag != 1 {
		t.Fatalf("expected slider magnitude fallback 1, got %v", key.MinMag)
	}
	if key.Window.Start.String() != "2024-05-01" {
		t.Fatalf("expected deep-link start, got %s", key.Window.Start)
	}
}

func TestResolveDefaultsWindowAndRejectsBadRadius(t *testing.T) {
	r := NewResolver(0, 0)
	key, err := r.Resolve(models.UserSelection{RadiusKm: 25}, today)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if key.Window.Days() != DefaultSpanDays+1 || key.Window.End != today {
		t.Fatalf("unexpected default window %s..%s", key.Window.Start, key.Window.End)
	}

	if _, err := r.Resolve(models.UserSelection{RadiusKm: 0}, today); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected validation error for zero radius, got %v", err)
	}
}

func TestResolveIsPure(t *testing.T) {
	r := NewResolver(0, 0)
	sel := models.UserSelection{EntityID: "1", RadiusKm: 30, DeepLink: models.DeepLink{Start: "2024-01-01", End: "2024-01-31"}}
	a, errA := r.Resolve(sel, today)
	b, errB := r.Resolve(sel, today)
	if errA != nil || errB != nil || a != b || a.String() != b.String() {
		t.Fatalf("expected identical keys, got %s / %s", a, b)
	}
}

func TestMapTemplate(t *testing.T) {
	key, err := MapTemplate(30, 25, 0, today)
	if err != nil {
		t.Fatalf("MapTemplate returned error: %v", err)
	}
	if key.EntityID != "" || key.Window.End != today || key.Window.Start != today.AddDays(-30) {
		t.Fatalf("unexpected template %s", key)
	}
	if key.ForEntity("7").EntityID != "7" || key.EntityID != "" {
		t.Fatalf("ForEntity must derive a copy")
	}
	if _, err := MapTemplate(0, 25, 0, today); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected validation error for zero days, got %v", err)
	}
	if _, err := MapTemplate(366, 25, 0, today); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected validation error for 366 days, got %v", err)
	}
}
