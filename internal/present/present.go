// Package present converts pipeline results into render-ready records for whichever
// front end consumes them. Missing numbers render as "unknown", never as zero.
package present

import (
	"context"
	"strconv"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/engine"
	"github.com/volcanowatch/volcano-risk/internal/extractors"
	"github.com/volcanowatch/volcano-risk/internal/models"
)

// Unknown is the rendering of any missing numeric value.
const Unknown = "unknown"

// Sink receives finished views. Implementations must not mutate what they receive.
type Sink interface {
	PublishEntity(ctx context.Context, view EntityPanel) error
	PublishMap(ctx context.Context, view MapLayer) error
}

// Metric is one labelled indicator value with its explanation.
type Metric struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Value   string `json:"value"`
	Tooltip string `json:"tooltip,omitempty"`
}

// EntityPanel is the single-entity view ready for display.
type EntityPanel struct {
	EntityID    string                      `json:"entity_id"`
	Name        string                      `json:"name"`
	Badge       BadgeCell                   `json:"badge"`
	Official    *models.OfficialStatus      `json:"official_status,omitempty"`
	Confidence  string                      `json:"confidence"`
	Metrics     []Metric                    `json:"metrics"`
	Daily       []extractors.DailyCount     `json:"daily_counts"`
	Magnitudes  []extractors.MagnitudePoint `json:"magnitudes"`
	Surges      []extractors.Surge          `json:"surges,omitempty"`
	NoEvents    bool                        `json:"no_events"`
	Notice      string                      `json:"notice,omitempty"`
	Window      models.TimeWindow           `json:"window"`
	RadiusKm    float64                     `json:"radius_km"`
	MinMag      float64                     `json:"min_mag"`
	ComputedAt  *time.Time                  `json:"computed_at,omitempty"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// BadgeCell is a badge with its glyph and display score.
type BadgeCell struct {
	Color models.BadgeColor `json:"color"`
	Glyph string            `json:"glyph"`
	Score string            `json:"score"`
	Basis string            `json:"basis,omitempty"`
}

// Marker is one map marker.
type Marker struct {
	EntityID string            `json:"id"`
	Name     string            `json:"name"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Color    models.BadgeColor `json:"color"`
	Glyph    string            `json:"glyph"`
	Score    string            `json:"score"`
	HighRisk bool              `json:"high_risk"`
	Basis    string            `json:"basis,omitempty"`
}

// MapLayer is the map view ready for display.
type MapLayer struct {
	Query       models.MapQuery    `json:"query"`
	Window      models.TimeWindow  `json:"window"`
	Markers     []Marker           `json:"markers"`
	Stats       models.FanOutStats `json:"stats"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// NoEventsNotice is shown when indicators exist but the event series is empty.
const NoEventsNotice = "no events for this selection"

// SurgeThreshold is the z-score above which a day is flagged as a surge.
const SurgeThreshold = 2.5

var metricLabels = []struct {
	key   string
	label string
}{
	{"n_total", "Events (window)"},
	{"n7", "Events (7 days)"},
	{"n30", "Events (30 days)"},
	{"n_per_day", "Events per day"},
	{"mmax", "Max magnitude"},
	{"mmax7", "Max magnitude (7 days)"},
	{"depth_median_km", "Median depth (km)"},
	{"depth_median_7d_km", "Median depth, 7 days (km)"},
}

// NewEntityPanel renders view. now stamps GeneratedAt.
func NewEntityPanel(view models.EntityView, now time.Time) EntityPanel {
	report := view.Report
	in := report.Indicators

	values := map[string]string{
		"n_total":            formatInt(in.Total),
		"n7":                 formatInt(in.Last7Days),
		"n30":                formatInt(in.Last30Days),
		"n_per_day":          formatFloat(in.PerDay, 3),
		"mmax":               formatFloat(in.MaxMag, 1),
		"mmax7":              formatFloat(in.MaxMag7Days, 1),
		"depth_median_km":    formatFloat(in.MedianDepthKm, 1),
		"depth_median_7d_km": formatFloat(in.MedianDepth7DaysKm, 1),
	}
	metrics := make([]Metric, 0, len(metricLabels))
	for _, m := range metricLabels {
		metrics = append(metrics, Metric{Key: m.key, Label: m.label, Value: values[m.key], Tooltip: report.Tooltips[m.key]})
	}

	daily := extractors.DailyCounts(view.Events, view.Key.Window)
	panel := EntityPanel{
		EntityID:    firstNonEmpty(view.Key.EntityID, report.Entity.ID),
		Name:        report.Entity.Name,
		Badge:       badgeCell(report.Badge.Color, report.Badge.Score, report.Badge.Basis),
		Official:    report.Official,
		Confidence:  firstNonEmpty(in.Confidence, Unknown),
		Metrics:     metrics,
		Daily:       daily,
		Magnitudes:  extractors.MagnitudePoints(view.Events),
		Surges:      extractors.DetectSurges(daily, SurgeThreshold),
		NoEvents:    view.NoEvents,
		Window:      view.Key.Window,
		RadiusKm:    view.Key.RadiusKm,
		MinMag:      view.Key.MinMag,
		GeneratedAt: now.UTC(),
	}
	if view.NoEvents {
		panel.Notice = NoEventsNotice
	}
	if !report.ComputedAt.IsZero() {
		ts := report.ComputedAt
		panel.ComputedAt = &ts
	}
	return panel
}

// NewMapLayer renders a map view into markers.
func NewMapLayer(view models.MapView, now time.Time) MapLayer {
	return MapLayer{
		Query:       view.Query,
		Window:      view.Key.Window,
		Markers:     MapMarkers(view.Rows),
		Stats:       view.Stats,
		GeneratedAt: now.UTC(),
	}
}

// MapMarkers converts rows into markers, preserving order.
func MapMarkers(rows []models.MapRow) []Marker {
	markers := make([]Marker, 0, len(rows))
	for _, row := range rows {
		cell := badgeCell(row.Color, row.Score, row.Basis)
		markers = append(markers, Marker{
			EntityID: row.EntityID,
			Name:     row.Name,
			Lat:      row.Coordinate.Lat,
			Lon:      row.Coordinate.Lon,
			Color:    cell.Color,
			Glyph:    cell.Glyph,
			Score:    cell.Score,
			HighRisk: engine.IsHighRisk(cell.Color),
			Basis:    row.Basis,
		})
	}
	return markers
}

func badgeCell(color models.BadgeColor, score *float64, basis string) BadgeCell {
	normalized := engine.ParseColor(string(color))
	return BadgeCell{
		Color: normalized,
		Glyph: engine.Glyph(normalized),
		Score: formatFloat(score, 1),
		Basis: basis,
	}
}

func formatInt(v *int) string {
	if v == nil {
		return Unknown
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64, precision int) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
