package extractors

import (
	"math"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/models"
)

// DailyCount is the number of events on one UTC calendar day.
type DailyCount struct {
	Day   models.Date `json:"day"`
	Count int         `json:"count"`
}

// MagnitudePoint is one event with a known magnitude, for scatter charts.
type MagnitudePoint struct {
	Time    time.Time `json:"time"`
	Mag     float64   `json:"mag"`
	DepthKm *float64  `json:"depth_km"`
}

// Surge marks a day whose count stands out from the window's baseline.
type Surge struct {
	Day       models.Date `json:"day"`
	Count     int         `json:"count"`
	Score     float64     `json:"score"`
	Threshold float64     `json:"threshold"`
}

// DailyCounts buckets events per UTC day across the whole window, zero-filling quiet days.
// Events outside the window are ignored.
func DailyCounts(events []models.SeismicEvent, window models.TimeWindow) []DailyCount {
	if window.Start.IsZero() || window.End.Before(window.Start) {
		return nil
	}
	days := window.Days()
	counts := make([]DailyCount, days)
	for i := range counts {
		counts[i].Day = window.Start.AddDays(i)
	}
	start := window.Start.Time()
	for _, ev := range events {
		idx := int(ev.Time.UTC().Sub(start).Hours() / 24)
		if ev.Time.Before(start) || idx >= days {
			continue
		}
		counts[idx].Count++
	}
	return counts
}

// MagnitudePoints lists events that carry a magnitude, keeping their order.
func MagnitudePoints(events []models.SeismicEvent) []MagnitudePoint {
	points := make([]MagnitudePoint, 0, len(events))
	for _, ev := range events {
		if ev.Mag == nil {
			continue
		}
		points = append(points, MagnitudePoint{Time: ev.Time, Mag: *ev.Mag, DepthKm: ev.DepthKm})
	}
	return points
}

// DetectSurges flags days whose z-score against the series mean reaches threshold.
func DetectSurges(series []DailyCount, threshold float64) []Surge {
	if len(series) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = 2.5
	}

	mean := 0.0
	for _, c := range series {
		mean += float64(c.Count)
	}
	mean /= float64(len(series))

	variance := 0.0
	for _, c := range series {
		variance += math.Pow(float64(c.Count)-mean, 2)
	}
	variance /= float64(len(series))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return nil
	}

	surges := make([]Surge, 0)
	for _, c := range series {
		score := (float64(c.Count) - mean) / stdDev
		if score >= threshold {
			surges = append(surges, Surge{Day: c.Day, Count: c.Count, Score: score, Threshold: threshold})
		}
	}
	return surges
}
