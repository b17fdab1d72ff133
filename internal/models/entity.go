package models

import "time"

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Entity is a monitored volcanic feature as returned by the backend.
type Entity struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Coordinate  *Coordinate `json:"coordinate,omitempty"`
	Type        string      `json:"type,omitempty"`
	Region      string      `json:"region,omitempty"`
	Observatory string      `json:"observatory,omitempty"`
	Severity    *float64    `json:"severity,omitempty"`
}

// BadgeColor is the categorical risk level. The four named colors partition risk without overlap.
type BadgeColor string

const (
	ColorGreen   BadgeColor = "green"
	ColorYellow  BadgeColor = "yellow"
	ColorOrange  BadgeColor = "orange"
	ColorRed     BadgeColor = "red"
	ColorUnknown BadgeColor = "unknown"
)

// RiskBadge is the categorical and numeric risk summary for one entity and query.
type RiskBadge struct {
	Color BadgeColor `json:"color"`
	Score *float64   `json:"score"`
	Basis string     `json:"basis,omitempty"`
}

// OfficialStatus is the observatory-issued status, when one exists.
type OfficialStatus struct {
	AlertLevel string `json:"alert_level,omitempty"`
	ColorCode  string `json:"color_code,omitempty"`
}

// IndicatorSet holds derived seismic statistics. Nil fields are unknown, never zero.
type IndicatorSet struct {
	Total              *int     `json:"total"`
	Last7Days          *int     `json:"last_7_days"`
	Last30Days         *int     `json:"last_30_days"`
	DaysSpan           *int     `json:"days_span"`
	PerDay             *float64 `json:"per_day"`
	MaxMag             *float64 `json:"max_mag"`
	MaxMag7Days        *float64 `json:"max_mag_7_days"`
	MedianDepthKm      *float64 `json:"median_depth_km"`
	MedianDepth7DaysKm *float64 `json:"median_depth_7_days_km"`
	Confidence         string   `json:"confidence,omitempty"`
}

// IndicatorReport is the backend's indicator payload for one QueryKey, passed through unmodified.
type IndicatorReport struct {
	Entity     Entity            `json:"entity"`
	Indicators IndicatorSet      `json:"indicators"`
	Badge      RiskBadge         `json:"badge"`
	Official   *OfficialStatus   `json:"official_status,omitempty"`
	Tooltips   map[string]string `json:"tooltips,omitempty"`
	ComputedAt time.Time         `json:"computed_at,omitempty"`
}
