package models

import (
	"fmt"
	"strconv"
	"time"
)

// Date is a civil calendar date without time-of-day or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC at the start of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days, normalising month and year overflow.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.Time().Before(other.Time()) }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.Time().After(other.Time()) }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText encodes d as YYYY-MM-DD, or empty for the zero Date.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD date. Empty text is the zero Date.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	t, err := time.Parse("2006-01-02", string(text))
	if err != nil {
		return fmt.Errorf("parse date %q: %w", text, err)
	}
	*d = DateOf(t)
	return nil
}

// TimeWindow is an inclusive date range.
type TimeWindow struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Days returns the number of calendar days covered by the window, at least 1.
func (w TimeWindow) Days() int {
	days := int(w.End.Time().Sub(w.Start.Time()).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// QueryKey is the canonical, comparable form of a user query and the cache-lookup key.
// An empty EntityID marks a search-phase key or a fan-out template.
type QueryKey struct {
	EntityID string     `json:"entity_id,omitempty"`
	Window   TimeWindow `json:"window"`
	RadiusKm float64    `json:"radius_km"`
	MinMag   float64    `json:"min_mag"`
}

// ForEntity derives a per-entity key sharing the window, radius and magnitude of k.
func (k QueryKey) ForEntity(id string) QueryKey {
	k.EntityID = id
	return k
}

// String returns an injective textual form of the key.
func (k QueryKey) String() string {
	return fmt.Sprintf("%q|%s..%s|r=%s|m=%s",
		k.EntityID,
		k.Window.Start,
		k.Window.End,
		strconv.FormatFloat(k.RadiusKm, 'g', -1, 64),
		strconv.FormatFloat(k.MinMag, 'g', -1, 64),
	)
}

// DeepLink carries raw externally supplied parameters, unparsed.
type DeepLink struct {
	Query    string
	EntityID string
	RadiusKm string
	MinMag   string
	Start    string
	End      string
}

// IsZero reports whether no deep-link parameter was supplied.
func (d DeepLink) IsZero() bool { return d == DeepLink{} }

// UserSelection is the immutable snapshot of one interaction: widget values plus deep-link overrides.
type UserSelection struct {
	Text      string
	EntityID  string
	RadiusKm  float64
	MinMag    float64
	DateRange *[2]string
	DeepLink  DeepLink
}

// MapQuery selects the entities and parameters of a risk-map build.
type MapQuery struct {
	Days        int     `json:"days"`
	RadiusKm    float64 `json:"radius_km"`
	MinMag      float64 `json:"min_mag"`
	Limit       int     `json:"limit"`
	Page        int     `json:"page"`
	Concurrency int     `json:"concurrency"`
	HighOnly    bool    `json:"high_only"`
}
