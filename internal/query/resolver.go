// Package query turns one user interaction into the canonical QueryKey the rest of the
// pipeline caches and fetches by.
package query

import (
	"net/url"
	"strings"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

const (
	// DefaultMaxSpanDays bounds how far back any window may reach.
	DefaultMaxSpanDays = 365 * 5
	// DefaultSpanDays is the window used when the user gave no dates.
	DefaultSpanDays = 365
	// MaxMapDays bounds the risk-map look-back.
	MaxMapDays = 365
)

// Resolver builds QueryKeys. It holds no state beyond its limits, so Resolve is pure.
type Resolver struct {
	MaxSpanDays     int
	DefaultSpanDays int
}

// NewResolver returns a Resolver, substituting defaults for non-positive limits.
func NewResolver(maxSpanDays, defaultSpanDays int) Resolver {
	if maxSpanDays <= 0 {
		maxSpanDays = DefaultMaxSpanDays
	}
	if defaultSpanDays <= 0 {
		defaultSpanDays = DefaultSpanDays
	}
	if defaultSpanDays > maxSpanDays {
		defaultSpanDays = maxSpanDays
	}
	return Resolver{MaxSpanDays: maxSpanDays, DefaultSpanDays: defaultSpanDays}
}

// Floor returns the earliest date a window may start at for the given today.
func (r Resolver) Floor(today models.Date) models.Date {
	return today.AddDays(-r.maxSpan())
}

// Resolve produces the canonical key for sel. Deep-link dates are clamped into the allowed
// window; interactive dates that are malformed or reversed fail with ErrInvalidRange.
func (r Resolver) Resolve(sel models.UserSelection, today models.Date) (models.QueryKey, error) {
	const op = "query.Resolve"

	window, err := r.resolveWindow(sel, today)
	if err != nil {
		return models.QueryKey{}, err
	}

	radius := sel.RadiusKm
	if v, ok := utils.ParseFloat(sel.DeepLink.RadiusKm); ok {
		radius = v
	}
	if !utils.IsFinite(radius) || radius <= 0 {
		return models.QueryKey{}, utils.NewValidationError(op, "radius must be a positive number of kilometres", nil)
	}

	minMag := sel.MinMag
	if v, ok := utils.ParseFloat(sel.DeepLink.MinMag); ok {
		minMag = v
	}
	if !utils.IsFinite(minMag) {
		return models.QueryKey{}, utils.NewValidationError(op, "minimum magnitude must be finite", nil)
	}

	entityID := strings.TrimSpace(sel.DeepLink.EntityID)
	if entityID == "" {
		entityID = strings.TrimSpace(sel.EntityID)
	}

	return models.QueryKey{
		EntityID: entityID,
		Window:   window,
		RadiusKm: normalizeZero(radius),
		MinMag:   normalizeZero(minMag),
	}, nil
}

func (r Resolver) resolveWindow(sel models.UserSelection, today models.Date) (models.TimeWindow, error) {
	const op = "query.Resolve"
	floor := r.Floor(today)

	if start, end, ok := deepLinkDates(sel.DeepLink); ok {
		start = clamp(start, floor, today)
		end = clamp(end, floor, today)
		if start.After(end) {
			return models.TimeWindow{}, utils.NewValidationError(op, "deep-link start is after end", utils.ErrInvalidRange)
		}
		return models.TimeWindow{Start: start, End: end}, nil
	}

	if sel.DateRange == nil {
		return models.TimeWindow{Start: clamp(today.AddDays(-r.defaultSpan()), floor, today), End: today}, nil
	}

	start, err := utils.ParseDate(sel.DateRange[0])
	if err != nil {
		return models.TimeWindow{}, utils.NewValidationError(op, "malformed start date", utils.ErrInvalidRange)
	}
	end, err := utils.ParseDate(sel.DateRange[1])
	if err != nil {
		return models.TimeWindow{}, utils.NewValidationError(op, "malformed end date", utils.ErrInvalidRange)
	}
	if start.After(end) {
		return models.TimeWindow{}, utils.NewValidationError(op, "start date is after end date", utils.ErrInvalidRange)
	}
	if start.Before(floor) || end.After(today) {
		return models.TimeWindow{}, utils.NewValidationError(op, "dates outside the allowed window", utils.ErrInvalidRange)
	}
	return models.TimeWindow{Start: start, End: end}, nil
}

// MapTemplate builds the shared key for a fan-out: a window of days ending today, no entity.
func MapTemplate(days int, radiusKm, minMag float64, today models.Date) (models.QueryKey, error) {
	const op = "query.MapTemplate"
	if days < 1 || days > MaxMapDays {
		return models.QueryKey{}, utils.NewValidationError(op, "days must be between 1 and 365", utils.ErrInvalidRange)
	}
	if !utils.IsFinite(radiusKm) || radiusKm <= 0 {
		return models.QueryKey{}, utils.NewValidationError(op, "radius must be a positive number of kilometres", nil)
	}
	if !utils.IsFinite(minMag) {
		return models.QueryKey{}, utils.NewValidationError(op, "minimum magnitude must be finite", nil)
	}
	return models.QueryKey{
		Window:   models.TimeWindow{Start: today.AddDays(-days), End: today},
		RadiusKm: normalizeZero(radiusKm),
		MinMag:   normalizeZero(minMag),
	}, nil
}

// ParseDeepLink reads the externally supplied parameters without interpreting them.
func ParseDeepLink(values url.Values) models.DeepLink {
	return models.DeepLink{
		Query:    strings.TrimSpace(values.Get("q")),
		EntityID: strings.TrimSpace(values.Get("vnum")),
		RadiusKm: strings.TrimSpace(values.Get("radius_km")),
		MinMag:   strings.TrimSpace(values.Get("minmag")),
		Start:    strings.TrimSpace(values.Get("start")),
		End:      strings.TrimSpace(values.Get("end")),
	}
}

func deepLinkDates(link models.DeepLink) (models.Date, models.Date, bool) {
	if link.Start == "" || link.End == "" {
		return models.Date{}, models.Date{}, false
	}
	start, err := utils.ParseDate(link.Start)
	if err != nil {
		return models.Date{}, models.Date{}, false
	}
	end, err := utils.ParseDate(link.End)
	if err != nil {
		return models.Date{}, models.Date{}, false
	}
	return start, end, true
}

func clamp(d, lo, hi models.Date) models.Date {
	if d.Before(lo) {
		return lo
	}
	if d.After(hi) {
		return hi
	}
	return d
}

func (r Resolver) maxSpan() int {
	if r.MaxSpanDays <= 0 {
		return DefaultMaxSpanDays
	}
	return r.MaxSpanDays
}

func (r Resolver) defaultSpan() int {
	if r.DefaultSpanDays <= 0 {
		return DefaultSpanDays
	}
	return r.DefaultSpanDays
}

// -0 and 0 compare equal but print differently; keep the key's String form injective.
func normalizeZero(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}
