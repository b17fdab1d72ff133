package query

import (
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// Risk-map request limits.
const (
	DefaultMapDays     = 30
	DefaultMapLimit    = 300
	MaxMapLimit        = 1000
	DefaultConcurrency = 6
	MaxConcurrency     = 20
	MinMapMagnitude    = -1
	MaxMapMagnitude    = 10
	MaxMapRadiusKm     = 500
)

// MapDefaults fills unset risk-map fields.
type MapDefaults struct {
	Days        int
	RadiusKm    float64
	MinMag      float64
	Limit       int
	Concurrency int
}

// MapRequest is a risk-map request as supplied by a caller. A nil field was not supplied
// and takes its default; a supplied zero is kept and validated like any other value.
type MapRequest struct {
	Days        *int
	RadiusKm    *float64
	MinMag      *float64
	Limit       *int
	Page        *int
	Concurrency *int
	HighOnly    bool
}

// NormalizeMap fills the unsupplied fields of req from defaults and validates the result.
func NormalizeMap(req MapRequest, defaults MapDefaults) (models.MapQuery, error) {
	const op = "query.NormalizeMap"

	radius := defaults.RadiusKm
	if radius <= 0 {
		radius = 25
	}
	q := models.MapQuery{
		Days:        intOr(req.Days, firstPositive(defaults.Days, DefaultMapDays)),
		RadiusKm:    floatOr(req.RadiusKm, radius),
		MinMag:      floatOr(req.MinMag, defaults.MinMag),
		Limit:       intOr(req.Limit, firstPositive(defaults.Limit, DefaultMapLimit)),
		Page:        intOr(req.Page, 1),
		Concurrency: intOr(req.Concurrency, firstPositive(defaults.Concurrency, DefaultConcurrency)),
		HighOnly:    req.HighOnly,
	}

	switch {
	case q.Days < 1 || q.Days > MaxMapDays:
		return q, utils.NewValidationError(op, "days must be between 1 and 365", utils.ErrInvalidRange)
	case !utils.IsFinite(q.RadiusKm) || q.RadiusKm <= 0 || q.RadiusKm > MaxMapRadiusKm:
		return q, utils.NewValidationError(op, "radius_km must be in (0, 500]", nil)
	case !utils.IsFinite(q.MinMag) || q.MinMag < MinMapMagnitude || q.MinMag > MaxMapMagnitude:
		return q, utils.NewValidationError(op, "minmag must be between -1 and 10", nil)
	case q.Limit < 1 || q.Limit > MaxMapLimit:
		return q, utils.NewValidationError(op, "limit must be between 1 and 1000", nil)
	case q.Page < 1:
		return q, utils.NewValidationError(op, "page must be at least 1", nil)
	case q.Concurrency < 1 || q.Concurrency > MaxConcurrency:
		return q, utils.NewValidationError(op, "concurrency must be between 1 and 20", nil)
	}
	return q, nil
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
