package engine

import (
	"strings"

	"github.com/volcanowatch/volcano-risk/internal/models"
)

var glyphs = map[models.BadgeColor]string{
	models.ColorGreen:  "🟢",
	models.ColorYellow: "🟡",
	models.ColorOrange: "🟠",
	models.ColorRed:    "🔴",
}

const unknownGlyph = "⚪"

// ParseColor normalizes a backend color. Missing colors read as green; anything else
// outside the four levels is unknown.
func ParseColor(raw string) models.BadgeColor {
	switch c := models.BadgeColor(strings.ToLower(strings.TrimSpace(raw))); c {
	case "":
		return models.ColorGreen
	case models.ColorGreen, models.ColorYellow, models.ColorOrange, models.ColorRed:
		return c
	default:
		return models.ColorUnknown
	}
}

// Glyph maps a color to its display glyph. It never fails.
func Glyph(color models.BadgeColor) string {
	if g, ok := glyphs[ParseColor(string(color))]; ok {
		return g
	}
	return unknownGlyph
}

// IsHighRisk reports whether color belongs to the orange/red band used by the map filter.
func IsHighRisk(color models.BadgeColor) bool {
	switch ParseColor(string(color)) {
	case models.ColorOrange, models.ColorRed:
		return true
	}
	return false
}

// FilterHighRisk keeps only orange and red rows, preserving order.
func FilterHighRisk(rows []models.MapRow) []models.MapRow {
	out := make([]models.MapRow, 0, len(rows))
	for _, row := range rows {
		if IsHighRisk(row.Color) {
			out = append(out, row)
		}
	}
	return out
}
