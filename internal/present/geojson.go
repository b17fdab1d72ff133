package present

import (
	geojson "github.com/paulmach/go.geojson"

	"github.com/volcanowatch/volcano-risk/internal/engine"
	"github.com/volcanowatch/volcano-risk/internal/models"
)

// FeatureCollection renders map rows as GeoJSON points. radiusKm is carried on every
// feature so the renderer can draw the search circle.
func FeatureCollection(rows []models.MapRow, radiusKm float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewPointFeature([]float64{row.Coordinate.Lon, row.Coordinate.Lat})
		f.ID = row.EntityID
		color := engine.ParseColor(string(row.Color))
		f.SetProperty("id", row.EntityID)
		f.SetProperty("name", row.Name)
		f.SetProperty("color", string(color))
		f.SetProperty("glyph", engine.Glyph(color))
		f.SetProperty("high_risk", engine.IsHighRisk(color))
		f.SetProperty("radius_km", radiusKm)
		if row.Score != nil {
			f.SetProperty("score", *row.Score)
		} else {
			f.SetProperty("score", nil)
		}
		if row.Basis != "" {
			f.SetProperty("basis", row.Basis)
		}
		fc.AddFeature(f)
	}
	return fc
}

// MarshalFeatureCollection is FeatureCollection encoded as JSON.
func MarshalFeatureCollection(view models.MapView) ([]byte, error) {
	return FeatureCollection(view.Rows, view.Key.RadiusKm).MarshalJSON()
}
