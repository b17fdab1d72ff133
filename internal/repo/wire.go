package repo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// flexID accepts identifiers sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexFloat accepts numbers, numeric strings and null. Non-finite values decode as unknown.
type flexFloat struct {
	value *float64
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	f.value = nil
	if bytes.Equal(data, []byte("null")) || len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, ok := utils.ParseFloat(s); ok {
			f.value = &v
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	if utils.IsFinite(v) {
		f.value = &v
	}
	return nil
}

func (f flexFloat) ptr() *float64 { return f.value }

// intPtr yields nil for counts that are not whole numbers in int32 range.
func (f flexFloat) intPtr() *int {
	if f.value == nil {
		return nil
	}
	v := *f.value
	if math.Trunc(v) != v || v < math.MinInt32 || v > math.MaxInt32 {
		return nil
	}
	n := int(v)
	return &n
}

type wireVolcano struct {
	VNum        flexID    `json:"vnum"`
	Name        string    `json:"vName"`
	Lat         flexFloat `json:"lat"`
	Latitude    flexFloat `json:"latitude"`
	Lon         flexFloat `json:"lon"`
	Longitude   flexFloat `json:"longitude"`
	Type        string    `json:"vType"`
	Region      string    `json:"region"`
	Observatory string    `json:"obs"`
	Severity    flexFloat `json:"vei"`
}

func (w wireVolcano) coordinate() *models.Coordinate {
	lat := w.Lat.ptr()
	if lat == nil {
		lat = w.Latitude.ptr()
	}
	lon := w.Lon.ptr()
	if lon == nil {
		lon = w.Longitude.ptr()
	}
	if lat == nil || lon == nil {
		return nil
	}
	return &models.Coordinate{Lat: *lat, Lon: *lon}
}

func (w wireVolcano) entity() models.Entity {
	return models.Entity{
		ID:          string(w.VNum),
		Name:        strings.TrimSpace(w.Name),
		Coordinate:  w.coordinate(),
		Type:        w.Type,
		Region:      w.Region,
		Observatory: w.Observatory,
		Severity:    w.Severity.ptr(),
	}
}

type volcanoList struct {
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Total   int           `json:"total"`
	Pages   int           `json:"pages"`
	Results []wireVolcano `json:"results"`
}

type wireIndicators struct {
	Volcano    wireVolcano `json:"volcano"`
	Indicators struct {
		Total              flexFloat `json:"n_total"`
		DaysSpan           flexFloat `json:"days_span"`
		PerDay             flexFloat `json:"n_per_day"`
		Last7Days          flexFloat `json:"n7"`
		Last30Days         flexFloat `json:"n30"`
		MaxMag             flexFloat `json:"mmax"`
		MaxMag7Days        flexFloat `json:"mmax7"`
		MedianDepthKm      flexFloat `json:"depth_median_km"`
		MedianDepth7DaysKm flexFloat `json:"depth_median_7d_km"`
	} `json:"indicators"`
	OfficialStatus *struct {
		AlertLevel string `json:"alertLevel"`
		ColorCode  string `json:"colorCode"`
	} `json:"official_status"`
	RiskBadge struct {
		Color string    `json:"color"`
		Score flexFloat `json:"score_0_100"`
		Basis string    `json:"basis"`
	} `json:"risk_badge"`
	Confidence string            `json:"confidence"`
	Tooltips   map[string]string `json:"tooltips"`
	ComputedAt string            `json:"computedAt"`
}

func (w wireIndicators) report() models.IndicatorReport {
	in := w.Indicators
	report := models.IndicatorReport{
		Entity: w.Volcano.entity(),
		Indicators: models.IndicatorSet{
			Total:              in.Total.intPtr(),
			Last7Days:          in.Last7Days.intPtr(),
			Last30Days:         in.Last30Days.intPtr(),
			DaysSpan:           in.DaysSpan.intPtr(),
			PerDay:             in.PerDay.ptr(),
			MaxMag:             in.MaxMag.ptr(),
			MaxMag7Days:        in.MaxMag7Days.ptr(),
			MedianDepthKm:      in.MedianDepthKm.ptr(),
			MedianDepth7DaysKm: in.MedianDepth7DaysKm.ptr(),
			Confidence:         w.Confidence,
		},
		Badge: models.RiskBadge{
			Color: models.BadgeColor(w.RiskBadge.Color),
			Score: w.RiskBadge.Score.ptr(),
			Basis: w.RiskBadge.Basis,
		},
		Tooltips: w.Tooltips,
	}
	if w.OfficialStatus != nil && (w.OfficialStatus.AlertLevel != "" || w.OfficialStatus.ColorCode != "") {
		report.Official = &models.OfficialStatus{
			AlertLevel: w.OfficialStatus.AlertLevel,
			ColorCode:  w.OfficialStatus.ColorCode,
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, w.ComputedAt); err == nil {
		report.ComputedAt = ts.UTC()
	}
	return report
}

type wireEvents struct {
	Events []struct {
		EventID flexID          `json:"eventId"`
		Time    json.RawMessage `json:"time"`
		Mag     flexFloat       `json:"mag"`
		DepthKm flexFloat       `json:"depthKm"`
		Place   string          `json:"place"`
	} `json:"events"`
}

type wireRiskMap struct {
	Results []struct {
		VNum  flexID    `json:"vnum"`
		Name  string    `json:"vName"`
		Lat   flexFloat `json:"lat"`
		Lon   flexFloat `json:"lon"`
		Score flexFloat `json:"score"`
		Color string    `json:"color"`
		Basis *string   `json:"basis"`
	} `json:"results"`
}
