package extractors

import (
	"log/slog"
	"sort"

	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// EventExtractor turns raw backend events into a clean, time-ordered series.
type EventExtractor struct {
	logger *slog.Logger
}

// NewEventExtractor creates an extractor. A nil logger falls back to slog.Default().
func NewEventExtractor(logger *slog.Logger) *EventExtractor {
	return &EventExtractor{logger: utils.OrDefault(logger)}
}

// Extract drops every event whose timestamp cannot be parsed and returns the rest in
// timestamp order. Events sharing a timestamp keep their received order.
func (e *EventExtractor) Extract(raw []models.RawEvent) []models.SeismicEvent {
	events := make([]models.SeismicEvent, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		ts, err := utils.ParseEventTime(r.Time)
		if err != nil {
			dropped++
			continue
		}
		events = append(events, models.SeismicEvent{
			ID:      r.ID,
			Time:    ts,
			Mag:     finiteOrNil(r.Mag),
			DepthKm: finiteOrNil(r.DepthKm),
			Place:   r.Place,
		})
	}
	if dropped > 0 {
		e.logger.Debug("dropped malformed seismic events", slog.Int("dropped", dropped), slog.Int("kept", len(events)))
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !utils.IsFinite(*v) {
		return nil
	}
	out := *v
	return &out
}
