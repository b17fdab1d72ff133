package models

import (
	"encoding/json"
	"time"
)

// RawEvent is a seismic event as received, before timestamp validation.
type RawEvent struct {
	ID      string
	Time    json.RawMessage
	Mag     *float64
	DepthKm *float64
	Place   string
}

// SeismicEvent is a validated event of the time series.
type SeismicEvent struct {
	ID      string    `json:"id,omitempty"`
	Time    time.Time `json:"time"`
	Mag     *float64  `json:"mag"`
	DepthKm *float64  `json:"depth_km"`
	Place   string    `json:"place,omitempty"`
}

// EntityView is the single-entity result: indicators plus the event series.
// NoEvents marks the partial-data state where indicators exist but no events do.
type EntityView struct {
	Key       QueryKey        `json:"key"`
	Report    IndicatorReport `json:"report"`
	Events    []SeismicEvent  `json:"events"`
	NoEvents  bool            `json:"no_events"`
	EventsErr error           `json:"-"`
}

// MapRow is one entity's marker on the risk map.
type MapRow struct {
	EntityID   string     `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	Color      BadgeColor `json:"color"`
	Score      *float64   `json:"score"`
	Basis      string     `json:"basis,omitempty"`
}

// FanOutStats summarises one fan-out run.
type FanOutStats struct {
	Requested int           `json:"requested"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Succeeded int           `json:"succeeded"`
	Elapsed   time.Duration `json:"elapsed"`
}

// MapView is the map dataset for one MapQuery.
type MapView struct {
	Query MapQuery    `json:"query"`
	Key   QueryKey    `json:"key"`
	Rows  []MapRow    `json:"rows"`
	Stats FanOutStats `json:"stats"`
}
