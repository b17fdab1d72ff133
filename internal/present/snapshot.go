package present

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Snapshot is the most recent output published to a MemorySink.
type Snapshot struct {
	Entities  []EntityPanel `json:"entities"`
	Map       *MapLayer     `json:"map,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// MemorySink keeps the latest panel per entity and the latest map layer.
type MemorySink struct {
	mu        sync.RWMutex
	entities  map[string]EntityPanel
	mapLayer  *MapLayer
	updatedAt time.Time
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{entities: make(map[string]EntityPanel)}
}

// PublishEntity replaces the stored panel for the panel's entity.
func (s *MemorySink) PublishEntity(_ context.Context, panel EntityPanel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[panel.EntityID] = panel
	s.updatedAt = panel.GeneratedAt
	return nil
}

// PublishMap replaces the stored map layer.
func (s *MemorySink) PublishMap(_ context.Context, layer MapLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapLayer = &layer
	s.updatedAt = layer.GeneratedAt
	return nil
}

// Snapshot returns a copy of the stored output, entities ordered by id.
func (s *MemorySink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{Entities: make([]EntityPanel, 0, len(s.entities)), UpdatedAt: s.updatedAt}
	for _, panel := range s.entities {
		out.Entities = append(out.Entities, panel)
	}
	sort.Slice(out.Entities, func(i, j int) bool { return out.Entities[i].EntityID < out.Entities[j].EntityID })
	if s.mapLayer != nil {
		layer := *s.mapLayer
		out.Map = &layer
	}
	return out
}
