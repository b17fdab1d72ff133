package engine

import (
	"context"
	"strings"

	"github.com/volcanowatch/volcano-risk/internal/cache"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

// Search returns the entities matching text in the backend's relevance order. Blank text
// fails before any remote call; zero matches is a NotFound outcome.
func (p *Pipeline) Search(ctx context.Context, text string) ([]models.Entity, error) {
	const op = "engine.Search"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.NewValidationError(op, "search text is empty", utils.ErrEmptyQuery)
	}

	entities, err := p.searches.GetOrFetch(ctx, cache.KindSearch, text, p.backend.Search)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, utils.NewNotFoundError(op, "no entity matches "+text, utils.ErrNoResults)
	}
	return entities, nil
}

// Select picks the entity a deep link asked for, or the first candidate.
// matched is false when id was given but is not among entities.
func Select(entities []models.Entity, id string) (index int, matched bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, len(entities) > 0
	}
	for i, e := range entities {
		if e.ID == id {
			return i, true
		}
	}
	return 0, false
}
