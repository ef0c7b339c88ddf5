// Package relate finds articles from other sources that plausibly cover the
// same underlying event as a given anchor article. The matching is a cheap
// deterministic heuristic over triage signals; no model calls are involved.
package relate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/schema"
)

// ErrNotFound is returned when the anchor article does not exist.
var ErrNotFound = errors.New("article not found")

// ErrNotTriaged is returned when the anchor has no completed triage. Without
// the anchor's own topical signal there is nothing to score candidates
// against, which is different from a legitimately empty result.
var ErrNotTriaged = errors.New("article has no completed triage")

// Engine groups same-story coverage across sources.
type Engine struct {
	db     *database.DB
	window time.Duration
}

// NewEngine creates a grouping engine. The window bounds how far apart two
// articles' timestamps may be while still counting as the same story.
func NewEngine(db *database.DB, window time.Duration) *Engine {
	return &Engine{db: db, window: window}
}

// FindRelated returns articles from other sources that appear to cover the
// same story as the anchor, ordered by how close in time they were published,
// ties broken by source name. Membership is re-derived on every call.
//
// A candidate matches when it shares a person, organization or event entity
// with the anchor, or shares the anchor's category plus at least one keyword.
// Articles without a completed triage cannot be scored and are skipped.
func (e *Engine) FindRelated(anchorID int64) ([]database.Article, error) {
	anchor, err := e.db.GetArticleByID(anchorID)
	if err != nil {
		return nil, fmt.Errorf("loading article %d: %w", anchorID, err)
	}
	if anchor == nil {
		return nil, fmt.Errorf("article %d: %w", anchorID, ErrNotFound)
	}
	if anchor.TriageStatus != database.TriageDone {
		return nil, fmt.Errorf("article %d: %w", anchorID, ErrNotTriaged)
	}

	anchorTriage, err := e.db.GetTriage(anchorID)
	if err != nil {
		return nil, fmt.Errorf("loading triage for article %d: %w", anchorID, err)
	}
	if anchorTriage == nil {
		return nil, fmt.Errorf("article %d: %w", anchorID, ErrNotTriaged)
	}

	signal := newSignal(anchorTriage)
	anchorTime := articleTime(anchor)

	candidates, err := e.db.GetTriagedArticles()
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	type scored struct {
		article  database.Article
		distance time.Duration
	}
	var matches []scored
	for _, c := range candidates {
		if c.ID == anchorID || c.SourceName() == anchor.SourceName() {
			continue
		}
		distance := absDuration(articleTime(&c).Sub(anchorTime))
		if distance > e.window {
			continue
		}

		candTriage, err := e.db.GetTriage(c.ID)
		if err != nil {
			return nil, fmt.Errorf("loading triage for article %d: %w", c.ID, err)
		}
		if candTriage == nil {
			continue
		}
		if signal.matches(candTriage) {
			matches = append(matches, scored{article: c, distance: distance})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].article.SourceName() < matches[j].article.SourceName()
	})

	related := make([]database.Article, 0, len(matches))
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		related = append(related, m.article)
		ids = append(ids, m.article.ID)
	}

	if err := e.db.SetRelatedIDs(anchorID, ids); err != nil {
		return nil, fmt.Errorf("caching related ids for article %d: %w", anchorID, err)
	}
	return related, nil
}

// signal is the anchor's topical fingerprint used to score candidates.
type signal struct {
	category string
	entities map[string]bool
	keywords map[string]bool
}

func newSignal(t *database.ArticleTriage) *signal {
	s := &signal{
		category: t.Category,
		entities: make(map[string]bool),
		keywords: make(map[string]bool),
	}
	for _, e := range t.Entities {
		if groupableEntity(e.Type) {
			s.entities[normalize(e.Name)] = true
		}
	}
	for _, k := range t.Keywords {
		s.keywords[normalize(k)] = true
	}
	return s
}

func (s *signal) matches(t *database.ArticleTriage) bool {
	for _, e := range t.Entities {
		if groupableEntity(e.Type) && s.entities[normalize(e.Name)] {
			return true
		}
	}
	if t.Category != s.category {
		return false
	}
	for _, k := range t.Keywords {
		if s.keywords[normalize(k)] {
			return true
		}
	}
	return false
}

// groupableEntity reports whether an entity type carries enough identity to
// tie two articles to one story. Locations are too coarse on their own.
func groupableEntity(entityType string) bool {
	switch entityType {
	case schema.EntityPerson, schema.EntityOrganization, schema.EntityEvent:
		return true
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// articleTime returns the best available timestamp for windowing: the
// publication time when the source provided one, otherwise first seen.
func articleTime(a *database.Article) time.Time {
	if a.PublishedAt != nil {
		if t, err := time.Parse(time.RFC3339, *a.PublishedAt); err == nil {
			return t
		}
	}
	t, err := time.Parse(time.RFC3339, a.FirstSeenAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
