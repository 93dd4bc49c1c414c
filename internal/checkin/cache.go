package checkin

import (
	"sort"

	"github.com/meetsign/meetsign/internal/store"
)

// TemplateCache is a read-only, per-session view of a meeting's attendee
// templates. It is built once at session creation and never mutated, so
// concurrent reads need no locking. Sessions never share caches.
type TemplateCache struct {
	templates []store.AttendeeTemplate // sorted by UserID
	byID      map[string]*store.AttendeeTemplate
}

// NewTemplateCache copies the given templates into a cache. Templates
// with empty embeddings are dropped. The result is sorted by user ID so
// scans are deterministic.
func NewTemplateCache(templates []store.AttendeeTemplate) *TemplateCache {
	kept := make([]store.AttendeeTemplate, 0, len(templates))
	for _, t := range templates {
		if len(t.Embedding) == 0 {
			continue
		}
		cp := t
		cp.Embedding = make([]float32, len(t.Embedding))
		copy(cp.Embedding, t.Embedding)
		kept = append(kept, cp)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].UserID < kept[j].UserID })

	byID := make(map[string]*store.AttendeeTemplate, len(kept))
	for i := range kept {
		byID[kept[i].UserID] = &kept[i]
	}

	return &TemplateCache{templates: kept, byID: byID}
}

// Len returns the number of cached templates.
func (c *TemplateCache) Len() int {
	return len(c.templates)
}

// Get returns the template for a user ID, or nil.
func (c *TemplateCache) Get(userID string) *store.AttendeeTemplate {
	return c.byID[userID]
}

// All returns the cached templates in user ID order. Callers must not
// mutate the returned slice.
func (c *TemplateCache) All() []store.AttendeeTemplate {
	return c.templates
}
