// Package aggregate merges card-bearing events into an ordered,
// de-duplicated card collection.
package aggregate

import (
	"sync"

	"vcanalyst/internal/card"
)

// Registry keeps cards keyed by their derived ID in first-insertion order.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]card.Card
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]card.Card)}
}

// Ingest stores c under its derived ID. An existing entry is replaced in
// place and keeps its position; a new one is appended.
func (r *Registry) Ingest(c card.Card) (id string, inserted bool) {
	if r == nil {
		return "", false
	}
	id = c.Key()
	c.ID = id
	c = card.Clone(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID == nil {
		r.byID = make(map[string]card.Card)
	}
	if _, ok := r.byID[id]; ok {
		r.byID[id] = c
		return id, false
	}
	r.byID[id] = c
	r.order = append(r.order, id)
	return id, true
}

func (r *Registry) Get(id string) (card.Card, bool) {
	if r == nil {
		return card.Card{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return card.Card{}, false
	}
	return card.Clone(c), true
}

// Cards returns copies of the stored cards in first-insertion order.
func (r *Registry) Cards() []card.Card {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]card.Card, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, card.Clone(r.byID[id]))
	}
	return out
}

func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Reset drops every card. Used when a new research session starts.
func (r *Registry) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.order = nil
	r.byID = make(map[string]card.Card)
	r.mu.Unlock()
}
