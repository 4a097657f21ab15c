package snapshot

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 256

// MemoryStore keeps the most recent snapshots in process memory. Older
// ones are evicted once the capacity is reached.
type MemoryStore struct {
	cache *lru.Cache[string, Snapshot]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	cache, err := lru.New[string, Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := validate(snap); err != nil {
		return err
	}
	s.cache.Add(snap.ID, clone(snap))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, fmt.Errorf("store is nil")
	}
	snap, ok := s.cache.Get(strings.TrimSpace(id))
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return clone(snap), nil
}

func (s *MemoryStore) List(_ context.Context, company string) ([]Summary, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	key := CompanyKey(company)
	out := make([]Summary, 0, 8)
	for _, id := range s.cache.Keys() {
		snap, ok := s.cache.Peek(id)
		if !ok {
			continue
		}
		if key != "" && CompanyKey(snap.Company) != key {
			continue
		}
		out = append(out, snap.Summary())
	}
	sortNewestFirst(out)
	return out, nil
}
