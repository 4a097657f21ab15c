package snapshot

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	ListHits       uint64
	ListMisses     uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type Metrics struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:           m.hits.Load(),
		Misses:         m.misses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// CachedStore is a read-through LRU in front of a slower origin store.
type CachedStore struct {
	origin Store

	byID    *lru.Cache[string, Snapshot]
	lists   *lru.Cache[string, []Summary]
	metrics Metrics
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if origin == nil {
		return nil, fmt.Errorf("snapshot origin store is nil")
	}
	if size <= 0 {
		size = defaultMemoryEntries
	}
	byID, err := lru.New[string, Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}
	lists, err := lru.New[string, []Summary](size)
	if err != nil {
		return nil, fmt.Errorf("init snapshot list cache: %w", err)
	}
	return &CachedStore{origin: origin, byID: byID, lists: lists}, nil
}

func (s *CachedStore) Save(ctx context.Context, snap Snapshot) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Save(ctx, snap); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	s.byID.Add(snap.ID, clone(snap))
	s.lists.Remove(CompanyKey(snap.Company))
	s.lists.Remove("")
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (Snapshot, error) {
	if snap, ok := s.byID.Get(id); ok {
		s.metrics.hits.Add(1)
		return clone(snap), nil
	}
	s.metrics.misses.Add(1)
	s.metrics.originReads.Add(1)

	snap, err := s.origin.Get(ctx, id)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return Snapshot{}, err
	}
	s.byID.Add(id, clone(snap))
	return snap, nil
}

func (s *CachedStore) List(ctx context.Context, company string) ([]Summary, error) {
	key := CompanyKey(company)
	if list, ok := s.lists.Get(key); ok {
		s.metrics.listHits.Add(1)
		return append([]Summary(nil), list...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)

	list, err := s.origin.List(ctx, company)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.lists.Add(key, append([]Summary(nil), list...))
	return list, nil
}

// Close closes the origin when it holds resources.
func (s *CachedStore) Close() error {
	if c, ok := s.origin.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}
