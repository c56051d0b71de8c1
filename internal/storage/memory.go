package storage

import (
	"sort"
	"sync"

	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/ring"
)

// MemoryStorage is an in-memory Storage implementation guarded by a single
// RWMutex. It is the only Storage this module ships; a persistent backend
// would implement the same interface.
type MemoryStorage struct {
	lgr  logger.Logger
	mu   sync.RWMutex
	data map[string]domain.Resource // keyed by the resource's hex ID
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage(lgr logger.Logger) *MemoryStorage {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	s := &MemoryStorage{
		lgr:  lgr,
		data: make(map[string]domain.Resource),
	}
	s.lgr.Debug("initialized in-memory storage")
	return s
}

func (s *MemoryStorage) Put(resource domain.Resource) {
	key := resource.Key.String()
	s.mu.Lock()
	_, existed := s.data[key]
	s.data[key] = resource
	s.mu.Unlock()
	if existed {
		s.lgr.Debug("Put: resource updated", logger.F("key", key))
	} else {
		s.lgr.Debug("Put: resource inserted", logger.F("key", key))
	}
}

func (s *MemoryStorage) Get(id ring.ID) (domain.Resource, error) {
	key := id.String()
	s.mu.RLock()
	res, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return domain.Resource{}, ErrNotFound
	}
	return res, nil
}

func (s *MemoryStorage) Delete(id ring.ID) error {
	key := id.String()
	s.mu.Lock()
	_, ok := s.data[key]
	if ok {
		delete(s.data, key)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.lgr.Debug("Delete: resource removed", logger.F("key", key))
	return nil
}

func (s *MemoryStorage) Between(from, to ring.ID) ([]domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Resource
	for _, res := range s.data {
		if res.Key.Between(from, to) || res.Key.Equal(to) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *MemoryStorage) All() []domain.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Resource, 0, len(s.data))
	for _, res := range s.data {
		out = append(out, res)
	}
	return out
}

// DebugLog emits a single sorted DEBUG-level snapshot of the store, useful
// when inspecting a node's holdings without a dedicated admin RPC.
func (s *MemoryStorage) DebugLog() {
	snapshot := s.All()
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Key.String() < snapshot[j].Key.String()
	})
	entries := make([]map[string]any, 0, len(snapshot))
	for _, res := range snapshot {
		entries = append(entries, map[string]any{"key": res.Key.String(), "rawKey": res.RawKey})
	}
	s.lgr.Debug("storage snapshot", logger.F("count", len(snapshot)), logger.F("resources", entries))
}
