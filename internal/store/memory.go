package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/agroclimate/internal/climate"
)

// ErrNotFound is returned when no series is cached for a key.
var ErrNotFound = climate.ErrNotCached

type seriesEntry struct {
	records []climate.DailyRecord
	savedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory series cache.
type MemoryStore struct {
	mu sync.RWMutex

	// key: series key, value: canonical sequence
	data map[string]*seriesEntry

	// retention configuration
	maxEntries int           // max number of cached series (0 = unlimited)
	maxAge     time.Duration // max age of a series (0 = unlimited)

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*seriesEntry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveSeries stores a copy of records under key and enforces retention.
func (s *MemoryStore) SaveSeries(_ context.Context, key string, records []climate.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &seriesEntry{
		records: append([]climate.DailyRecord(nil), records...),
		savedAt: s.now(),
	}

	// Enforce retention by count, evicting the oldest entries.
	for s.maxEntries > 0 && len(s.data) > s.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range s.data {
			if oldestKey == "" || e.savedAt.Before(oldest) {
				oldestKey, oldest = k, e.savedAt
			}
		}
		delete(s.data, oldestKey)
	}
	return nil
}

// GetSeries returns a copy of the series cached under key.
func (s *MemoryStore) GetSeries(_ context.Context, key string) ([]climate.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	return append([]climate.DailyRecord(nil), e.records...), nil
}

// Prune drops expired series and reports how many were removed.
func (s *MemoryStore) Prune(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.data {
		if s.expired(e) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of cached series.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) expired(e *seriesEntry) bool {
	return s.maxAge > 0 && s.now().Sub(e.savedAt) > s.maxAge
}
