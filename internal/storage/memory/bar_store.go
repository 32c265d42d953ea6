// Package memory provides in-memory store implementations used by unit
// tests and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bar // keyed by (asset_id, tf, timestamp_ms)
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]*domain.Bar),
	}
}

// barKey generates a unique key for a bar.
func barKey(assetID, tf string, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%d", assetID, tf, timestampMs)
}

// InsertBulk adds bars, skipping rows whose key already exists.
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		if b == nil || b.AssetID == "" || b.Tf == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	inserted := 0
	for _, b := range bars {
		key := barKey(b.AssetID, b.Tf, b.TimestampMs)
		if _, exists := s.data[key]; exists {
			continue
		}
		barCopy := *b
		s.data[key] = &barCopy
		inserted++
	}
	return inserted, nil
}

// GetByAsset retrieves all bars for an asset/timeframe, ordered by timestamp ASC.
func (s *BarStore) GetByAsset(_ context.Context, assetID, tf string) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for _, b := range s.data {
		if b.AssetID == assetID && b.Tf == tf {
			barCopy := *b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves bars for an asset/timeframe within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(_ context.Context, assetID, tf string, start, end int64) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for _, b := range s.data {
		if b.AssetID == assetID && b.Tf == tf && b.TimestampMs >= start && b.TimestampMs <= end {
			barCopy := *b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// LastTimestamp returns the newest bar timestamp for an asset/timeframe.
func (s *BarStore) LastTimestamp(_ context.Context, assetID, tf string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last int64
	found := false
	for _, b := range s.data {
		if b.AssetID == assetID && b.Tf == tf {
			if !found || b.TimestampMs > last {
				last = b.TimestampMs
			}
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return last, nil
}

var _ storage.BarStore = (*BarStore)(nil)
